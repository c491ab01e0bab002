package exception

import "github.com/yanun0323/errors"

var (
	ErrEmptyLedger = errors.New("ledger: no sequence seen")
)
