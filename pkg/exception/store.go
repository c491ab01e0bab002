package exception

import "github.com/yanun0323/errors"

var (
	ErrEmptyOutputPath = errors.New("store: empty output path")
	ErrNilWriter       = errors.New("store: nil writer")
	ErrUnknownDriver   = errors.New("store: unknown database driver")
)
