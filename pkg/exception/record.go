package exception

import "github.com/yanun0323/errors"

// Record decode errors. Every decode failure unwraps to exactly one of these.
var (
	ErrRecordTooShort  = errors.New("record: buffer too short")
	ErrInvalidSide     = errors.New("record: invalid buy/sell indicator")
	ErrInvalidQuantity = errors.New("record: invalid quantity")
	ErrInvalidPrice    = errors.New("record: invalid price")
	ErrInvalidSequence = errors.New("record: invalid sequence")
)

var (
	ErrSequenceOutOfRange = errors.New("request: sequence does not fit resend param")
)
