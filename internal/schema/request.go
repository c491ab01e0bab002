package schema

import (
	"math"

	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

// CallType selects what the server streams back.
type CallType uint8

const (
	CallUnknown   CallType = 0
	CallStreamAll CallType = 1
	CallResend    CallType = 2
)

func (c CallType) String() string {
	switch c {
	case CallStreamAll:
		return "stream_all"
	case CallResend:
		return "resend"
	default:
		return "unknown"
	}
}

// MaxResendSequence is the largest sequence the one byte param can carry.
const MaxResendSequence Sequence = math.MaxUint8

// Request is the outbound message that opens every session.
type Request struct {
	CallType CallType
	Param    uint8
}

// StreamAllRequest asks the server for every record from the beginning.
func StreamAllRequest() Request {
	return Request{CallType: CallStreamAll}
}

// NewResendRequest asks the server for the single record with seq.
func NewResendRequest(seq Sequence) (Request, error) {
	if seq < 0 || seq > MaxResendSequence {
		return Request{}, errors.Wrapf(exception.ErrSequenceOutOfRange, "seq: %d, max: %d", seq, MaxResendSequence)
	}
	return Request{CallType: CallResend, Param: uint8(seq)}, nil
}
