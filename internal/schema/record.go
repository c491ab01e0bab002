package schema

import (
	"encoding/json"
	"strconv"

	"github.com/yanun0323/errors"
)

// Price is a fixed-point integer. The scale is not carried on the wire.
type Price int32

// Quantity is a non-negative integer amount.
type Quantity int32

// Sequence is the server assigned position of a record in the stream.
type Sequence int32

// Side is the buy/sell indicator as sent on the wire.
type Side byte

const (
	SideUnknown Side = 0
	SideBuy     Side = 'B'
	SideSell    Side = 'S'
)

// Valid reports whether s is one of the two wire values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return "Unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

func (s Side) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Errorf("marshal side: %d", s)
	}
	return []byte{'"', byte(s), '"'}, nil
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.Wrap(err, "unmarshal side")
	}
	if len(str) != 1 || !Side(str[0]).Valid() {
		return errors.Errorf("unmarshal side: %q", str)
	}
	*s = Side(str[0])
	return nil
}

// Record is one decoded market data event.
type Record struct {
	Symbol   string   `json:"symbol"`
	Side     Side     `json:"buySell"`
	Quantity Quantity `json:"quantity"`
	Price    Price    `json:"price"`
	Sequence Sequence `json:"packetSeq"`
}
