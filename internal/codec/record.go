package codec

import (
	"encoding/binary"
	"errors"
	"strconv"

	"pricefeed/internal/schema"
	"pricefeed/pkg/exception"
)

const (
	RecordSize = 17

	symbolOffset   = 0
	symbolSize     = 4
	sideOffset     = 4
	quantityOffset = 5
	priceOffset    = 9
	sequenceOffset = 13
)

// DecodeErrorKind tells which field check rejected a record.
type DecodeErrorKind uint8

const (
	DecodeErrorUnknown DecodeErrorKind = iota
	DecodeErrorShortBuffer
	DecodeErrorInvalidSide
	DecodeErrorInvalidQuantity
	DecodeErrorInvalidPrice
	DecodeErrorInvalidSequence
)

func (k DecodeErrorKind) String() string {
	switch k {
	case DecodeErrorShortBuffer:
		return "ShortBuffer"
	case DecodeErrorInvalidSide:
		return "InvalidSide"
	case DecodeErrorInvalidQuantity:
		return "InvalidQuantity"
	case DecodeErrorInvalidPrice:
		return "InvalidPrice"
	case DecodeErrorInvalidSequence:
		return "InvalidSequence"
	default:
		return "Unknown"
	}
}

func (k DecodeErrorKind) sentinel() error {
	switch k {
	case DecodeErrorShortBuffer:
		return exception.ErrRecordTooShort
	case DecodeErrorInvalidSide:
		return exception.ErrInvalidSide
	case DecodeErrorInvalidQuantity:
		return exception.ErrInvalidQuantity
	case DecodeErrorInvalidPrice:
		return exception.ErrInvalidPrice
	case DecodeErrorInvalidSequence:
		return exception.ErrInvalidSequence
	default:
		return exception.ErrInternal
	}
}

// DecodeError is returned by DecodeRecord. It unwraps to the matching
// sentinel in pkg/exception.
type DecodeError struct {
	Kind  DecodeErrorKind
	Value int64
}

func (e *DecodeError) Error() string {
	return e.Kind.sentinel().Error() + " (" + e.Kind.String() + ": " + strconv.FormatInt(e.Value, 10) + ")"
}

func (e *DecodeError) Unwrap() error {
	return e.Kind.sentinel()
}

// DecodeRecord parses and validates a fixed-size record frame.
// Fields are checked in wire order and the first failure is returned.
func DecodeRecord(src []byte) (schema.Record, error) {
	if len(src) < RecordSize {
		return schema.Record{}, &DecodeError{Kind: DecodeErrorShortBuffer, Value: int64(len(src))}
	}

	side := schema.Side(src[sideOffset])
	if !side.Valid() {
		return schema.Record{}, &DecodeError{Kind: DecodeErrorInvalidSide, Value: int64(side)}
	}

	quantity := int32(binary.BigEndian.Uint32(src[quantityOffset : quantityOffset+4]))
	if quantity < 0 {
		return schema.Record{}, &DecodeError{Kind: DecodeErrorInvalidQuantity, Value: int64(quantity)}
	}

	price := int32(binary.BigEndian.Uint32(src[priceOffset : priceOffset+4]))
	if price < 0 {
		return schema.Record{}, &DecodeError{Kind: DecodeErrorInvalidPrice, Value: int64(price)}
	}

	sequence := int32(binary.BigEndian.Uint32(src[sequenceOffset : sequenceOffset+4]))
	if sequence < 0 {
		return schema.Record{}, &DecodeError{Kind: DecodeErrorInvalidSequence, Value: int64(sequence)}
	}

	return schema.Record{
		Symbol:   latin1(src[symbolOffset : symbolOffset+symbolSize]),
		Side:     side,
		Quantity: schema.Quantity(quantity),
		Price:    schema.Price(price),
		Sequence: schema.Sequence(sequence),
	}, nil
}

// EncodeRecord serializes a record into a fixed-size frame.
// Symbols are truncated or zero padded to four bytes.
func EncodeRecord(dst []byte, rec schema.Record) []byte {
	if cap(dst) < RecordSize {
		dst = make([]byte, RecordSize)
	} else {
		dst = dst[:RecordSize]
	}

	clear(dst[symbolOffset : symbolOffset+symbolSize])
	i := 0
	for _, r := range rec.Symbol {
		if i == symbolSize {
			break
		}
		if r > 0xFF {
			r = '?'
		}
		dst[symbolOffset+i] = byte(r)
		i++
	}
	dst[sideOffset] = byte(rec.Side)
	binary.BigEndian.PutUint32(dst[quantityOffset:quantityOffset+4], uint32(rec.Quantity))
	binary.BigEndian.PutUint32(dst[priceOffset:priceOffset+4], uint32(rec.Price))
	binary.BigEndian.PutUint32(dst[sequenceOffset:sequenceOffset+4], uint32(rec.Sequence))

	return dst
}

func latin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// KindOf returns the decode failure kind carried by err, or
// DecodeErrorUnknown when err did not come from DecodeRecord.
func KindOf(err error) DecodeErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return DecodeErrorUnknown
}
