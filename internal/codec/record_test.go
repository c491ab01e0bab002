package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"pricefeed/internal/schema"
	"pricefeed/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(symbol string, side byte, qty, price, seq int32) []byte {
	buf := make([]byte, RecordSize)
	copy(buf[0:4], symbol)
	buf[4] = side
	binary.BigEndian.PutUint32(buf[5:9], uint32(qty))
	binary.BigEndian.PutUint32(buf[9:13], uint32(price))
	binary.BigEndian.PutUint32(buf[13:17], uint32(seq))
	return buf
}

func TestDecodeRecord(t *testing.T) {
	rec, err := DecodeRecord(frame("MSFT", 'S', 50, 300125, 7))
	require.NoError(t, err)
	assert.Equal(t, schema.Record{
		Symbol:   "MSFT",
		Side:     schema.SideSell,
		Quantity: 50,
		Price:    300125,
		Sequence: 7,
	}, rec)
}

func TestDecodeRecordAcceptsZeroes(t *testing.T) {
	rec, err := DecodeRecord(frame("AAPL", 'B', 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, schema.Sequence(0), rec.Sequence)
}

func TestDecodeRecordIgnoresTrailingBytes(t *testing.T) {
	buf := append(frame("AAPL", 'B', 1, 2, 3), 0xFF, 0xFF)
	rec, err := DecodeRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, schema.Sequence(3), rec.Sequence)
}

func TestDecodeRecordLatin1Symbol(t *testing.T) {
	buf := frame("AB", 'B', 1, 1, 1)
	buf[2] = 0xE9
	buf[3] = 'Z'
	rec, err := DecodeRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, "ABéZ", rec.Symbol)
}

func TestDecodeRecordErrors(t *testing.T) {
	testCases := []struct {
		desc     string
		buf      []byte
		kind     DecodeErrorKind
		sentinel error
	}{
		{"empty", nil, DecodeErrorShortBuffer, exception.ErrRecordTooShort},
		{"short", frame("AAPL", 'B', 1, 1, 1)[:16], DecodeErrorShortBuffer, exception.ErrRecordTooShort},
		{"side", frame("AAPL", 'X', 1, 1, 1), DecodeErrorInvalidSide, exception.ErrInvalidSide},
		{"lowercase side", frame("AAPL", 'b', 1, 1, 1), DecodeErrorInvalidSide, exception.ErrInvalidSide},
		{"quantity", frame("AAPL", 'B', -1, 1, 1), DecodeErrorInvalidQuantity, exception.ErrInvalidQuantity},
		{"price", frame("AAPL", 'S', 1, -5, 1), DecodeErrorInvalidPrice, exception.ErrInvalidPrice},
		{"sequence", frame("AAPL", 'S', 1, 1, -1), DecodeErrorInvalidSequence, exception.ErrInvalidSequence},
		{"side before quantity", frame("AAPL", 'X', -1, -1, -1), DecodeErrorInvalidSide, exception.ErrInvalidSide},
		{"quantity before price", frame("AAPL", 'B', -1, -1, -1), DecodeErrorInvalidQuantity, exception.ErrInvalidQuantity},
		{"price before sequence", frame("AAPL", 'B', 1, -1, -1), DecodeErrorInvalidPrice, exception.ErrInvalidPrice},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := DecodeRecord(tc.buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.sentinel)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, tc.kind, decodeErr.Kind)
			assert.Equal(t, tc.kind, KindOf(fmt.Errorf("wrapped: %w", err)))
		})
	}
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, DecodeErrorUnknown, KindOf(nil))
	assert.Equal(t, DecodeErrorUnknown, KindOf(exception.ErrRecordTooShort))
}

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	records := []schema.Record{
		{Symbol: "AAPL", Side: schema.SideBuy, Quantity: 10, Price: 100, Sequence: 1},
		{Symbol: "AMZN", Side: schema.SideSell, Quantity: 2147483647, Price: 2147483647, Sequence: 2147483647},
		{Symbol: "MSFT", Side: schema.SideSell, Quantity: 0, Price: 0, Sequence: 0},
	}

	buf := make([]byte, 0, RecordSize)
	for _, orig := range records {
		encoded := EncodeRecord(buf, orig)
		require.Len(t, encoded, RecordSize)
		decoded, err := DecodeRecord(encoded)
		require.NoError(t, err)
		if decoded != orig {
			t.Fatalf("record round-trip mismatch: got %+v want %+v", decoded, orig)
		}
	}
}

func TestEncodeRecordPadsShortSymbol(t *testing.T) {
	encoded := EncodeRecord(nil, schema.Record{Symbol: "GE", Side: schema.SideBuy, Sequence: 1})
	assert.Equal(t, []byte{'G', 'E', 0, 0}, encoded[0:4])
}

func BenchmarkDecodeRecord(b *testing.B) {
	buf := frame("AAPL", 'B', 10, 100, 1)
	for b.Loop() {
		_, _ = DecodeRecord(buf)
	}
}
