package report

import (
	"bytes"
	"testing"

	"pricefeed/internal/schema"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrice(t *testing.T) {
	assert.Equal(t, "123.45", Price(12345, 2).String())
	assert.Equal(t, "12345", Price(12345, 0).String())
}

func TestSummarize(t *testing.T) {
	records := []schema.Record{
		{Symbol: "MSFT", Side: schema.SideBuy, Quantity: 10, Price: 10000, Sequence: 1},
		{Symbol: "AAPL", Side: schema.SideSell, Quantity: 5, Price: 2000, Sequence: 2},
		{Symbol: "MSFT", Side: schema.SideSell, Quantity: 30, Price: 10200, Sequence: 3},
		{Symbol: "AAPL", Side: schema.SideSell, Quantity: 0, Price: 1900, Sequence: 4},
	}

	got := Summarize(records, 2)
	require.Len(t, got, 2)

	aapl := got[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, 2, aapl.Records)
	assert.Equal(t, 2, aapl.Sells)
	assert.Equal(t, int64(5), aapl.Quantity)
	assert.True(t, decimal.RequireFromString("100").Equal(aapl.Notional))
	assert.True(t, decimal.RequireFromString("20").Equal(aapl.VWAP))
	assert.True(t, decimal.RequireFromString("19").Equal(aapl.Low))
	assert.True(t, decimal.RequireFromString("20").Equal(aapl.High))

	msft := got[1]
	assert.Equal(t, 1, msft.Buys)
	assert.Equal(t, 1, msft.Sells)
	assert.Equal(t, int64(40), msft.Quantity)
	// 10*100 + 30*102 = 4060, / 40 = 101.5
	assert.True(t, decimal.RequireFromString("4060").Equal(msft.Notional))
	assert.True(t, decimal.RequireFromString("101.5").Equal(msft.VWAP))
}

func TestSummarizeZeroQuantity(t *testing.T) {
	got := Summarize([]schema.Record{{Symbol: "META", Side: schema.SideBuy, Price: 5}}, 0)
	require.Len(t, got, 1)
	assert.True(t, got[0].VWAP.IsZero())
	assert.True(t, got[0].Notional.IsZero())
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Summarize([]schema.Record{
		{Symbol: "AAPL", Side: schema.SideBuy, Quantity: 2, Price: 150, Sequence: 1},
	}, 1)))
	assert.Contains(t, buf.String(), "SYMBOL")
	assert.Contains(t, buf.String(), "AAPL")
	assert.Contains(t, buf.String(), "30")
}
