package report

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"pricefeed/internal/schema"

	"github.com/shopspring/decimal"
)

// vwapPlaces is the extra precision kept when averaging prices.
const vwapPlaces = 4

// SymbolSummary aggregates the records of one symbol. Prices are scaled by
// 10^-PriceScale.
type SymbolSummary struct {
	Symbol   string
	Records  int
	Buys     int
	Sells    int
	Quantity int64
	Notional decimal.Decimal
	VWAP     decimal.Decimal
	Low      decimal.Decimal
	High     decimal.Decimal
}

// Price renders a wire price with priceScale implied decimal places.
func Price(p schema.Price, priceScale int32) decimal.Decimal {
	return decimal.New(int64(p), -priceScale)
}

// Summarize groups records by symbol, ordered by symbol.
func Summarize(records []schema.Record, priceScale int32) []SymbolSummary {
	bySymbol := make(map[string]*SymbolSummary)
	for _, rec := range records {
		s, ok := bySymbol[rec.Symbol]
		price := Price(rec.Price, priceScale)
		if !ok {
			s = &SymbolSummary{Symbol: rec.Symbol, Notional: decimal.Zero, Low: price, High: price}
			bySymbol[rec.Symbol] = s
		}
		s.Records++
		switch rec.Side {
		case schema.SideBuy:
			s.Buys++
		case schema.SideSell:
			s.Sells++
		}
		s.Quantity += int64(rec.Quantity)
		s.Notional = s.Notional.Add(price.Mul(decimal.NewFromInt(int64(rec.Quantity))))
		if price.LessThan(s.Low) {
			s.Low = price
		}
		if price.GreaterThan(s.High) {
			s.High = price
		}
	}

	out := make([]SymbolSummary, 0, len(bySymbol))
	for _, s := range bySymbol {
		if s.Quantity > 0 {
			s.VWAP = s.Notional.DivRound(decimal.NewFromInt(s.Quantity), priceScale+vwapPlaces)
		}
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b SymbolSummary) int {
		return strings.Compare(a.Symbol, b.Symbol)
	})
	return out
}

// Write prints summaries as an aligned table.
func Write(w io.Writer, summaries []SymbolSummary) error {
	if _, err := fmt.Fprintf(w, "%-6s %8s %6s %6s %10s %16s %14s %14s %14s\n",
		"SYMBOL", "RECORDS", "BUYS", "SELLS", "QUANTITY", "NOTIONAL", "VWAP", "LOW", "HIGH"); err != nil {
		return err
	}
	for _, s := range summaries {
		if _, err := fmt.Fprintf(w, "%-6s %8d %6d %6d %10d %16s %14s %14s %14s\n",
			s.Symbol, s.Records, s.Buys, s.Sells, s.Quantity,
			s.Notional.String(), s.VWAP.String(), s.Low.String(), s.High.String()); err != nil {
			return err
		}
	}
	return nil
}
