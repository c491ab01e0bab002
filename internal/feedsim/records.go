package feedsim

import (
	"math/rand"

	"pricefeed/internal/schema"
)

var symbols = []string{"AAPL", "MSFT", "AMZN", "META", "NFLX", "TSLA"}

// GenerateRecords builds a stream with sequences 1..n. The same seed always
// yields the same stream.
func GenerateRecords(n int, seed int64) []schema.Record {
	rng := rand.New(rand.NewSource(seed))
	out := make([]schema.Record, 0, n)
	for i := 1; i <= n; i++ {
		side := schema.SideBuy
		if rng.Intn(2) == 1 {
			side = schema.SideSell
		}
		out = append(out, schema.Record{
			Symbol:   symbols[rng.Intn(len(symbols))],
			Side:     side,
			Quantity: schema.Quantity(1 + rng.Intn(500)),
			Price:    schema.Price(1_000 + rng.Intn(200_000)),
			Sequence: schema.Sequence(i),
		})
	}
	return out
}
