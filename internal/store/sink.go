package store

import (
	"context"
	"fmt"
	"time"

	"pricefeed/internal/schema"

	"github.com/yanun0323/logs"
)

// Batch is the result of one reassembly run handed to the sinks.
type Batch struct {
	RunID       string
	Records     []schema.Record
	Missing     []schema.Sequence
	CompletedAt time.Time
}

// Sink persists a finished batch.
type Sink interface {
	Name() string
	Write(ctx context.Context, batch Batch) error
}

// Multi writes to every sink in order and stops at the first failure.
// Entries must be non-nil.
type Multi []Sink

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Write(ctx context.Context, batch Batch) error {
	for _, sink := range m {
		start := time.Now()
		if err := sink.Write(ctx, batch); err != nil {
			return fmt.Errorf("write sink %s: %w", sink.Name(), err)
		}
		logs.Infof("sink %s stored %d records, run: %s, cost: %s", sink.Name(), len(batch.Records), batch.RunID, time.Since(start))
	}
	return nil
}
