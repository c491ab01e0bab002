package reassembly

import (
	"context"
	"fmt"
	"time"

	"pricefeed/internal/codec"
	"pricefeed/internal/ledger"
	"pricefeed/internal/obs"
	"pricefeed/internal/schema"
	"pricefeed/internal/store"
	"pricefeed/pkg/exception"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Runner runs one request/response session. session.Controller implements it.
type Runner interface {
	Run(ctx context.Context, req schema.Request, onRecord func(frame []byte) error) error
	Close() error
}

// Option configures an Orchestrator.
type Option struct {
	// MaxPasses bounds the resend passes. 0 repeats passes until nothing is
	// missing or a pass recovers nothing.
	MaxPasses  int
	Duplicates ledger.DuplicatePolicy
	OutOfRange OutOfRangePolicy
	Metrics    *obs.Metrics
}

// DefaultOption runs a single resend pass and keeps duplicates.
func DefaultOption() Option {
	return Option{MaxPasses: 1}
}

// Result summarizes one run.
type Result struct {
	RunID    uuid.UUID
	Records  []schema.Record
	Missing  []schema.Sequence
	Skipped  []schema.Sequence
	Passes   int
	Sessions int
}

// Orchestrator drives a stream-all session followed by resend passes and
// hands the sorted records to the sink.
type Orchestrator struct {
	runner Runner
	sink   store.Sink
	opt    Option
}

// New creates an orchestrator. sink may be nil, in which case Run only
// returns the result.
func New(runner Runner, sink store.Sink, opt Option) (*Orchestrator, error) {
	if runner == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "runner")
	}
	if opt.MaxPasses < 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "max passes: %d", opt.MaxPasses)
	}
	return &Orchestrator{runner: runner, sink: sink, opt: opt}, nil
}

// Run reassembles the full stream. Any session or decode failure aborts the
// run before the sink is called. Sequences that stay missing are reported in
// the result and are not an error.
func (o *Orchestrator) Run(ctx context.Context, runID uuid.UUID) (Result, error) {
	var (
		start  = time.Now()
		result = Result{RunID: runID}
		l      = ledger.New(o.opt.Duplicates)
	)

	err := o.runner.Run(ctx, schema.StreamAllRequest(), func(frame []byte) error {
		return o.accept(l, frame)
	})
	result.Sessions++
	if err != nil {
		return result, fmt.Errorf("stream all: %w", err)
	}

	missing := l.MissingSequences()
	o.opt.Metrics.AddGaps(len(missing))
	logs.Infof("stream all done, run: %s, records: %d, distinct: %d, missing: %d", runID, l.Len(), l.Distinct(), len(missing))

	skipped := make(map[schema.Sequence]struct{})
	for pass := 1; len(missing) != 0 && (o.opt.MaxPasses == 0 || pass <= o.opt.MaxPasses); pass++ {
		result.Passes = pass
		recovered := 0

		for _, seq := range missing {
			req, err := schema.NewResendRequest(seq)
			if err != nil {
				if o.opt.OutOfRange == OutOfRangeFail {
					return result, fmt.Errorf("resend %d: %w", seq, err)
				}
				if _, ok := skipped[seq]; !ok {
					skipped[seq] = struct{}{}
					result.Skipped = append(result.Skipped, seq)
					logs.Errorf("resend skipped, run: %s, seq: %d, err: %+v", runID, seq, err)
				}
				continue
			}

			if err := o.resend(ctx, l, req); err != nil {
				result.Sessions++
				return result, fmt.Errorf("resend %d: %w", seq, err)
			}
			result.Sessions++
			if l.Has(seq) {
				recovered++
			}
		}

		before := len(missing)
		missing = withoutSkipped(l.MissingSequences(), skipped)
		logs.Infof("resend pass %d done, run: %s, recovered: %d/%d, still missing: %d", pass, runID, recovered, before, len(missing))
		if recovered == 0 {
			break
		}
	}

	result.Records = l.SortedRecords()
	result.Missing = l.MissingSequences()
	o.opt.Metrics.SetUnresolved(len(result.Missing))
	if len(result.Missing) != 0 {
		logs.Errorf("run finished with gaps, run: %s, missing: %v", runID, result.Missing)
	}

	if o.sink != nil {
		batch := store.Batch{
			RunID:       runID.String(),
			Records:     result.Records,
			Missing:     result.Missing,
			CompletedAt: time.Now(),
		}
		if err := o.sink.Write(ctx, batch); err != nil {
			return result, fmt.Errorf("store records: %w", err)
		}
	}

	logs.Infof("run done, run: %s, records: %d, missing: %d, passes: %d, sessions: %d, cost: %s",
		runID, len(result.Records), len(result.Missing), result.Passes, result.Sessions, time.Since(start))
	return result, nil
}

// resend asks for one record and closes the session as soon as a record is
// accepted, whatever its sequence.
func (o *Orchestrator) resend(ctx context.Context, l *ledger.Ledger, req schema.Request) error {
	accepted := false
	return o.runner.Run(ctx, req, func(frame []byte) error {
		if err := o.accept(l, frame); err != nil {
			return err
		}
		if !accepted {
			accepted = true
			return o.runner.Close()
		}
		return nil
	})
}

func (o *Orchestrator) accept(l *ledger.Ledger, frame []byte) error {
	rec, err := codec.DecodeRecord(frame)
	if err != nil {
		o.opt.Metrics.IncDecodeError(codec.KindOf(err).String())
		return err
	}
	l.Insert(rec)
	return nil
}

func withoutSkipped(seqs []schema.Sequence, skipped map[schema.Sequence]struct{}) []schema.Sequence {
	if len(skipped) == 0 {
		return seqs
	}
	out := seqs[:0]
	for _, seq := range seqs {
		if _, ok := skipped[seq]; !ok {
			out = append(out, seq)
		}
	}
	return out
}
