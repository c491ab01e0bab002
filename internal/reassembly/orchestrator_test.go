package reassembly

import (
	"context"
	"testing"

	"pricefeed/internal/codec"
	"pricefeed/internal/ledger"
	"pricefeed/internal/obs"
	"pricefeed/internal/schema"
	"pricefeed/internal/store"
	"pricefeed/pkg/exception"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func rec(seq int32) schema.Record {
	return schema.Record{Symbol: "AAPL", Side: schema.SideSell, Quantity: 5, Price: 1234, Sequence: schema.Sequence(seq)}
}

func frames(seqs ...int32) [][]byte {
	out := make([][]byte, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, codec.EncodeRecord(nil, rec(seq)))
	}
	return out
}

// scriptRunner answers each request with the frames reply returns and stops
// delivering once Close is called.
type scriptRunner struct {
	reply    func(req schema.Request) [][]byte
	err      map[schema.Request]error
	requests []schema.Request
	closed   bool
}

func (r *scriptRunner) Run(_ context.Context, req schema.Request, onRecord func([]byte) error) error {
	r.requests = append(r.requests, req)
	r.closed = false
	for _, f := range r.reply(req) {
		if r.closed {
			break
		}
		if err := onRecord(f); err != nil {
			return err
		}
	}
	return r.err[req]
}

func (r *scriptRunner) Close() error {
	r.closed = true
	return nil
}

type captureSink struct {
	batches []store.Batch
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Write(_ context.Context, batch store.Batch) error {
	s.batches = append(s.batches, batch)
	return nil
}

func resend(t *testing.T, seq schema.Sequence) schema.Request {
	t.Helper()
	req, err := schema.NewResendRequest(seq)
	require.NoError(t, err)
	return req
}

func seqsOf(records []schema.Record) []schema.Sequence {
	out := make([]schema.Sequence, 0, len(records))
	for _, r := range records {
		out = append(out, r.Sequence)
	}
	return out
}

func TestRunResendsEachGapOnce(t *testing.T) {
	runner := &scriptRunner{reply: func(req schema.Request) [][]byte {
		if req.CallType == schema.CallStreamAll {
			return frames(1, 2, 4, 7)
		}
		return frames(int32(req.Param))
	}}
	sink := &captureSink{}
	metrics := obs.NewMetrics()
	opt := DefaultOption()
	opt.Metrics = metrics

	o, err := New(runner, sink, opt)
	require.NoError(t, err)

	runID := uuid.New()
	result, err := o.Run(t.Context(), runID)
	require.NoError(t, err)

	assert.Equal(t, []schema.Request{schema.StreamAllRequest(), resend(t, 3), resend(t, 5), resend(t, 6)}, runner.requests)
	assert.Equal(t, []schema.Sequence{1, 2, 3, 4, 5, 6, 7}, seqsOf(result.Records))
	assert.Empty(t, result.Missing)
	assert.Equal(t, 1, result.Passes)
	assert.Equal(t, 4, result.Sessions)
	assert.Equal(t, runID, result.RunID)

	require.Len(t, sink.batches, 1)
	assert.Equal(t, runID.String(), sink.batches[0].RunID)
	assert.Equal(t, result.Records, sink.batches[0].Records)
	assert.Equal(t, uint64(3), metrics.Snapshot().Gaps)
}

func TestRunNoGapsMeansNoResend(t *testing.T) {
	runner := &scriptRunner{reply: func(schema.Request) [][]byte { return frames(3, 1, 2) }}
	sink := &captureSink{}
	o, err := New(runner, sink, DefaultOption())
	require.NoError(t, err)

	result, err := o.Run(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, runner.requests, 1)
	assert.Equal(t, []schema.Sequence{1, 2, 3}, seqsOf(result.Records))
	assert.Zero(t, result.Passes)
}

func TestRunEmptyStream(t *testing.T) {
	runner := &scriptRunner{reply: func(schema.Request) [][]byte { return nil }}
	sink := &captureSink{}
	o, err := New(runner, sink, DefaultOption())
	require.NoError(t, err)

	result, err := o.Run(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	require.Len(t, sink.batches, 1)
	assert.Empty(t, sink.batches[0].Records)
}

func TestRunClosesResendAfterFirstRecord(t *testing.T) {
	runner := &scriptRunner{reply: func(req schema.Request) [][]byte {
		if req.CallType == schema.CallStreamAll {
			return frames(1, 3)
		}
		return frames(2, 2, 2)
	}}
	o, err := New(runner, nil, DefaultOption())
	require.NoError(t, err)

	result, err := o.Run(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []schema.Sequence{1, 2, 3}, seqsOf(result.Records))
}

func TestRunDecodeFailureAbortsBeforeResend(t *testing.T) {
	bad := codec.EncodeRecord(nil, rec(2))
	bad[4] = 'X'
	runner := &scriptRunner{reply: func(schema.Request) [][]byte {
		return [][]byte{frames(1)[0], bad, frames(4)[0]}
	}}
	sink := &captureSink{}
	metrics := obs.NewMetrics()
	o, err := New(runner, sink, Option{MaxPasses: 1, Metrics: metrics})
	require.NoError(t, err)

	_, err = o.Run(t.Context(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrInvalidSide))
	assert.Equal(t, codec.DecodeErrorInvalidSide, codec.KindOf(err))
	assert.Len(t, runner.requests, 1)
	assert.Empty(t, sink.batches)
	assert.Equal(t, uint64(1), metrics.Snapshot().DecodeErrors)
}

func TestRunDecodeFailureDuringResend(t *testing.T) {
	runner := &scriptRunner{reply: func(req schema.Request) [][]byte {
		if req.CallType == schema.CallStreamAll {
			return frames(1, 3)
		}
		return [][]byte{frames(2)[0][:9]}
	}}
	sink := &captureSink{}
	o, err := New(runner, sink, DefaultOption())
	require.NoError(t, err)

	result, err := o.Run(t.Context(), uuid.New())
	assert.True(t, errors.Is(err, exception.ErrRecordTooShort))
	assert.Equal(t, 2, result.Sessions)
	assert.Empty(t, sink.batches)
}

func TestRunSessionFailureAborts(t *testing.T) {
	refused := errors.New("connection refused")
	runner := &scriptRunner{
		reply: func(schema.Request) [][]byte { return nil },
		err:   map[schema.Request]error{schema.StreamAllRequest(): refused},
	}
	sink := &captureSink{}
	o, err := New(runner, sink, DefaultOption())
	require.NoError(t, err)

	_, err = o.Run(t.Context(), uuid.New())
	assert.True(t, errors.Is(err, refused))
	assert.Empty(t, sink.batches)
}

func TestRunUnansweredResendIsReported(t *testing.T) {
	runner := &scriptRunner{reply: func(req schema.Request) [][]byte {
		if req.CallType == schema.CallStreamAll {
			return frames(1, 2, 5)
		}
		if req.Param == 3 {
			return frames(3)
		}
		return nil
	}}
	sink := &captureSink{}
	metrics := obs.NewMetrics()
	o, err := New(runner, sink, Option{MaxPasses: 1, Metrics: metrics})
	require.NoError(t, err)

	result, err := o.Run(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []schema.Sequence{4}, result.Missing)
	assert.Equal(t, []schema.Sequence{1, 2, 3, 5}, seqsOf(result.Records))
	require.Len(t, sink.batches, 1)
	assert.Equal(t, []schema.Sequence{4}, sink.batches[0].Missing)
}

// passScript answers resend 3 with record 6 and resend 2 or 5 with the
// requested record, so every pass uncovers a new gap and leaves 3 behind.
func passScript(req schema.Request) [][]byte {
	if req.CallType == schema.CallStreamAll {
		return frames(1, 4)
	}
	if req.Param == 3 {
		return frames(6)
	}
	return frames(int32(req.Param))
}

func TestRunSinglePassByDefault(t *testing.T) {
	runner := &scriptRunner{reply: passScript}
	o, err := New(runner, nil, DefaultOption())
	require.NoError(t, err)

	result, err := o.Run(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Passes)
	assert.Equal(t, []schema.Sequence{3, 5}, result.Missing)
}

func TestRunRepeatsPassesUntilNoProgress(t *testing.T) {
	runner := &scriptRunner{reply: passScript}
	o, err := New(runner, nil, Option{MaxPasses: 0})
	require.NoError(t, err)

	result, err := o.Run(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Passes)
	assert.Equal(t, []schema.Sequence{3}, result.Missing)
	assert.Equal(t, []schema.Sequence{1, 2, 4, 5, 6, 6, 6}, seqsOf(result.Records))
}

func TestRunDuplicatePolicy(t *testing.T) {
	reply := func(schema.Request) [][]byte { return frames(1, 2, 2, 3) }

	keep, err := New(&scriptRunner{reply: reply}, nil, Option{MaxPasses: 1, Duplicates: ledger.DuplicateKeep})
	require.NoError(t, err)
	result, err := keep.Run(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []schema.Sequence{1, 2, 2, 3}, seqsOf(result.Records))

	drop, err := New(&scriptRunner{reply: reply}, nil, Option{MaxPasses: 1, Duplicates: ledger.DuplicateDrop})
	require.NoError(t, err)
	result, err = drop.Run(t.Context(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []schema.Sequence{1, 2, 3}, seqsOf(result.Records))
}

func wideScript(req schema.Request) [][]byte {
	if req.CallType == schema.CallStreamAll {
		return frames(1, 260)
	}
	return frames(int32(req.Param))
}

func TestRunOutOfRangeFails(t *testing.T) {
	runner := &scriptRunner{reply: wideScript}
	sink := &captureSink{}
	o, err := New(runner, sink, DefaultOption())
	require.NoError(t, err)

	_, err = o.Run(t.Context(), uuid.New())
	assert.True(t, errors.Is(err, exception.ErrSequenceOutOfRange))
	assert.Empty(t, sink.batches)
}

func TestRunOutOfRangeSkips(t *testing.T) {
	runner := &scriptRunner{reply: wideScript}
	o, err := New(runner, nil, Option{MaxPasses: 0, OutOfRange: OutOfRangeSkip})
	require.NoError(t, err)

	result, err := o.Run(t.Context(), uuid.New())
	require.NoError(t, err)
	want := []schema.Sequence{256, 257, 258, 259}
	assert.Equal(t, want, result.Missing)
	assert.Equal(t, want, result.Skipped)
	assert.Equal(t, 1, result.Passes)
	assert.Len(t, runner.requests, 1+254)
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, nil, DefaultOption())
	assert.True(t, errors.Is(err, exception.ErrNilInstance))

	_, err = New(&scriptRunner{}, nil, Option{MaxPasses: -1})
	assert.True(t, errors.Is(err, exception.ErrInvalidArgument))
}

func TestParseOutOfRangePolicy(t *testing.T) {
	p, ok := ParseOutOfRangePolicy("skip")
	assert.True(t, ok)
	assert.Equal(t, OutOfRangeSkip, p)

	p, ok = ParseOutOfRangePolicy("")
	assert.True(t, ok)
	assert.Equal(t, OutOfRangeFail, p)

	_, ok = ParseOutOfRangePolicy("retry")
	assert.False(t, ok)
}
