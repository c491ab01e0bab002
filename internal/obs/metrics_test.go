package obs

import (
	"testing"
	"time"

	"pricefeed/internal/schema"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsObserveSession(t *testing.T) {
	m := NewMetrics()
	m.ObserveSession(schema.CallStreamAll, OutcomeClosed, 20*time.Millisecond)
	m.ObserveSession(schema.CallResend, OutcomeClosed, 10*time.Millisecond)
	m.ObserveSession(schema.CallResend, OutcomeFailed, 30*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("stream_all", OutcomeClosed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("resend", OutcomeFailed)))

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.Sessions)
	assert.Equal(t, uint64(1), snap.FailedSessions)
	assert.Equal(t, uint64(3), snap.SessionLatency.Count)
	assert.Equal(t, 10*time.Millisecond, snap.SessionLatency.Min)
	assert.Equal(t, 30*time.Millisecond, snap.SessionLatency.Max)
	assert.Equal(t, 20*time.Millisecond, snap.SessionLatency.Avg)
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.IncFrame(schema.CallStreamAll)
	m.IncFrame(schema.CallStreamAll)
	m.IncDecodeError("InvalidSide")
	m.AddGaps(3)
	m.AddGaps(0)
	m.SetUnresolved(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.frames.WithLabelValues("stream_all")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodeErrors.WithLabelValues("InvalidSide")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.gaps))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.unresolved))

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.Frames)
	assert.Equal(t, uint64(1), snap.DecodeErrors)
	assert.Equal(t, uint64(3), snap.Gaps)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSession(schema.CallStreamAll, OutcomeClosed, time.Second)
	m.IncFrame(schema.CallResend)
	m.IncDecodeError("x")
	m.AddGaps(1)
	m.SetUnresolved(1)
	assert.Equal(t, Snapshot{}, m.Snapshot())
	assert.Nil(t, m.Registry())
}

func TestTraceGenerator(t *testing.T) {
	runID := uuid.MustParse("01020304-0000-4000-8000-000000000000")
	g := NewTraceGenerator(runID)
	assert.Equal(t, uint64(0x01020304_00000001), g.Next())
	assert.Equal(t, uint64(0x01020304_00000002), g.Next())

	var nilGen *TraceGenerator
	assert.Zero(t, nilGen.Next())
}
