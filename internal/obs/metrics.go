package obs

import (
	"sync/atomic"
	"time"

	"pricefeed/internal/schema"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pricefeed"

// Session outcomes.
const (
	OutcomeClosed = "closed"
	OutcomeFailed = "failed"
)

// Metrics collects run counters. Every value is exported to a private
// prometheus registry and mirrored in atomic counters for the run summary.
type Metrics struct {
	registry *prometheus.Registry

	sessions        *prometheus.CounterVec
	frames          *prometheus.CounterVec
	decodeErrors    *prometheus.CounterVec
	gaps            prometheus.Counter
	unresolved      prometheus.Gauge
	sessionDuration *prometheus.HistogramVec

	sessionCount   uint64
	failedSessions uint64
	frameCount     uint64
	decodeCount    uint64
	gapCount       uint64
	sessionLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Sessions       uint64
	FailedSessions uint64
	Frames         uint64
	DecodeErrors   uint64
	Gaps           uint64
	SessionLatency LatencySnapshot
}

// NewMetrics allocates a metrics container with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions run against the feed server by call type and outcome.",
		}, []string{"call", "outcome"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Record frames received by call type.",
		}, []string{"call"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Record frames rejected by the codec by reason.",
		}, []string{"reason"}),
		gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gaps_detected_total",
			Help:      "Missing sequences detected before resend passes.",
		}),
		unresolved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unresolved_sequences",
			Help:      "Sequences still missing when the run finished.",
		}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of a session from dial to close.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
	}
	m.registry.MustRegister(m.sessions, m.frames, m.decodeErrors, m.gaps, m.unresolved, m.sessionDuration)
	return m
}

// Registry exposes the prometheus registry for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSession records one finished session.
func (m *Metrics) ObserveSession(call schema.CallType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(call.String(), outcome).Inc()
	m.sessionDuration.WithLabelValues(call.String()).Observe(d.Seconds())
	atomic.AddUint64(&m.sessionCount, 1)
	if outcome == OutcomeFailed {
		atomic.AddUint64(&m.failedSessions, 1)
	}
	m.sessionLatency.Observe(d)
}

// IncFrame records a received record frame.
func (m *Metrics) IncFrame(call schema.CallType) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(call.String()).Inc()
	atomic.AddUint64(&m.frameCount, 1)
}

// IncDecodeError records a rejected record frame.
func (m *Metrics) IncDecodeError(reason string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(reason).Inc()
	atomic.AddUint64(&m.decodeCount, 1)
}

// AddGaps records newly detected missing sequences.
func (m *Metrics) AddGaps(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.gaps.Add(float64(n))
	atomic.AddUint64(&m.gapCount, uint64(n))
}

// SetUnresolved records how many sequences remain missing.
func (m *Metrics) SetUnresolved(n int) {
	if m == nil {
		return
	}
	m.unresolved.Set(float64(n))
}

// Snapshot returns a copy of the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Sessions:       atomic.LoadUint64(&m.sessionCount),
		FailedSessions: atomic.LoadUint64(&m.failedSessions),
		Frames:         atomic.LoadUint64(&m.frameCount),
		DecodeErrors:   atomic.LoadUint64(&m.decodeCount),
		Gaps:           atomic.LoadUint64(&m.gapCount),
		SessionLatency: m.sessionLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
