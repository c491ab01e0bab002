package obs

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/google/uuid"
)

// TraceGenerator hands out session trace IDs scoped to one run.
// The high 32 bits come from the run ID, the low 32 bits count sessions.
type TraceGenerator struct {
	prefix uint64
	next   uint64
}

// NewTraceGenerator derives the ID prefix from runID.
func NewTraceGenerator(runID uuid.UUID) *TraceGenerator {
	return &TraceGenerator{prefix: uint64(binary.BigEndian.Uint32(runID[:4])) << 32}
}

// Next returns the next trace ID.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return g.prefix | (atomic.AddUint64(&g.next, 1) & 0xFFFFFFFF)
}
