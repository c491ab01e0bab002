package chaos

import (
	"math/rand/v2"
	"time"

	"pricefeed/internal/schema"
	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

// Event is a record to send once Delay has passed.
type Event struct {
	Record schema.Record
	Delay  time.Duration
}

// Config describes how a simulated feed misbehaves. Rates are probabilities
// per record. A ReorderWindow of n shuffles records within groups of up to n.
type Config struct {
	Seed          int64         `json:"seed"`
	DropRate      float64       `json:"dropRate"`
	DuplicateRate float64       `json:"duplicateRate"`
	ReorderWindow int           `json:"reorderWindow"`
	MaxDelay      time.Duration `json:"-"`
}

func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.ReorderWindow > 1 || c.MaxDelay > 0
}

func (c Config) Validate() error {
	for name, rate := range map[string]float64{"dropRate": c.DropRate, "duplicateRate": c.DuplicateRate} {
		if rate < 0 || rate > 1 {
			return errors.Wrapf(exception.ErrInvalidConfig, "%s %v is outside [0, 1]", name, rate)
		}
	}
	if c.ReorderWindow < 0 {
		return errors.Wrapf(exception.ErrInvalidConfig, "reorderWindow %d is negative", c.ReorderWindow)
	}
	if c.MaxDelay < 0 {
		return errors.Wrapf(exception.ErrInvalidConfig, "maxDelay %s is negative", c.MaxDelay)
	}
	return nil
}

// Engine perturbs one record stream. A nil *Engine passes records through
// untouched. Engines are not safe for concurrent use.
type Engine struct {
	cfg    Config
	rng    *rand.Rand
	window []Event
}

// NewEngine builds an engine. A zero seed picks one from the clock.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ReorderWindow = max(cfg.ReorderWindow, 1)
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	seed := uint64(cfg.Seed)
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Apply runs a complete stream and flushes the reorder window at the end.
func (e *Engine) Apply(records []schema.Record) []Event {
	out := make([]Event, 0, len(records))
	for _, rec := range records {
		out = append(out, e.Process(rec)...)
	}
	return append(out, e.Flush()...)
}

// Process feeds one record and returns whatever is ready to send.
func (e *Engine) Process(rec schema.Record) []Event {
	if e == nil {
		return []Event{{Record: rec}}
	}
	if e.hit(e.cfg.DropRate) {
		return nil
	}

	ev := Event{Record: rec}
	if e.cfg.MaxDelay > 0 {
		ev.Delay = time.Duration(e.rng.Int64N(int64(e.cfg.MaxDelay) + 1))
	}

	e.window = append(e.window, ev)
	if len(e.window) < e.cfg.ReorderWindow {
		return nil
	}
	return e.emit(e.take())
}

// Flush drains the reorder window in random order.
func (e *Engine) Flush() []Event {
	if e == nil {
		return nil
	}
	var out []Event
	for len(e.window) > 0 {
		out = append(out, e.emit(e.take())...)
	}
	return out
}

func (e *Engine) take() Event {
	i := e.rng.IntN(len(e.window))
	ev := e.window[i]
	e.window[i] = e.window[len(e.window)-1]
	e.window = e.window[:len(e.window)-1]
	return ev
}

func (e *Engine) emit(ev Event) []Event {
	if e.hit(e.cfg.DuplicateRate) {
		return []Event{ev, ev}
	}
	return []Event{ev}
}

func (e *Engine) hit(rate float64) bool {
	return rate > 0 && e.rng.Float64() < rate
}
