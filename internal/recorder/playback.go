package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"pricefeed/internal/schema"
	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

// PlaybackConfig selects the segments and frames to replay.
type PlaybackConfig struct {
	Dir             string
	FilePrefix      string
	RunTag          string
	DisableChecksum bool
	MaxPayloadSize  int

	// TraceID limits playback to one session; zero replays all of them.
	TraceID uint64
}

func (c PlaybackConfig) Validate() error {
	if c.Dir == "" {
		return errors.Wrap(exception.ErrInvalidConfig, "playback dir is empty")
	}
	if c.MaxPayloadSize < 0 {
		return errors.Wrapf(exception.ErrInvalidConfig, "playback max payload %d", c.MaxPayloadSize)
	}
	return nil
}

// Handler receives each replayed frame. The payload is only valid during the call.
type Handler func(header schema.FrameHeader, payload []byte) error

// Playback replays capture segments in name order.
type Playback struct {
	cfg PlaybackConfig
}

func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = DefaultFilePrefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg}, nil
}

// Segments lists the segment files playback would read.
func (p *Playback) Segments() ([]string, error) {
	if _, err := os.Stat(p.cfg.Dir); err != nil {
		return nil, errors.Wrap(err, "open capture dir")
	}
	paths, err := filepath.Glob(segmentPattern(p.cfg.Dir, p.cfg.FilePrefix, p.cfg.RunTag))
	if err != nil {
		return nil, errors.Wrap(err, "list segments")
	}
	slices.Sort(paths)
	return paths, nil
}

func (p *Playback) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.Wrap(exception.ErrNilInstance, "playback handler")
	}
	paths, err := p.Segments()
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := p.replay(ctx, path, handler); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) replay(ctx context.Context, path string, handler Handler) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open segment")
	}
	defer file.Close()

	r := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})
	for r.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := r.Frame()
		if p.cfg.TraceID != 0 && f.Header.TraceID != p.cfg.TraceID {
			continue
		}
		if err := handler(f.Header, f.Payload); err != nil {
			return err
		}
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("replay %s: %w", filepath.Base(path), err)
	}
	return nil
}
