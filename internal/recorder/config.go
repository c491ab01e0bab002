package recorder

import (
	"fmt"
	"path/filepath"

	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

const (
	DefaultFilePrefix = "capture"
	segmentExt        = ".pfc"

	defaultSegmentMaxBytes int64 = 16 << 20
	defaultQueueSize             = 1024
	defaultBufferSize            = 32 << 10
)

// Config describes where and how a Writer lays out capture segments.
// Segment files are named <prefix>[-<run tag>]-<id>.pfc.
type Config struct {
	Dir             string
	RunTag          string
	FilePrefix      string
	SegmentMaxBytes int64
	QueueSize       int
	BufferSize      int
}

func DefaultConfig(dir string, runTag string) Config {
	return Config{Dir: dir, RunTag: runTag}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.FilePrefix == "" {
		c.FilePrefix = DefaultFilePrefix
	}
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	return c
}

func (c Config) Validate() error {
	switch {
	case c.Dir == "":
		return errors.Wrap(exception.ErrInvalidConfig, "capture dir is empty")
	case c.FilePrefix == "":
		return errors.Wrap(exception.ErrInvalidConfig, "capture file prefix is empty")
	case c.SegmentMaxBytes <= recordHeaderSize+recordChecksumSize:
		return errors.Wrapf(exception.ErrInvalidConfig, "capture segment size %d is too small", c.SegmentMaxBytes)
	case c.QueueSize <= 0:
		return errors.Wrapf(exception.ErrInvalidConfig, "capture queue size %d", c.QueueSize)
	case c.BufferSize <= 0:
		return errors.Wrapf(exception.ErrInvalidConfig, "capture buffer size %d", c.BufferSize)
	}
	return nil
}

func segmentStem(prefix, runTag string) string {
	if runTag == "" {
		return prefix + "-"
	}
	return prefix + "-" + runTag + "-"
}

func segmentName(prefix, runTag string, id uint64) string {
	return fmt.Sprintf("%s%06d%s", segmentStem(prefix, runTag), id, segmentExt)
}

func segmentPattern(dir, prefix, runTag string) string {
	return filepath.Join(dir, segmentStem(prefix, runTag)+"*"+segmentExt)
}
