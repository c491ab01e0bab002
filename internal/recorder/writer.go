package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"pricefeed/internal/schema"

	"github.com/yanun0323/errors"
)

var (
	ErrQueueFull       = errors.New("capture: queue full")
	ErrClosed          = errors.New("capture: writer closed")
	ErrNotStarted      = errors.New("capture: writer not started")
	ErrAlreadyStarted  = errors.New("capture: writer already started")
	ErrPayloadTooLarge = errors.New("capture: payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

const (
	writerIdle int32 = iota
	writerRunning
	writerClosed
)

type pending struct {
	header  schema.FrameHeader
	payload []byte
}

// Writer persists frames handed to TryAppend on a background goroutine.
// TryAppend never blocks the session that produced the frame; a full queue
// drops the frame and reports ErrQueueFull.
type Writer struct {
	cfg Config

	mu    sync.RWMutex
	state int32
	queue chan pending
	done  chan struct{}

	written atomic.Uint64
	fault   atomic.Pointer[error]

	// owned by the loop goroutine
	seg    *segment
	nextID uint64
	head   [recordHeaderSize]byte
	tail   [recordChecksumSize]byte
}

func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create capture dir")
	}
	return &Writer{
		cfg:   cfg,
		queue: make(chan pending, cfg.QueueSize),
		done:  make(chan struct{}),
	}, nil
}

// Start launches the loop. Cancelling ctx stops it after the frames already
// queued are written.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case writerRunning:
		return ErrAlreadyStarted
	case writerClosed:
		return ErrClosed
	}
	w.state = writerRunning
	go w.loop(ctx)
	return nil
}

// Close flushes the open segment and returns the first write error.
func (w *Writer) Close() error {
	w.mu.Lock()
	prev := w.state
	if prev != writerClosed {
		w.state = writerClosed
		close(w.queue)
	}
	w.mu.Unlock()

	if prev == writerRunning {
		<-w.done
	}
	return w.Err()
}

func (w *Writer) Err() error {
	if p := w.fault.Load(); p != nil {
		return *p
	}
	return nil
}

// Written reports how many frames reached a segment buffer.
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

// TryAppend copies payload onto the queue.
func (w *Writer) TryAppend(header schema.FrameHeader, payload []byte) error {
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	switch w.state {
	case writerIdle:
		return ErrNotStarted
	case writerClosed:
		return ErrClosed
	}
	if err := w.Err(); err != nil {
		return err
	}

	select {
	case <-w.done:
		return ErrClosed
	case w.queue <- pending{header: header, payload: append([]byte(nil), payload...)}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Writer) loop(ctx context.Context) {
	defer close(w.done)
	defer func() { w.fail(w.seg.close()) }()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case p, ok := <-w.queue:
			if !ok || !w.persist(p) {
				return
			}
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case p, ok := <-w.queue:
			if !ok || !w.persist(p) {
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) persist(p pending) bool {
	if err := w.store(p); err != nil {
		w.fail(err)
		return false
	}
	w.written.Add(1)
	return true
}

func (w *Writer) store(p pending) error {
	size := int64(recordHeaderSize + len(p.payload) + recordChecksumSize)
	if w.seg == nil || w.seg.size+size > w.cfg.SegmentMaxBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	encodeHeader(w.head[:], p.header, len(p.payload))
	binary.LittleEndian.PutUint32(w.tail[:], checksum(w.head[:], p.payload))
	return w.seg.append(w.head[:], p.payload, w.tail[:])
}

func (w *Writer) rotate() error {
	if err := w.seg.close(); err != nil {
		return err
	}
	w.seg = nil

	for {
		w.nextID++
		path := filepath.Join(w.cfg.Dir, segmentName(w.cfg.FilePrefix, w.cfg.RunTag, w.nextID))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "open segment")
		}
		w.seg = &segment{file: file, buf: bufio.NewWriterSize(file, w.cfg.BufferSize)}
		return nil
	}
}

func (w *Writer) fail(err error) {
	if err != nil {
		w.fault.CompareAndSwap(nil, &err)
	}
}

type segment struct {
	file *os.File
	buf  *bufio.Writer
	size int64
}

func (s *segment) append(parts ...[]byte) error {
	for _, part := range parts {
		n, err := s.buf.Write(part)
		s.size += int64(n)
		if err != nil {
			return errors.Wrap(err, "write segment")
		}
	}
	return nil
}

func (s *segment) close() error {
	if s == nil {
		return nil
	}
	err := s.buf.Flush()
	if err == nil {
		err = s.file.Sync()
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
