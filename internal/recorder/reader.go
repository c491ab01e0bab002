package recorder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"pricefeed/internal/schema"

	"github.com/yanun0323/errors"
)

var (
	ErrChecksumMismatch = errors.New("capture: checksum mismatch")
	ErrTornFrame        = errors.New("capture: frame cut short")
)

// ReaderOptions controls frame verification.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Frame is one captured frame. Payload is reused by the next Scan.
type Frame struct {
	Header  schema.FrameHeader
	Payload []byte
}

// Reader walks the frames of a single segment in the manner of bufio.Scanner.
type Reader struct {
	src    *bufio.Reader
	opts   ReaderOptions
	head   [recordHeaderSize]byte
	tail   [recordChecksumSize]byte
	body   []byte
	offset int64
	frame  Frame
	err    error
	done   bool
}

func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{src: bufio.NewReader(r), opts: opts}
}

// Scan advances to the next frame. It returns false at the end of the
// segment or after the first error, which Err then reports.
func (r *Reader) Scan() bool {
	if r.done || r.err != nil {
		return false
	}

	at := r.offset
	n, err := io.ReadFull(r.src, r.head[:])
	r.offset += int64(n)
	if err == io.EOF {
		r.done = true
		return false
	}
	if err != nil {
		return r.fail(at, err)
	}

	header, size, err := decodeRecordHeader(r.head[:])
	if err != nil {
		return r.fail(at, err)
	}
	if r.opts.MaxPayloadSize > 0 && size > uint32(r.opts.MaxPayloadSize) {
		return r.fail(at, fmt.Errorf("payload %d bytes: %w", size, ErrPayloadTooLarge))
	}

	r.body = slices.Grow(r.body[:0], int(size))[:size]
	if err := r.fill(r.body); err != nil {
		return r.fail(at, err)
	}
	if err := r.fill(r.tail[:]); err != nil {
		return r.fail(at, err)
	}
	if !r.opts.DisableChecksum && binary.LittleEndian.Uint32(r.tail[:]) != checksum(r.head[:], r.body) {
		return r.fail(at, ErrChecksumMismatch)
	}

	r.frame = Frame{Header: header, Payload: r.body}
	return true
}

func (r *Reader) Frame() Frame { return r.frame }

func (r *Reader) Err() error { return r.err }

// Offset is the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.offset }

func (r *Reader) fill(p []byte) error {
	n, err := io.ReadFull(r.src, p)
	r.offset += int64(n)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (r *Reader) fail(at int64, err error) bool {
	if err == io.ErrUnexpectedEOF {
		err = ErrTornFrame
	}
	r.err = fmt.Errorf("frame at offset %d: %w", at, err)
	return false
}
