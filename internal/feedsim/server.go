package feedsim

import (
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"sync"
	"time"

	"pricefeed/internal/chaos"
	"pricefeed/internal/codec"
	"pricefeed/internal/schema"

	"github.com/yanun0323/logs"
)

const defaultRequestTimeout = 10 * time.Second

// Option configures a simulated feed server.
type Option struct {
	Records []schema.Record
	// Drop lists sequences left out of stream-all replies. Resend still
	// serves them.
	Drop []schema.Sequence
	// Corrupt lists sequences sent with an invalid side byte.
	Corrupt []schema.Sequence
	// Chaos is applied to every stream-all reply.
	Chaos chaos.Config
	// SplitFrames writes every frame in two halves.
	SplitFrames    bool
	RequestTimeout time.Duration
}

// Server answers stream-all and resend requests the way the price feed does:
// one request per connection, reply, then close.
type Server struct {
	opt     Option
	records []schema.Record
	bySeq   map[schema.Sequence]schema.Record
	drop    map[schema.Sequence]struct{}
	corrupt map[schema.Sequence]struct{}

	mu       sync.Mutex
	requests []schema.Request
}

// New validates opt and builds the server.
func New(opt Option) (*Server, error) {
	if err := opt.Chaos.Validate(); err != nil {
		return nil, err
	}
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = defaultRequestTimeout
	}

	s := &Server{
		opt:     opt,
		records: slices.Clone(opt.Records),
		bySeq:   make(map[schema.Sequence]schema.Record, len(opt.Records)),
		drop:    toSet(opt.Drop),
		corrupt: toSet(opt.Corrupt),
	}
	for _, rec := range opt.Records {
		if _, ok := s.bySeq[rec.Sequence]; !ok {
			s.bySeq[rec.Sequence] = rec
		}
	}
	return s, nil
}

func toSet(seqs []schema.Sequence) map[schema.Sequence]struct{} {
	set := make(map[schema.Sequence]struct{}, len(seqs))
	for _, seq := range seqs {
		set[seq] = struct{}{}
	}
	return set
}

// Requests returns every request served so far, in arrival order.
func (s *Server) Requests() []schema.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Serve accepts connections on ln until ctx is done. It closes ln and
// waits for in-flight connections before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logs.Errorf("feedsim accept error: %+v", err)
			continue
		}
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.handleConn(ctx, c)
		}(conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	buf := make([]byte, codec.RequestSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.opt.RequestTimeout))
	if _, err := io.ReadFull(conn, buf); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			logs.Errorf("feedsim read request error: %+v", err)
		}
		return
	}
	req, _ := codec.DecodeRequest(buf)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	var events []chaos.Event
	switch req.CallType {
	case schema.CallStreamAll:
		events = s.streamAll()
	case schema.CallResend:
		if rec, ok := s.bySeq[schema.Sequence(req.Param)]; ok {
			events = []chaos.Event{{Record: rec}}
		}
	default:
		logs.Errorf("feedsim unknown call type: %d", req.CallType)
		return
	}

	logs.Infof("feedsim %s param: %d, frames: %d", req.CallType, req.Param, len(events))
	frame := make([]byte, 0, codec.RecordSize)
	for _, ev := range events {
		if ev.Delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(ev.Delay):
			}
		}
		frame = s.encode(frame[:0], ev.Record)
		if err := s.write(conn, frame); err != nil {
			return
		}
	}
}

func (s *Server) streamAll() []chaos.Event {
	records := make([]schema.Record, 0, len(s.records))
	for _, rec := range s.records {
		if _, ok := s.drop[rec.Sequence]; ok {
			continue
		}
		records = append(records, rec)
	}
	var engine *chaos.Engine
	if s.opt.Chaos.Enabled() {
		// Validated in New.
		engine, _ = chaos.NewEngine(s.opt.Chaos)
	}
	return engine.Apply(records)
}

func (s *Server) encode(dst []byte, rec schema.Record) []byte {
	dst = codec.EncodeRecord(dst, rec)
	if _, ok := s.corrupt[rec.Sequence]; ok {
		dst[4] = 'X'
	}
	return dst
}

func (s *Server) write(conn net.Conn, frame []byte) error {
	if !s.opt.SplitFrames {
		_, err := conn.Write(frame)
		return err
	}
	half := len(frame) / 2
	if _, err := conn.Write(frame[:half]); err != nil {
		return err
	}
	_, err := conn.Write(frame[half:])
	return err
}
