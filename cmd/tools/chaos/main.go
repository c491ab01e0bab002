package main

import (
	"context"
	"flag"
	"os"
	"time"

	"pricefeed/internal/chaos"
	"pricefeed/internal/codec"
	"pricefeed/internal/recorder"
	"pricefeed/internal/schema"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

func main() {
	inputDir := flag.String("input-dir", "capture", "input capture directory")
	inputPrefix := flag.String("input-prefix", "", "input capture file prefix (default: capture)")
	inputRun := flag.String("input-run", "", "only read files of this run tag")
	outputDir := flag.String("output-dir", "capture_chaos", "output capture directory")
	outputPrefix := flag.String("output-prefix", "chaos", "output capture file prefix")
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "duplicate probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 1, "reorder window (>=1)")
	maxDelay := flag.Duration("max-delay", 0, "max receive delay")
	noChecksum := flag.Bool("no-checksum", false, "disable checksum validation")
	flag.Parse()

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             *inputDir,
		FilePrefix:      *inputPrefix,
		RunTag:          *inputRun,
		DisableChecksum: *noChecksum,
	})
	if err != nil {
		fatal("playback init failed", err)
	}

	engine, err := chaos.NewEngine(chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		ReorderWindow: *reorderWindow,
		MaxDelay:      *maxDelay,
	})
	if err != nil {
		fatal("chaos config invalid", err)
	}

	outCfg := recorder.DefaultConfig(*outputDir, "")
	outCfg.FilePrefix = *outputPrefix
	writer, err := recorder.NewWriter(outCfg)
	if err != nil {
		fatal("writer init failed", err)
	}
	ctx := context.Background()
	if err := writer.Start(ctx); err != nil {
		fatal("writer start failed", err)
	}

	m := &mangler{writer: writer, engine: engine}
	if err := m.run(ctx, pb); err != nil {
		fatal("rewrite failed", err)
	}
	if err := writer.Close(); err != nil {
		fatal("writer close failed", err)
	}
	logs.Infof("wrote %d frames into %s", writer.Written(), *outputDir)
}

func fatal(msg string, err error) {
	logs.Errorf("%s: %+v", msg, err)
	os.Exit(1)
}

type frameAppender interface {
	TryAppend(header schema.FrameHeader, payload []byte) error
}

// mangler passes request frames through and runs record frames through the
// chaos engine. Undecodable record frames are copied unchanged.
type mangler struct {
	writer frameAppender
	engine *chaos.Engine
	index  uint32
	last   schema.FrameHeader
	buf    []byte
}

func (m *mangler) run(ctx context.Context, pb *recorder.Playback) error {
	err := pb.Run(ctx, func(header schema.FrameHeader, payload []byte) error {
		if header.Type != schema.FrameRecord {
			return m.append(header, payload)
		}
		rec, err := codec.DecodeRecord(payload)
		if err != nil {
			return m.append(header, payload)
		}
		m.last = header
		return m.emit(m.engine.Process(rec))
	})
	if err != nil {
		return err
	}
	return m.emit(m.engine.Flush())
}

func (m *mangler) emit(events []chaos.Event) error {
	for _, ev := range events {
		header := m.last
		header.TsRecv += int64(ev.Delay)
		m.buf = codec.EncodeRecord(m.buf, ev.Record)
		if err := m.append(header, m.buf); err != nil {
			return err
		}
	}
	return nil
}

func (m *mangler) append(header schema.FrameHeader, payload []byte) error {
	m.index++
	header.Index = m.index
	for {
		err := m.writer.TryAppend(header, payload)
		if !errors.Is(err, recorder.ErrQueueFull) {
			return err
		}
		time.Sleep(time.Millisecond)
	}
}
