package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"pricefeed/internal/codec"
	"pricefeed/internal/ledger"
	"pricefeed/internal/recorder"
	"pricefeed/internal/report"
	"pricefeed/internal/schema"
	"pricefeed/internal/store"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

func main() {
	dir := flag.String("dir", "capture", "capture directory")
	prefix := flag.String("prefix", "", "capture file prefix (default: capture)")
	runTag := flag.String("run", "", "only replay files of this run tag")
	traceID := flag.Uint64("trace", 0, "only replay frames of this session trace id (0=all)")
	noChecksum := flag.Bool("no-checksum", false, "disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "decode record frames")
	quiet := flag.Bool("quiet", false, "do not print frames")
	rebuildPath := flag.String("rebuild", "", "rebuild the sorted JSON document into this path")
	duplicates := flag.String("duplicates", "keep", "duplicate sequences on rebuild: keep or drop")
	priceScale := flag.Int("price-scale", 0, "implied decimal places of prices")
	flag.Parse()

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		RunTag:          *runTag,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
		TraceID:         *traceID,
	})
	if err != nil {
		logs.Errorf("playback init failed: %+v", err)
		os.Exit(1)
	}
	policy, ok := ledger.ParseDuplicatePolicy(*duplicates)
	if !ok {
		logs.Errorf("unknown duplicate policy: %s", *duplicates)
		os.Exit(1)
	}

	var out io.Writer = os.Stdout
	if *quiet {
		out = io.Discard
	}
	scale := int32(*priceScale)
	opt := replayOption{decode: *decode, priceScale: scale}

	l, stats, err := replay(context.Background(), pb, ledger.New(policy), out, opt)
	if err != nil {
		logs.Errorf("playback run failed: %+v", err)
		os.Exit(1)
	}
	logs.Infof("replayed %d frames, requests: %d, records: %d, undecodable: %d", stats.frames, stats.requests, stats.records, stats.undecodable)

	if *rebuildPath == "" {
		return
	}
	records := l.SortedRecords()
	sink, err := store.NewJSONFile(*rebuildPath)
	if err == nil {
		err = sink.Write(context.Background(), store.Batch{
			RunID:       uuid.NewString(),
			Records:     records,
			Missing:     l.MissingSequences(),
			CompletedAt: time.Now(),
		})
	}
	if err != nil {
		logs.Errorf("rebuild failed: %+v", err)
		os.Exit(1)
	}
	logs.Infof("rebuilt %d records into %s, missing: %v", len(records), *rebuildPath, l.MissingSequences())
	_ = report.Write(os.Stdout, report.Summarize(records, scale))
}

type replayOption struct {
	decode     bool
	priceScale int32
}

type replayStats struct {
	frames      int
	requests    int
	records     int
	undecodable int
}

// replay prints every captured frame and feeds decodable records into l.
func replay(ctx context.Context, pb *recorder.Playback, l *ledger.Ledger, out io.Writer, opt replayOption) (*ledger.Ledger, replayStats, error) {
	var stats replayStats
	err := pb.Run(ctx, func(header schema.FrameHeader, payload []byte) error {
		stats.frames++
		fmt.Fprintf(out, "%06d trace=%016x type=%s call=%s index=%d ts_recv=%d len=%d\n",
			stats.frames, header.TraceID, header.Type, header.CallType, header.Index, header.TsRecv, len(payload))

		switch header.Type {
		case schema.FrameRequest:
			stats.requests++
			if req, ok := codec.DecodeRequest(payload); ok && opt.decode {
				fmt.Fprintf(out, "  request call=%s param=%d\n", req.CallType, req.Param)
			}
		case schema.FrameRecord:
			rec, err := codec.DecodeRecord(payload)
			if err != nil {
				stats.undecodable++
				if opt.decode {
					fmt.Fprintf(out, "  decode failed: %s\n", codec.KindOf(err))
				}
				return nil
			}
			stats.records++
			l.Insert(rec)
			if opt.decode {
				fmt.Fprintf(out, "  record seq=%d symbol=%s side=%s qty=%d price=%s\n",
					rec.Sequence, rec.Symbol, rec.Side, rec.Quantity, report.Price(rec.Price, opt.priceScale))
			}
		}
		return nil
	})
	if err != nil {
		return l, stats, errors.Wrap(err, "replay capture")
	}
	return l, stats, nil
}
