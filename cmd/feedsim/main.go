package main

import (
	"context"
	"flag"
	"net"
	"os"
	"strconv"
	"strings"

	"pricefeed/internal/chaos"
	"pricefeed/internal/feedsim"
	"pricefeed/internal/schema"
	"pricefeed/internal/store"
	"pricefeed/internal/transport"
	"pricefeed/pkg/exception"
	"pricefeed/pkg/uds"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("feedsim: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	network := flag.String("network", transport.NetworkTCP, "transport: tcp or unix")
	addr := flag.String("addr", "127.0.0.1:3000", "tcp listen address")
	socket := flag.String("socket", "/tmp/pricefeed/feed.sock", "unix socket path")
	input := flag.String("input", "", "serve records from this JSON document instead of generating them")
	count := flag.Int("records", 14, "number of generated records")
	seed := flag.Int64("seed", 1, "seed for generated records")
	drop := flag.String("drop", "", "comma separated sequences left out of stream-all replies")
	corrupt := flag.String("corrupt", "", "comma separated sequences sent with an invalid side")
	chaosSeed := flag.Int64("chaos-seed", 0, "chaos RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "random drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "duplicate probability [0-1]")
	reorderWindow := flag.Int("reorder-window", 1, "reorder window (>=1)")
	maxDelay := flag.Duration("max-delay", 0, "max delay before each frame")
	split := flag.Bool("split", false, "write every frame in two halves")
	flag.Parse()

	records := feedsim.GenerateRecords(*count, *seed)
	if *input != "" {
		loaded, err := store.ReadJSONFile(*input)
		if err != nil {
			return err
		}
		records = loaded
	}
	dropSeqs, err := parseSequences(*drop)
	if err != nil {
		return errors.Wrap(err, "parse -drop")
	}
	corruptSeqs, err := parseSequences(*corrupt)
	if err != nil {
		return errors.Wrap(err, "parse -corrupt")
	}

	sim, err := feedsim.New(feedsim.Option{
		Records: records,
		Drop:    dropSeqs,
		Corrupt: corruptSeqs,
		Chaos: chaos.Config{
			Seed:          *chaosSeed,
			DropRate:      *dropRate,
			DuplicateRate: *dupRate,
			ReorderWindow: *reorderWindow,
			MaxDelay:      *maxDelay,
		},
		SplitFrames: *split,
	})
	if err != nil {
		return err
	}

	ln, err := listen(*network, *addr, *socket)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sys.Shutdown()
		logs.Info("shutdown signal received")
		cancel()
	}()

	logs.Infof("feedsim listening on %s %s, records: %d, drop: %v, corrupt: %v", *network, ln.Addr(), len(records), dropSeqs, corruptSeqs)
	return sim.Serve(ctx, ln)
}

func listen(network, addr, socket string) (net.Listener, error) {
	switch network {
	case transport.NetworkTCP:
		return net.Listen(transport.NetworkTCP, addr)
	case transport.NetworkUnix:
		server, err := uds.NewServer(socket, 0)
		if err != nil {
			return nil, err
		}
		return server.Listen()
	default:
		return nil, errors.Wrapf(exception.ErrUnknownNetwork, "network: %s", network)
	}
}

func parseSequences(s string) ([]schema.Sequence, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]schema.Sequence, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, errors.Wrapf(exception.ErrInvalidSequence, "seq: %d", v)
		}
		out = append(out, schema.Sequence(v))
	}
	return out, nil
}
