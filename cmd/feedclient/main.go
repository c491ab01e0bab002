package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"pricefeed/internal/config"
	"pricefeed/internal/obs"
	"pricefeed/internal/reassembly"
	"pricefeed/internal/recorder"
	"pricefeed/internal/report"
	"pricefeed/internal/session"
	"pricefeed/internal/store"
	"pricefeed/internal/transport"
	"pricefeed/pkg/conn"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("feedclient: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "JSON config file (optional)")
	host := flag.String("host", "", "feed server host (default localhost)")
	port := flag.Int("port", 0, "feed server port (default 3000)")
	network := flag.String("network", "", "transport: tcp or unix")
	socket := flag.String("socket", "", "unix socket path")
	output := flag.String("output", "", "output JSON path (default output/output.json)")
	maxPasses := flag.Int("max-passes", 1, "resend passes, 0 repeats until complete")
	duplicates := flag.String("duplicates", "", "duplicate sequences: keep or drop")
	outOfRange := flag.String("out-of-range", "", "sequences above 255: fail or skip")
	captureDir := flag.String("capture-dir", "", "capture raw frames into this directory")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this address")
	pyroscopeAddr := flag.String("pyroscope", "", "pyroscope server address")
	priceScale := flag.Int("price-scale", 0, "implied decimal places of prices in the summary")
	flag.Parse()

	fileCfg, err := config.Read(*configPath)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			fileCfg.Feed.Host = *host
		case "port":
			fileCfg.Feed.Port = *port
		case "network":
			fileCfg.Feed.Network = *network
		case "socket":
			fileCfg.Feed.SocketPath = *socket
			if *network == "" {
				fileCfg.Feed.Network = transport.NetworkUnix
			}
		case "output":
			fileCfg.Output.Path = *output
		case "max-passes":
			fileCfg.Reassembly.MaxPasses = maxPasses
		case "duplicates":
			fileCfg.Reassembly.Duplicates = *duplicates
		case "out-of-range":
			fileCfg.Reassembly.OutOfRange = *outOfRange
		case "capture-dir":
			fileCfg.Capture.Dir = *captureDir
		case "metrics-addr":
			fileCfg.Metrics.Addr = *metricsAddr
		case "pyroscope":
			fileCfg.Profiling.PyroscopeAddr = *pyroscopeAddr
		}
	})
	cfg, err := fileCfg.Resolve()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	runID := uuid.New()
	logs.Infof("feedclient run %s, server: %s %s:%d%s", runID, cfg.Transport.Network, cfg.Transport.Host, cfg.Transport.Port, cfg.Transport.SocketPath)

	if cfg.Profiling.PyroscopeAddr != "" {
		profiler, err := startProfiler(cfg.Profiling, runID)
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	metrics := obs.NewMetrics()
	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, metrics)
		defer stop()
	}

	dialer, err := transport.New(cfg.Transport)
	if err != nil {
		return err
	}

	var capture session.Capture
	if cfg.Capture != nil {
		capCfg := *cfg.Capture
		capCfg.RunTag = runID.String()[:8]
		writer, err := recorder.NewWriter(capCfg)
		if err != nil {
			return err
		}
		if err := writer.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := writer.Close(); err != nil {
				logs.Errorf("close capture writer, err: %+v", err)
			}
			logs.Infof("captured %d frames into %s", writer.Written(), capCfg.Dir)
		}()
		capture = writer
	}

	ctrl, err := session.New(dialer, session.Option{
		ReadTimeout: cfg.ReadTimeout,
		Capture:     capture,
		Metrics:     metrics,
		Traces:      obs.NewTraceGenerator(runID),
	})
	if err != nil {
		return err
	}

	sinks, closeSinks, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	opt := cfg.Reassembly
	opt.Metrics = metrics
	orchestrator, err := reassembly.New(ctrl, sinks, opt)
	if err != nil {
		return err
	}

	result, err := orchestrator.Run(ctx, runID)
	if err != nil {
		return err
	}

	snap := metrics.Snapshot()
	logs.Infof("summary run %s: records %d, missing %d, skipped %d, passes %d, sessions %d (failed %d), frames %d, gaps %d, session latency avg %s max %s",
		runID, len(result.Records), len(result.Missing), len(result.Skipped), result.Passes, result.Sessions,
		snap.FailedSessions, snap.Frames, snap.Gaps, snap.SessionLatency.Avg, snap.SessionLatency.Max)
	return report.Write(os.Stdout, report.Summarize(result.Records, int32(*priceScale)))
}

func buildSinks(cfg config.Loaded) (store.Multi, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	jsonSink, err := store.NewJSONFile(cfg.OutputPath)
	if err != nil {
		return nil, closeAll, err
	}
	sinks := store.Multi{jsonSink}

	if cfg.Database != nil {
		client, err := conn.New(cfg.Database.Conn)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, func() { _ = client.Close() })
		dbSink, err := store.NewDB(client.DB(), cfg.Database.BatchSize)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, dbSink)
	}

	if cfg.Kafka != nil {
		kafkaSink, err := store.NewKafka(*cfg.Kafka)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, func() {
			if err := kafkaSink.Close(); err != nil {
				logs.Errorf("close kafka writer, err: %+v", err)
			}
		})
		sinks = append(sinks, kafkaSink)
	}
	return sinks, closeAll, nil
}

func serveMetrics(addr string, metrics *obs.Metrics) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("metrics server, err: %+v", err)
		}
	}()
	logs.Infof("metrics listening on %s/metrics", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  {}
func (profilerLogger) Debugf(format string, args ...interface{}) {}
func (profilerLogger) Errorf(format string, args ...interface{}) {
	logs.Errorf("pyroscope: "+format, args...)
}

func startProfiler(cfg config.ProfilingConfig, runID uuid.UUID) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.PyroscopeAddr,
		Tags: map[string]string{
			"run": runID.String(),
		},
		Logger: profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}
