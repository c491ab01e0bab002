package config

import (
	"encoding/json"
	"os"
	"time"

	"pricefeed/internal/ledger"
	"pricefeed/internal/reassembly"
	"pricefeed/internal/recorder"
	"pricefeed/internal/store"
	"pricefeed/internal/transport"
	"pricefeed/pkg/conn"
	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

const (
	DefaultHost        = "localhost"
	DefaultPort        = 3000
	DefaultOutputPath  = "output/output.json"
	DefaultReadTimeout = 30 * time.Second
	DefaultAppName     = "pricefeed.feedclient"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Feed       FeedConfig       `json:"feed"`
	Reassembly ReassemblyConfig `json:"reassembly"`
	Output     OutputConfig     `json:"output"`
	Database   DatabaseConfig   `json:"database"`
	Kafka      KafkaConfig      `json:"kafka"`
	Capture    CaptureConfig    `json:"capture"`
	Metrics    MetricsConfig    `json:"metrics"`
	Profiling  ProfilingConfig  `json:"profiling"`
}

// FeedConfig locates the feed server.
type FeedConfig struct {
	Network      string   `json:"network"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	SocketPath   string   `json:"socketPath"`
	DialTimeout  Duration `json:"dialTimeout"`
	ReadTimeout  Duration `json:"readTimeout"`
	DialAttempts int      `json:"dialAttempts"`
	BackoffMin   Duration `json:"backoffMin"`
	BackoffMax   Duration `json:"backoffMax"`
}

// ReassemblyConfig holds the gap recovery policies.
type ReassemblyConfig struct {
	MaxPasses  *int   `json:"maxPasses"`
	Duplicates string `json:"duplicates"`
	OutOfRange string `json:"outOfRange"`
}

type OutputConfig struct {
	Path string `json:"path"`
}

// DatabaseConfig enables the database sink.
type DatabaseConfig struct {
	Enabled    bool              `json:"enabled"`
	Driver     string            `json:"driver"`
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"password"`
	Database   string            `json:"database"`
	SSLMode    string            `json:"sslMode"`
	Params     map[string]string `json:"params"`
	ConnString string            `json:"connString"`
	BatchSize  int               `json:"batchSize"`
}

// KafkaConfig enables the Kafka sink.
type KafkaConfig struct {
	Enabled      bool     `json:"enabled"`
	Brokers      []string `json:"brokers"`
	Topic        string   `json:"topic"`
	BatchSize    int      `json:"batchSize"`
	BatchTimeout Duration `json:"batchTimeout"`
	WriteTimeout Duration `json:"writeTimeout"`
}

// CaptureConfig enables raw frame capture when Dir is set.
type CaptureConfig struct {
	Dir             string `json:"dir"`
	SegmentMaxBytes int64  `json:"segmentMaxBytes"`
	QueueSize       int    `json:"queueSize"`
}

type MetricsConfig struct {
	Addr string `json:"addr"`
}

type ProfilingConfig struct {
	PyroscopeAddr   string `json:"pyroscopeAddr"`
	ApplicationName string `json:"applicationName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Transport   transport.Option
	ReadTimeout time.Duration
	Reassembly  reassembly.Option
	OutputPath  string
	// Database, Kafka and Capture are nil when disabled.
	Database    *DatabaseSink
	Kafka       *store.KafkaOption
	Capture     *recorder.Config
	MetricsAddr string
	Profiling   ProfilingConfig
}

// DatabaseSink is the resolved database sink setup.
type DatabaseSink struct {
	Conn      conn.Option
	BatchSize int
}

// Read parses a JSON config file. An empty path yields the zero config.
func Read(path string) (FileConfig, error) {
	var cfg FileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config").With("path", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "unmarshal config").With("path", path)
	}
	return cfg, nil
}

// Load reads and resolves a JSON config file.
func Load(path string) (Loaded, error) {
	cfg, err := Read(path)
	if err != nil {
		return Loaded{}, err
	}
	return cfg.Resolve()
}

func (c FileConfig) withDefaults() FileConfig {
	if c.Feed.Network == "" {
		c.Feed.Network = transport.NetworkTCP
	}
	if c.Feed.Host == "" {
		c.Feed.Host = DefaultHost
	}
	if c.Feed.Port == 0 {
		c.Feed.Port = DefaultPort
	}
	if c.Feed.DialTimeout == 0 {
		c.Feed.DialTimeout = Duration(transport.DefaultDialTimeout)
	}
	if c.Feed.ReadTimeout == 0 {
		c.Feed.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if c.Feed.DialAttempts == 0 {
		c.Feed.DialAttempts = 1
	}
	if c.Reassembly.MaxPasses == nil {
		one := 1
		c.Reassembly.MaxPasses = &one
	}
	if c.Output.Path == "" {
		c.Output.Path = DefaultOutputPath
	}
	if c.Database.Driver == "" {
		c.Database.Driver = conn.DriverPostgres
	}
	if c.Profiling.ApplicationName == "" {
		c.Profiling.ApplicationName = DefaultAppName
	}
	return c
}

// Validate checks the config after defaults are applied.
func (c FileConfig) Validate() error {
	c = c.withDefaults()
	switch c.Feed.Network {
	case transport.NetworkTCP:
		if c.Feed.Port < 0 || c.Feed.Port > 65535 {
			return errors.Wrapf(exception.ErrInvalidConfig, "feed.port out of range: %d", c.Feed.Port)
		}
	case transport.NetworkUnix:
		if c.Feed.SocketPath == "" {
			return errors.Wrap(exception.ErrInvalidConfig, "feed.socketPath is empty")
		}
	default:
		return errors.Wrapf(exception.ErrInvalidConfig, "feed.network: %q", c.Feed.Network)
	}
	if c.Feed.DialAttempts < 1 {
		return errors.Wrap(exception.ErrInvalidConfig, "feed.dialAttempts must be >= 1")
	}
	if *c.Reassembly.MaxPasses < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "reassembly.maxPasses must be >= 0")
	}
	if _, ok := ledger.ParseDuplicatePolicy(c.Reassembly.Duplicates); !ok {
		return errors.Wrapf(exception.ErrInvalidConfig, "reassembly.duplicates: %q", c.Reassembly.Duplicates)
	}
	if _, ok := reassembly.ParseOutOfRangePolicy(c.Reassembly.OutOfRange); !ok {
		return errors.Wrapf(exception.ErrInvalidConfig, "reassembly.outOfRange: %q", c.Reassembly.OutOfRange)
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case conn.DriverPostgres, conn.DriverSQLite:
		default:
			return errors.Wrapf(exception.ErrInvalidConfig, "database.driver: %q", c.Database.Driver)
		}
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.Wrap(exception.ErrInvalidConfig, "kafka.brokers is empty")
		}
		if c.Kafka.Topic == "" {
			return errors.Wrap(exception.ErrInvalidConfig, "kafka.topic is empty")
		}
	}
	return nil
}

// Resolve applies defaults, validates and converts the config.
func (c FileConfig) Resolve() (Loaded, error) {
	if err := c.Validate(); err != nil {
		return Loaded{}, err
	}
	c = c.withDefaults()

	duplicates, _ := ledger.ParseDuplicatePolicy(c.Reassembly.Duplicates)
	outOfRange, _ := reassembly.ParseOutOfRangePolicy(c.Reassembly.OutOfRange)

	backoff := transport.DefaultBackoff()
	if c.Feed.BackoffMin > 0 {
		backoff.Initial = c.Feed.BackoffMin.Std()
	}
	if c.Feed.BackoffMax > 0 {
		backoff.Ceiling = c.Feed.BackoffMax.Std()
	}

	loaded := Loaded{
		Transport: transport.Option{
			Network:     c.Feed.Network,
			Host:        c.Feed.Host,
			Port:        c.Feed.Port,
			SocketPath:  c.Feed.SocketPath,
			DialTimeout: c.Feed.DialTimeout.Std(),
			Attempts:    c.Feed.DialAttempts,
			Backoff:     backoff,
		},
		ReadTimeout: c.Feed.ReadTimeout.Std(),
		Reassembly: reassembly.Option{
			MaxPasses:  *c.Reassembly.MaxPasses,
			Duplicates: duplicates,
			OutOfRange: outOfRange,
		},
		OutputPath:  c.Output.Path,
		MetricsAddr: c.Metrics.Addr,
		Profiling:   c.Profiling,
	}

	if c.Database.Enabled {
		loaded.Database = &DatabaseSink{
			Conn: conn.Option{
				Driver:     c.Database.Driver,
				Host:       c.Database.Host,
				Port:       c.Database.Port,
				User:       c.Database.User,
				Password:   c.Database.Password,
				Database:   c.Database.Database,
				SSLMode:    c.Database.SSLMode,
				Params:     c.Database.Params,
				ConnString: c.Database.ConnString,
			},
			BatchSize: c.Database.BatchSize,
		}
	}
	if c.Kafka.Enabled {
		loaded.Kafka = &store.KafkaOption{
			Brokers:      c.Kafka.Brokers,
			Topic:        c.Kafka.Topic,
			BatchSize:    c.Kafka.BatchSize,
			BatchTimeout: c.Kafka.BatchTimeout.Std(),
			WriteTimeout: c.Kafka.WriteTimeout.Std(),
		}
	}
	if c.Capture.Dir != "" {
		capture := recorder.DefaultConfig(c.Capture.Dir, "")
		if c.Capture.SegmentMaxBytes > 0 {
			capture.SegmentMaxBytes = c.Capture.SegmentMaxBytes
		}
		if c.Capture.QueueSize > 0 {
			capture.QueueSize = c.Capture.QueueSize
		}
		loaded.Capture = &capture
	}
	return loaded, nil
}
