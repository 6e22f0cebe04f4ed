package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const (
	DefaultPort            = 5005
	DefaultIntervalSeconds = 5
	DefaultProbeTimeoutMs  = 2000
)

type Config struct {
	App          App           `mapstructure:"app"`
	Logging      LoggingConfig `mapstructure:"logging"`
	Relay        Relay         `mapstructure:"relay"`
	Client       Client        `mapstructure:"client"`
	Probe        Probe         `mapstructure:"probe"`
	Api          Api           `mapstructure:"api"`
	Dashboard    Dashboard     `mapstructure:"dashboard"`
	Otel         Otel          `mapstructure:"otel"`
	Housekeeping Housekeeping  `mapstructure:"housekeeping"`
	Archive      Archive       `mapstructure:"archive"`
	S3           S3Config      `mapstructure:"s3"`
	Alerts       Alerts        `mapstructure:"alerts"`
	Dev          bool          `mapstructure:"dev"`
}

type App struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"`
}

// LoggingConfig stores global logging configurations
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Relay struct {
	IP                  string `mapstructure:"ip"`
	Port                int    `mapstructure:"port"`
	DatagramSizeBytes   int    `mapstructure:"datagram_size_bytes"`
	ReadBufferSizeBytes int    `mapstructure:"read_buffer_size_bytes"`
	FanoutWorkers       int    `mapstructure:"fanout_workers"`
}

type Client struct {
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	SampleWindowMs  int    `mapstructure:"sample_window_ms"`
	BindAddr        string `mapstructure:"bind_addr"`
}

type Probe struct {
	TimeoutMs int `mapstructure:"timeout_ms"`
}

type Api struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type Dashboard struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type Otel struct {
	Enabled               bool   `mapstructure:"enabled"`
	Endpoint              string `mapstructure:"endpoint"`
	ScrapeIntervalSeconds int    `mapstructure:"scrapeIntervalseconds"`
}

type Housekeeping struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"intervalseconds"`
}

type Archive struct {
	Enabled             bool   `mapstructure:"enabled"`
	Directory           string `mapstructure:"directory"`
	Prefix              string `mapstructure:"prefix"`
	EnableJsonOutput    bool   `mapstructure:"json"`
	EnableParquetOutput bool   `mapstructure:"parquet"`
	KeepJsonSource      bool   `mapstructure:"keep_json_source"`
	KeepParquetSource   bool   `mapstructure:"keep_parquet_source"`
}

type S3Config struct {
	BucketName  string `mapstructure:"bucket_name"`
	Region      string `mapstructure:"region"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	Endpoint    string `mapstructure:"endpoint"`
	Ssl         bool   `mapstructure:"ssl"`
	Compression bool   `mapstructure:"compression"`
}

type Alerts struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Timeout  int    `mapstructure:"timeout"`
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"ip":        "relay.ip",
	"port":      "relay.port",
	"interval":  "client.interval_seconds",
	"log-level": "logging.level",
	"api-port":  "api.port",
}

// LoadConfig layers the yaml file, the environment and explicitly set flags, in that order.
// A missing file is not an error: every setting has a default.
func LoadConfig(cfgFile, envPrefix string, flags *pflag.FlagSet, cfg *Config) error {
	k := koanf.New(".")

	if cfgFile == "" {
		cfgFile = "config.yaml"
	}

	if _, err := os.Stat(cfgFile); err == nil {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return errors.Wrapf(err, "failed to parse %s", cfgFile)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to stat %s", cfgFile)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return errors.Wrapf(err, "error loading config from env")
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, f.Value.String()
		}), nil); err != nil {
			return errors.Wrapf(err, "error loading config from flags")
		}
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return errors.Wrapf(err, "failed to unmarshal %s", cfgFile)
	}

	cfg.SetDefaults()
	return nil
}

// SetDefaults fills every zero setting with its default.
func (cfg *Config) SetDefaults() {
	if cfg.App.Name == "" {
		cfg.App.Name = "udprelay"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Relay.Port == 0 {
		cfg.Relay.Port = DefaultPort
	}
	if cfg.Relay.DatagramSizeBytes == 0 {
		cfg.Relay.DatagramSizeBytes = 1024
	}
	if cfg.Client.IntervalSeconds <= 0 {
		cfg.Client.IntervalSeconds = DefaultIntervalSeconds
	}
	if cfg.Client.SampleWindowMs == 0 {
		cfg.Client.SampleWindowMs = 1000
	}
	if cfg.Probe.TimeoutMs == 0 {
		cfg.Probe.TimeoutMs = DefaultProbeTimeoutMs
	}
	if cfg.Api.Port == 0 {
		cfg.Api.Port = 8080
	}
	if cfg.Dashboard.Port == 0 {
		cfg.Dashboard.Port = 5000
	}
	if cfg.Otel.ScrapeIntervalSeconds == 0 {
		cfg.Otel.ScrapeIntervalSeconds = 10
	}
	if cfg.Housekeeping.IntervalSeconds == 0 {
		cfg.Housekeeping.IntervalSeconds = 60
	}
	if cfg.Archive.Directory == "" {
		cfg.Archive.Directory = os.TempDir()
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = cfg.App.Name
	}
}

func (cfg *Config) GetProbeTimeout() time.Duration {
	return time.Duration(cfg.Probe.TimeoutMs) * time.Millisecond
}

func (cfg *Config) GetSampleWindow() time.Duration {
	return time.Duration(cfg.Client.SampleWindowMs) * time.Millisecond
}

func (cfg *Config) GetHousekeepingInterval() time.Duration {
	return time.Duration(cfg.Housekeeping.IntervalSeconds) * time.Second
}
