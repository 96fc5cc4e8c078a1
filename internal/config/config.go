// Package config loads the creditscore configuration: defaults, then an
// optional YAML file, then CREDITSCORE__ environment variables, then flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"creditscore/internal/blob"
	"creditscore/internal/logging"
	"creditscore/internal/model"
	"creditscore/sink/kafka"
	"creditscore/sink/stdout"
	source "creditscore/source/kafka"
)

const SupportedSchema = "v1"

const envPrefix = "CREDITSCORE__"

type SourceConfig struct {
	DSN   string `koanf:"dsn"`
	Table string `koanf:"table"`
}

type StateConfig struct {
	Path string `koanf:"path"`
}

type SplitConfig struct {
	// TestSize is the share held out of training.
	TestSize float64 `koanf:"test_size"`
	// ValidShare is the share of the held-out rows used for validation.
	ValidShare float64 `koanf:"valid_share"`
	Seed       uint64  `koanf:"seed"`
}

type SinkConfigs struct {
	Stdout stdout.Config `koanf:"stdout"`
	Kafka  kafka.Config  `koanf:"kafka"`
}

// ScoringConfig enables the Kafka consumer that scores streamed applications.
type ScoringConfig struct {
	Enabled bool   `koanf:"enabled"`
	Driver  string `koanf:"driver"`
	// Config is the path of the consumer YAML, relative to this file.
	Config string `koanf:"config"`

	Kafka source.Config `koanf:"-"`
}

type ServeConfig struct {
	GRPCPort       int           `koanf:"grpc_port"`
	HTTPPort       int           `koanf:"http_port"`
	MetricsPort    int           `koanf:"metrics_port"`
	ReloadInterval time.Duration `koanf:"reload_interval"`
}

type Config struct {
	SchemaVersion string          `koanf:"schema_version"`
	Log           logging.Options `koanf:"log"`
	Source        SourceConfig    `koanf:"source"`
	State         StateConfig     `koanf:"state"`
	Blob          blob.Config     `koanf:"blob"`
	Split         SplitConfig     `koanf:"split"`
	Model         model.Params    `koanf:"model"`
	Sinks         []string        `koanf:"sinks"`
	SinkConfigs   SinkConfigs     `koanf:"sink_configs"`
	Scoring       ScoringConfig   `koanf:"scoring"`
	Serve         ServeConfig     `koanf:"serve"`
	// SchemaFile optionally replaces the built-in column schema.
	SchemaFile string `koanf:"schema_file"`
}

func defaults() map[string]any {
	return map[string]any{
		"schema_version":          SupportedSchema,
		"log.level":               "info",
		"source.table":            "credit_data",
		"state.path":              "creditscore.db",
		"blob.driver":             string(blob.DriverFilesystem),
		"blob.root":               "blobdata",
		"blob.region":             "us-east-1",
		"split.test_size":         0.2,
		"split.valid_share":       0.5,
		"split.seed":              42,
		"model.max_depth":         0,
		"model.min_samples_split": 2,
		"model.min_samples_leaf":  1,
		"scoring.driver":          "sarama",
		"serve.grpc_port":         7070,
		"serve.http_port":         8080,
		"serve.metrics_port":      9100,
		"serve.reload_interval":   "1m",
	}
}

// flagKeys maps CLI flag names onto config keys. Unlisted flags are not
// config settings.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-json":     "log.json",
	"source-dsn":   "source.dsn",
	"source-table": "source.table",
	"state":        "state.path",
	"blob-driver":  "blob.driver",
	"blob-root":    "blob.root",
	"blob-bucket":  "blob.bucket",
	"sinks":        "sinks",
	"grpc-port":    "serve.grpc_port",
	"http-port":    "serve.http_port",
	"metrics-port": "serve.metrics_port",
	"schema-file":  "schema_file",
	"scoring":      "scoring.enabled",
}

// Load builds the configuration. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return Config{}, fmt.Errorf("config flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("config decode: %w", err)
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, fmt.Errorf("config schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}

	if path != "" {
		base := filepath.Dir(path)
		cfg.State.Path = resolve(base, cfg.State.Path)
		cfg.SchemaFile = resolve(base, cfg.SchemaFile)
		cfg.Scoring.Config = resolve(base, cfg.Scoring.Config)
		if cfg.Blob.Driver == blob.DriverFilesystem {
			cfg.Blob.Root = resolve(base, cfg.Blob.Root)
		}
	}

	if cfg.Scoring.Enabled {
		kc, err := LoadKafkaConfig(cfg.Scoring.Config)
		if err != nil {
			return cfg, fmt.Errorf("scoring: %w", err)
		}
		cfg.Scoring.Kafka = kc
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.Bucket == "" {
			errs = append(errs, errors.New("blob.bucket required for s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver %q unknown", c.Blob.Driver))
	}
	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		errs = append(errs, fmt.Errorf("split.test_size %v outside (0,1)", c.Split.TestSize))
	}
	if c.Split.ValidShare <= 0 || c.Split.ValidShare >= 1 {
		errs = append(errs, fmt.Errorf("split.valid_share %v outside (0,1)", c.Split.ValidShare))
	}
	if err := c.Model.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.State.Path == "" {
		errs = append(errs, errors.New("state.path required"))
	}
	if c.Serve.ReloadInterval < 0 {
		errs = append(errs, errors.New("serve.reload_interval must not be negative"))
	}
	return errors.Join(errs...)
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
