// Package config loads and validates techscan configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// AppName names the config file and the XDG directories.
const AppName = "techscan"

// Capture backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// Signature sources.
const (
	SourceBuiltin    = "builtin"
	SourceFile       = "file"
	SourceWappalyzer = "wappalyzer"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Scan       ScanConfig       `mapstructure:"scan"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Capture    CaptureConfig    `mapstructure:"capture"`
	Signatures SignaturesConfig `mapstructure:"signatures"`
	Results    ResultsConfig    `mapstructure:"results"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ScanConfig governs the worker pool and its outputs.
type ScanConfig struct {
	Workers      int    `mapstructure:"workers"`
	MaxWorkers   int    `mapstructure:"max_workers"`
	URLsFile     string `mapstructure:"urls_file"`
	ResultsPath  string `mapstructure:"results_path"`
	MarkdownPath string `mapstructure:"markdown_path"`
}

// FetchConfig configures page and resource fetches.
type FetchConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
	Render        bool          `mapstructure:"render"`
	// RenderAuto renders only pages whose static markup looks like a
	// client-side shell.
	RenderAuto    bool          `mapstructure:"render_auto"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
}

// CaptureConfig selects where per-page capture objects live.
type CaptureConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// SignaturesConfig selects the technology signature table.
type SignaturesConfig struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
}

// ResultsConfig enables optional result stores.
type ResultsConfig struct {
	SQLitePath    string `mapstructure:"sqlite_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// NotifyConfig holds Pub/Sub notification settings.
type NotifyConfig struct {
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// ServerConfig controls the optional status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig enables OpenTelemetry tracing.
type TelemetryConfig struct {
	Tracing     bool   `mapstructure:"tracing"`
	ServiceName string `mapstructure:"service_name"`
}

// Option adjusts the Viper instance before unmarshalling.
type Option func(v *viper.Viper)

// WithOverride forces key to value, taking precedence over file and env.
// Used for CLI flags.
func WithOverride(key string, value any) Option {
	return func(v *viper.Viper) {
		v.Set(key, value)
	}
}

// Load builds a Config from defaults, an optional file, the environment and
// overrides. With an empty path, techscan.{yaml,json,toml} is searched in the
// working directory and the XDG config directory; a missing file is not an
// error.
func Load(path string, opts ...Option) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TECHSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(".")
		v.AddConfigPath(ConfigDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for _, opt := range opts {
		opt(v)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.workers", runtime.NumCPU())
	v.SetDefault("scan.max_workers", 0)
	v.SetDefault("scan.results_path", "result.json")
	v.SetDefault("fetch.user_agent", "techscan/0.1")
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.max_body_bytes", 10<<20)
	v.SetDefault("fetch.render", false)
	v.SetDefault("fetch.render_auto", false)
	v.SetDefault("fetch.render_timeout", 25*time.Second)
	v.SetDefault("capture.backend", BackendLocal)
	v.SetDefault("capture.dir", "out")
	v.SetDefault("capture.gcs_prefix", "captures")
	v.SetDefault("signatures.source", SourceBuiltin)
	v.SetDefault("results.postgres_table", "page_results")
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.tracing", false)
	v.SetDefault("telemetry.service_name", "techscan")
}

// MaxWorkers returns the effective worker ceiling: runtime.NumCPU() unless
// scan.max_workers sets it explicitly, which may exceed the CPU count.
func (c Config) MaxWorkers() int {
	if c.Scan.MaxWorkers > 0 {
		return c.Scan.MaxWorkers
	}
	return runtime.NumCPU()
}

// ValidateWorkers checks 1 <= k <= maxWorkers.
func ValidateWorkers(k, maxWorkers int) error {
	if k < 1 {
		return fieldError("scan.workers", fmt.Errorf("%w: got %d", ErrInvalidWorkers, k))
	}
	if k > maxWorkers {
		return fieldError("scan.workers", fmt.Errorf("%w: %d > %d", ErrTooManyWorkers, k, maxWorkers))
	}
	return nil
}

// Validate enforces required values and reasonable limits. The returned error
// is always a *Error.
func (c Config) Validate() error {
	if err := ValidateWorkers(c.Scan.Workers, c.MaxWorkers()); err != nil {
		return err
	}
	if c.Scan.ResultsPath == "" {
		return fieldError("scan.results_path", ErrMissingValue)
	}
	if c.Fetch.Timeout <= 0 {
		return fieldError("fetch.timeout", ErrInvalidTimeout)
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return fieldError("fetch.max_body_bytes", ErrInvalidMaxBody)
	}
	if (c.Fetch.Render || c.Fetch.RenderAuto) && c.Fetch.RenderTimeout <= 0 {
		return fieldError("fetch.render_timeout", ErrInvalidTimeout)
	}
	switch c.Capture.Backend {
	case BackendLocal:
		if c.Capture.Dir == "" {
			return fieldError("capture.dir", ErrMissingValue)
		}
	case BackendMemory:
	case BackendGCS:
		if c.Capture.GCSBucket == "" {
			return fieldError("capture.gcs_bucket", ErrMissingValue)
		}
	default:
		return fieldError("capture.backend", fmt.Errorf("%w: %q", ErrUnknownBackend, c.Capture.Backend))
	}
	switch c.Signatures.Source {
	case SourceBuiltin, SourceWappalyzer:
	case SourceFile:
		if c.Signatures.Path == "" {
			return fieldError("signatures.path", ErrMissingValue)
		}
	default:
		return fieldError("signatures.source", fmt.Errorf("%w: %q", ErrUnknownSignatureSource, c.Signatures.Source))
	}
	if c.Notify.PubSubTopic != "" && c.Notify.PubSubProject == "" {
		return fieldError("notify.pubsub_project", ErrMissingValue)
	}
	if c.Telemetry.Tracing && c.Telemetry.ServiceName == "" {
		return fieldError("telemetry.service_name", ErrMissingValue)
	}
	return nil
}

// ConfigDir is the XDG config directory searched for techscan.yaml.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DataDir is the XDG data directory; the default SQLite result store lives here.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}
