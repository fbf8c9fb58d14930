package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr = ":8080"
	defaultWorkers    = 8

	envConfigFile = "YIELDLAB_CONFIG"
	envListenAddr = "YIELDLAB_LISTEN_ADDR"
	envDBPath     = "YIELDLAB_DB_PATH"
	envLogLevel   = "YIELDLAB_LOG_LEVEL"
	envWorkers    = "YIELDLAB_WORKERS"
	envDatasetTTL = "YIELDLAB_DATASET_TTL"
	envJobTimeout = "YIELDLAB_JOB_TIMEOUT"
)

// Config holds application configuration.
type Config struct {
	ListenAddr string
	// DBPath selects the SQLite job store; empty keeps job records in memory.
	DBPath   string
	LogLevel slog.Level
	// Workers bounds concurrently running computations; zero is unbounded.
	Workers int
	// DatasetTTL evicts datasets older than this; zero keeps them forever.
	DatasetTTL time.Duration
	// JobTimeout fails computations running longer than this; zero disables it.
	JobTimeout time.Duration
}

// fileConfig is the YAML shape of the optional config file.
type fileConfig struct {
	ListenAddr *string        `yaml:"listen_addr"`
	DBPath     *string        `yaml:"db_path"`
	LogLevel   *string        `yaml:"log_level"`
	Workers    *int           `yaml:"workers"`
	DatasetTTL *time.Duration `yaml:"dataset_ttl"`
	JobTimeout *time.Duration `yaml:"job_timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ListenAddr: defaultListenAddr,
		LogLevel:   slog.LevelInfo,
		Workers:    defaultWorkers,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// YIELDLAB_CONFIG (if set) and environment variables, in increasing order of
// precedence. Every invalid value is reported in the returned error.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}

	var errs error
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", envWorkers, err))
		} else {
			cfg.Workers = n
		}
	}
	if v := os.Getenv(envDatasetTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", envDatasetTTL, err))
		} else {
			cfg.DatasetTTL = d
		}
	}
	if v := os.Getenv(envJobTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", envJobTimeout, err))
		} else {
			cfg.JobTimeout = d
		}
	}

	if err := cfg.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return cfg, errs
}

// applyFile overlays the values set in the YAML file at path.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.ListenAddr != nil {
		c.ListenAddr = *fc.ListenAddr
	}
	if fc.DBPath != nil {
		c.DBPath = *fc.DBPath
	}
	if fc.LogLevel != nil {
		c.LogLevel = parseLogLevel(*fc.LogLevel)
	}
	if fc.Workers != nil {
		c.Workers = *fc.Workers
	}
	if fc.DatasetTTL != nil {
		c.DatasetTTL = *fc.DatasetTTL
	}
	if fc.JobTimeout != nil {
		c.JobTimeout = *fc.JobTimeout
	}
	return nil
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var err error
	if c.ListenAddr == "" {
		err = multierror.Append(err, fmt.Errorf("listen address has not been specified"))
	}
	if c.Workers < 0 {
		err = multierror.Append(err, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.DatasetTTL < 0 {
		err = multierror.Append(err, fmt.Errorf("dataset TTL must not be negative, got %s", c.DatasetTTL))
	}
	if c.JobTimeout < 0 {
		err = multierror.Append(err, fmt.Errorf("job timeout must not be negative, got %s", c.JobTimeout))
	}
	return err
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
