// ============================================================================
// Hash-Queue Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: Static process configuration (YAML file + environment overrides)
//
// Load order:
//   1. Defaults()
//   2. YAML file (default: configs/default.yaml)
//   3. .env file, if present (github.com/joho/godotenv, never overrides
//      variables already set in the environment)
//   4. HASHQUEUE_* environment variables
//
// The scheduler section only seeds the runtime Store; after start the
// tunables are owned by the Store and may change through the API.
//
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/hash-queue/pkg/types"
)

// Config represents the complete system configuration structure
type Config struct {
	Scheduler struct {
		Interval        time.Duration `yaml:"interval"`
		MaxQueue        int           `yaml:"max_queue"`
		MaxParallelJobs int           `yaml:"max_parallel_jobs"`
		JobTimeout      time.Duration `yaml:"job_timeout"` // 0 = unbounded
		HistorySize     int           `yaml:"history_size"`
	} `yaml:"scheduler"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	GRPC struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"grpc"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`

	Snapshot struct {
		Path string `yaml:"path"` // empty disables history persistence
	} `yaml:"snapshot"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or text
	} `yaml:"log"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg := &Config{}
	cfg.Scheduler.Interval = time.Second
	cfg.Scheduler.MaxQueue = 100
	cfg.Scheduler.MaxParallelJobs = 4
	cfg.Scheduler.HistorySize = 500
	cfg.HTTP.Addr = ":8080"
	cfg.GRPC.Addr = ":50051"
	cfg.Metrics.Enabled = true
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Runtime returns the initial runtime tunables.
func (c *Config) Runtime() types.RuntimeConfig {
	return types.RuntimeConfig{
		Interval:        c.Scheduler.Interval,
		MaxQueue:        c.Scheduler.MaxQueue,
		MaxParallelJobs: c.Scheduler.MaxParallelJobs,
	}
}

// Validate checks the scheduler section with the same rules as runtime updates.
func (c *Config) Validate() error {
	if err := ValidateRuntime(c.Runtime()); err != nil {
		return err
	}
	if c.Scheduler.JobTimeout < 0 {
		return &ValidationError{Field: "job_timeout", Reason: "must not be negative"}
	}
	if c.Scheduler.HistorySize < 1 {
		return &ValidationError{Field: "history_size", Reason: "must be >= 1"}
	}
	if c.HTTP.Addr == "" {
		return &ValidationError{Field: "http.addr", Reason: "is required"}
	}
	return nil
}

// Load reads path on top of Defaults, then applies envFile and HASHQUEUE_*
// overrides. An empty path skips the YAML step, a missing envFile is ignored.
func Load(path, envFile string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	c.HTTP.Addr = getEnv("HASHQUEUE_HTTP_ADDR", c.HTTP.Addr)
	c.GRPC.Addr = getEnv("HASHQUEUE_GRPC_ADDR", c.GRPC.Addr)
	c.Snapshot.Path = getEnv("HASHQUEUE_SNAPSHOT_PATH", c.Snapshot.Path)
	c.Log.Level = getEnv("HASHQUEUE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("HASHQUEUE_LOG_FORMAT", c.Log.Format)

	if c.GRPC.Enabled, err = getEnvBool("HASHQUEUE_GRPC_ENABLED", c.GRPC.Enabled); err != nil {
		return err
	}
	if c.Metrics.Enabled, err = getEnvBool("HASHQUEUE_METRICS_ENABLED", c.Metrics.Enabled); err != nil {
		return err
	}

	if v := os.Getenv("HASHQUEUE_INTERVAL_MS"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("HASHQUEUE_INTERVAL_MS: %w", err)
		}
		d, err := IntervalFromMillis(ms)
		if err != nil {
			return fmt.Errorf("HASHQUEUE_INTERVAL_MS: %w", err)
		}
		c.Scheduler.Interval = d
	}

	if c.Scheduler.MaxQueue, err = getEnvInt("HASHQUEUE_MAX_QUEUE", c.Scheduler.MaxQueue); err != nil {
		return err
	}
	if c.Scheduler.MaxParallelJobs, err = getEnvInt("HASHQUEUE_MAX_PARALLEL_JOBS", c.Scheduler.MaxParallelJobs); err != nil {
		return err
	}
	if v := os.Getenv("HASHQUEUE_JOB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HASHQUEUE_JOB_TIMEOUT: %w", err)
		}
		c.Scheduler.JobTimeout = d
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
