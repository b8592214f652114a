// Package config reads the engine and backend settings from command line
// flags and an optional YAML file. Explicit flags win over the file, the file
// wins over the defaults.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendPebble = "pebble"
	BackendBolt   = "bolt"
)

type Config struct {
	Backend      string    `yaml:"backend"`
	Path         string    `yaml:"path"`
	SegmentSize  SizeBytes `yaml:"segment-size"`
	MaxKeySize   SizeBytes `yaml:"max-key-size"`
	Retries      int       `yaml:"retries"`
	RetryBackoff Duration  `yaml:"retry-backoff"`
	LogLevel     string    `yaml:"log-level"`

	// Args the positional arguments left after the flags
	Args []string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Backend:      BackendMemory,
		SegmentSize:  5 << 10,
		MaxKeySize:   32 << 10,
		Retries:      3,
		RetryBackoff: Duration(time.Millisecond),
		LogLevel:     "info",
	}
}

// Parse registers the flags on fs and parses args.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Default()
	flags := Default()

	file := fs.String("config", "", "YAML configuration file")
	fs.StringVar(&flags.Backend, "backend", flags.Backend, "substrate backend: memory, badger, pebble or bolt")
	fs.StringVar(&flags.Path, "path", flags.Path, "database path, empty keeps badger and pebble in memory")
	fs.Var(&flags.SegmentSize, "segment-size", "segment size threshold, e.g. 5KiB")
	fs.Var(&flags.MaxKeySize, "max-key-size", "largest accepted user key, e.g. 32KiB")
	fs.IntVar(&flags.Retries, "retries", flags.Retries, "commit conflict retries, 0 surfaces the first conflict")
	fs.Var(&flags.RetryBackoff, "retry-backoff", "first retry backoff, doubled per retry")
	fs.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *file != "" {
		if err := cfg.load(*file); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = flags.Backend
		case "path":
			cfg.Path = flags.Path
		case "segment-size":
			cfg.SegmentSize = flags.SegmentSize
		case "max-key-size":
			cfg.MaxKeySize = flags.MaxKeySize
		case "retries":
			cfg.Retries = flags.Retries
		case "retry-backoff":
			cfg.RetryBackoff = flags.RetryBackoff
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		}
	})
	cfg.Args = fs.Args()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendBadger, BackendPebble:
	case BackendBolt:
		if c.Path == "" {
			return errors.New("config: bolt backend needs a path")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.SegmentSize < 1<<10 || c.SegmentSize > 255<<10 {
		return fmt.Errorf("config: segment-size %s outside 1KiB..255KiB", c.SegmentSize)
	}
	if c.MaxKeySize <= 0 {
		return fmt.Errorf("config: max-key-size must be positive")
	}
	if c.Retries < 0 {
		return fmt.Errorf("config: negative retries %d", c.Retries)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("config: negative retry-backoff %s", c.RetryBackoff)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Logger builds a development logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
