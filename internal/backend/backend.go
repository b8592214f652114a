// Package backend opens the configured substrate and builds an engine on it.
package backend

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/PlatformLab/Ramdis/internal/config"
	"github.com/PlatformLab/Ramdis/internal/engine"
	"github.com/PlatformLab/Ramdis/internal/substrate"
	"github.com/PlatformLab/Ramdis/internal/substrate/badgerkv"
	"github.com/PlatformLab/Ramdis/internal/substrate/boltkv"
	"github.com/PlatformLab/Ramdis/internal/substrate/memory"
	"github.com/PlatformLab/Ramdis/internal/substrate/pebblekv"
)

// Open opens the substrate named by cfg.Backend.
func Open(cfg *config.Config, logger *zap.Logger) (substrate.Substrate, error) {
	var (
		db  substrate.Substrate
		err error
	)
	switch cfg.Backend {
	case config.BackendMemory:
		db = memory.New(logger)
	case config.BackendBadger:
		db, err = openAs(badgerkv.Open(cfg.Path, logger))
	case config.BackendPebble:
		db, err = openAs(pebblekv.Open(cfg.Path, logger))
	case config.BackendBolt:
		db, err = openAs(boltkv.Open(cfg.Path, logger))
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

// openAs keeps a failed open from leaking a typed nil into the interface.
func openAs[S substrate.Substrate](s S, err error) (substrate.Substrate, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Options translates cfg into engine options.
func Options(cfg *config.Config) []engine.Option {
	return []engine.Option{
		engine.WithSegmentSize(cfg.SegmentSize.Int()),
		engine.WithMaxKeySize(cfg.MaxKeySize.Int()),
		engine.WithRetries(cfg.Retries),
		engine.WithRetryBackoff(cfg.RetryBackoff.Duration()),
	}
}

// NewEngine opens the substrate and returns an engine over it. The caller
// closes the substrate.
func NewEngine(cfg *config.Config, logger *zap.Logger, opts ...engine.Option) (*engine.Engine, substrate.Substrate, error) {
	db, err := Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	opts = append(Options(cfg), opts...)
	return engine.New(db, logger, opts...), db, nil
}
