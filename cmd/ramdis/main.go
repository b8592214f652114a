package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/PlatformLab/Ramdis/internal/backend"
	"github.com/PlatformLab/Ramdis/internal/config"
	"github.com/PlatformLab/Ramdis/internal/engine"
)

func main() {
	printMetrics := flag.Bool("metrics", false, "print engine metrics after the command")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: ramdis [flags] command [args...]\n\ncommands:\n%s\nflags:\n", usage())
		flag.PrintDefaults()
	}
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if len(cfg.Args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := cfg.Logger()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	metrics, err := engine.NewMetrics(reg)
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	e, db, err := backend.NewEngine(cfg, logger, engine.WithMetrics(metrics))
	if err != nil {
		logger.Fatal("open backend", zap.String("backend", cfg.Backend), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	code := 0
	if err := run(ctx, e, cfg.Args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "(error)", err)
		code = 1
	}

	if *printMetrics {
		families, err := reg.Gather()
		if err != nil {
			logger.Error("gather metrics", zap.Error(err))
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
				logger.Error("print metrics", zap.Error(err))
			}
		}
	}

	if err := db.Close(); err != nil {
		logger.Error("close backend", zap.Error(err))
		code = 1
	}
	stop()
	_ = logger.Sync()
	os.Exit(code)
}
