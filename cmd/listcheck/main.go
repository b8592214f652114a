// Command listcheck pushes unique values onto a set of lists from many
// goroutines, pops them back and verifies every value came out exactly once.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PlatformLab/Ramdis/internal/backend"
	"github.com/PlatformLab/Ramdis/internal/config"
)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "how long to push and pop")
	lists := flag.Int("lists", 8, "number of lists to spread values over")
	pushers := flag.Uint("pushers", 4, "push goroutines")
	poppers := flag.Uint("poppers", 4, "pop goroutines")

	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatal(err)
	}
	sugar := logger.Sugar()

	e, db, err := backend.NewEngine(cfg, logger)
	if err != nil {
		sugar.Fatalw("open backend", "backend", cfg.Backend, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	c := newListChecker(e, *lists, logger)
	err = c.run(ctx, *duration, *pushers, *poppers)
	stop()

	if cerr := db.Close(); cerr != nil {
		sugar.Errorw("close backend", "error", cerr)
	}
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "FAIL:", err)
		os.Exit(1)
	}
	fmt.Println("OK")
}
