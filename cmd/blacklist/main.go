package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jclee94/blacklist/internal/app"
	"github.com/jclee94/blacklist/internal/config"
	"github.com/jclee94/blacklist/internal/vault"
)

func main() {
	mode := flag.String("mode", "", "run mode: api or collector-worker (overrides MODE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flag overrides env var.
	if *mode != "" {
		cfg.Mode = *mode
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		if errors.Is(err, vault.ErrCorrupt) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
