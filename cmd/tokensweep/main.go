// Command tokensweep runs one pass of the expired share token sweeper
// against MongoDB and exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/app"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/config"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/share"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	if err := run(); err != nil {
		logger.Fatalf("tokensweep: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.SetFormat(cfg.Log.Format)
	defer func() { _ = logger.Sync() }()
	if cfg.MongoDB.URI == "" {
		return errors.New("MONGODB_URI is required: in-memory tokens do not outlive the API process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()
	stores, err := app.OpenStores(ctx, cfg, clk)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer func() { _ = stores.Close(context.Background()) }()

	links, err := share.NewManager(stores.Documents, share.Options{
		TTL:              cfg.Share.LinkTTL,
		ExpiredRetention: cfg.Share.ExpiredRetention,
		Clock:            clk,
	})
	if err != nil {
		return err
	}
	n, err := share.NewSweeper(links, cfg.Share.SweepInterval).Collect(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	logger.Infof("removed %d stale share tokens", n)
	return nil
}
