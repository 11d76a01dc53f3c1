package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"bil/internal/backend"
	"bil/internal/config"
	"bil/internal/log"
	"bil/internal/services"
)

// withLedger opens the configured ledger for the duration of fn. Changes
// are published like the server's so the worker sees them.
func withLedger(cmd *cobra.Command, fn func(ctx context.Context, svc *services.LedgerService) error) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: log.ComponentCLI,
		Output:    cmd.ErrOrStderr(),
	})

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	bcfg.Logger = logger

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
	}()

	return fn(ctx, result.Service)
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid project id %q", s)
	}
	return id, nil
}
