package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bil/internal/cli"
	apphttp "bil/internal/http"
	"bil/internal/log"
	"bil/internal/metrics"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	m := metrics.New()
	ledger := cli.InitLedger(context.Background(), cfg, logger, m, true)

	srv := apphttp.NewServer(":"+cfg.Port, ledger.Service, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:            m,
		Logger:             logger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if ledger.Cleanup != nil {
			if err := ledger.Cleanup(); err != nil {
				logger.Error("Ledger cleanup error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting bil server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"data_dir", cfg.DataDir,
		"history", cfg.HistoryEnabled,
		"amqp", cfg.AMQPEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
