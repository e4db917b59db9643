package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/config"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/poolkeeper/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewDefault().Fatal("Failed to load configuration", zap.Error(err))
	}

	// Flags override the environment.
	port := flag.String("port", cfg.Server.Port, "Server port")
	upstream := flag.String("upstream", cfg.Offline.Upstream, "Upstream origin serving the front-end build")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (colored logs, debug level)")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Offline.Upstream = *upstream
	cfg.Logging.Development = *dev
	if err := cfg.Validate(); err != nil {
		logging.NewDefault().Fatal("Invalid configuration", zap.Error(err))
	}

	logger := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
	defer logger.Sync()

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	for {
		select {
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				// Failures are logged by Reload; the active worker keeps serving.
				_ = srv.Reload(context.Background())
				continue
			}
			logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Error during shutdown", zap.Error(err))
			}
			cancel()
			return
		case err := <-errChan:
			if err != nil {
				logger.Fatal("Server error", zap.Error(err))
			}
			return
		}
	}
}
