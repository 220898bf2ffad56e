package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giygas/nhanes-api/config"
	"github.com/giygas/nhanes-api/data"
	"github.com/giygas/nhanes-api/logging"
	"github.com/giygas/nhanes-api/nhanes"
	"github.com/giygas/nhanes-api/scheduler"
	"github.com/giygas/nhanes-api/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := config.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.InitLogger(logging.Options{
		LogDir:         cfg.LogDir,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
		Env:            cfg.Env,
		Level:          cfg.LogLevel,
	})
	defer logging.Close()

	if err := run(cfg); err != nil {
		logging.Error("Server stopped with error", "error", err)
		logging.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	dataContainer := data.NewDataContainer()
	dataContainer.SetServerStartTime(time.Now())

	loader := nhanes.NewLoader(
		nhanes.WithBaseURL(cfg.BaseURL),
		nhanes.WithDrugsURL(cfg.DrugsURL),
		nhanes.WithFetcher(nhanes.NewHTTPFetcher(cfg.FetchTimeout)),
		nhanes.WithLogger(logging.Logger()),
	)

	sched := scheduler.NewScheduler(dataContainer, loader, scheduler.Options{
		Datasets:    cfg.Datasets,
		Years:       nhanes.YearRange{Start: cfg.YearStart, End: cfg.YearEnd},
		UpdateTimes: cfg.UpdateTimes,
	})
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	srv := server.NewServer(cfg, dataContainer, loader.URLs())

	// Profiling endpoint (accessible at /debug/pprof/) - only for local dev
	if cfg.Env == config.EnvDevelopment {
		go func() {
			logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				logging.Warn("Profiling server failed", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-quit:
		logging.Info("Received shutdown signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(ctx)
}
