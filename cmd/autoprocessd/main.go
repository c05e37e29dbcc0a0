// autoprocessd serves the auto-process engine over HTTP and re-executes
// definitions whenever new data is committed to their source time series.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/timgluz/autoprocess/autoprocess"
	"github.com/timgluz/autoprocess/config"
	"github.com/timgluz/autoprocess/log"
	"github.com/timgluz/autoprocess/metrics"
	"github.com/timgluz/autoprocess/secret"
	"github.com/timgluz/autoprocess/task"
	"github.com/timgluz/autoprocess/timeseries"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "autoprocessd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := log.New(cfg.LogLevel, cfg.LogFormat, os.Stderr).With("component", "autoprocessd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close time series store", "error", err)
		}
	}()

	definitions, err := loadDefinitions(ctx, cfg.DefinitionsFile, store, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	executor := autoprocess.NewExecutor(definitions, store, logger,
		autoprocess.WithMetrics(m),
		autoprocess.WithParallelism(cfg.Parallelism),
	)
	if !executor.IsReady() {
		return fmt.Errorf("executor is not ready")
	}

	trigger := task.NewAutoProcessTrigger(executor, definitions, task.AutoProcessTriggerOptions{
		Delay:   cfg.TriggerDelay,
		Workers: cfg.Workers,
	}, m, logger)
	trigger.Start(ctx)
	executor.OnCommit(trigger.HandleCommit)

	// catch up with data that arrived while the service was down
	all, err := definitions.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range all {
		_ = trigger.Enqueue(d.ID)
	}

	secrets, err := secret.NewTokenStore(cfg.APITokens()...)
	if err != nil {
		return fmt.Errorf("failed to create secret store: %w", err)
	}
	defer secrets.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newServer(executor, definitions, store, secrets, m, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.ListenAddr, "definitions", len(all))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down http server", "error", err)
	}
	return trigger.Close()
}

// loadDefinitions reads the definitions file, registers the time series it
// declares and returns the definition repository.
func loadDefinitions(ctx context.Context, path string, store timeseries.Store, logger *slog.Logger) (*autoprocess.MemoryRepository, error) {
	if path == "" {
		logger.Warn("No definitions file configured")
		return autoprocess.NewMemoryRepository(logger)
	}

	file, err := autoprocess.LoadFile(path)
	if err != nil {
		return nil, err
	}

	for _, ts := range file.Timeseries {
		err := store.AddTimeseries(ctx, &ts)
		if errors.Is(err, timeseries.ErrAlreadyExists) {
			logger.Debug("Time series already registered", "timeseries_id", ts.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("register time series %s: %w", ts.ID, err)
		}
	}

	logger.Info("Definitions loaded", "path", path, "timeseries", len(file.Timeseries), "definitions", len(file.Definitions))
	return autoprocess.NewMemoryRepository(logger, file.Definitions...)
}
