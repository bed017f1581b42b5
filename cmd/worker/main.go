package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/mako-assistant/internal/bootstrap"
	"github.com/kirillkom/mako-assistant/internal/config"
	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err.Error())
		os.Exit(1)
	}
	defer worker.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           worker.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err.Error())
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = worker.Queue.SubscribeSearchLogs(ctx, func(handlerCtx context.Context, entry domain.SearchLogEntry) error {
		worker.Metrics.StartEntry()
		start := time.Now()
		if !entry.CreatedAt.IsZero() {
			worker.Metrics.ObserveQueueLag("worker", start.Sub(entry.CreatedAt))
		}

		recordCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Second)
		defer cancel()
		err := worker.Recorder.Record(recordCtx, entry)
		worker.Metrics.FinishEntry("worker", time.Since(start), err)
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
