// Crawl Worker — обрабатывает запросы на извлечение из RabbitMQ.
//
// Worker:
//   - Получает запросы из crawl_requests (по одному)
//   - Вызывает сервис извлечения с ограничением частоты
//   - Публикует результат в raw_recipe_data
//   - Повторяет временные ошибки с задержкой, остальное — в crawl_requests_failed
//
// Workers масштабируются горизонтально: всё состояние retry едет в заголовках.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/instacrawl/internal/config"
	"github.com/shaiso/instacrawl/internal/extractor"
	"github.com/shaiso/instacrawl/internal/mq"
	"github.com/shaiso/instacrawl/internal/retry"
	"github.com/shaiso/instacrawl/internal/store"
	"github.com/shaiso/instacrawl/internal/telemetry"
	"github.com/shaiso/instacrawl/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting crawl-worker")

	if err := run(logger); err != nil {
		logger.Error("crawl-worker failed", "error", err)
		os.Exit(1)
	}

	logger.Info("crawl-worker stopped")
}

func run(logger *slog.Logger) error {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	delayed := cfg.RedeliveryMode == mq.ModeDelayed

	// RabbitMQ: топология объявляется при каждом подключении
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger,
		mq.WithConfirms(),
		mq.WithMaxReconnects(cfg.MaxReconnects),
		mq.WithReconnectDelay(cfg.ReconnectDelay),
		mq.WithSetup(mq.TopologySetup(delayed)),
	)
	if err != nil {
		return err
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected", "mode", cfg.RedeliveryMode)
	logger.Debug(mq.TopologyInfo(delayed))

	publisher := mq.NewPublisher(mqConn, logger)

	var redeliverer worker.Redeliverer
	if delayed {
		redeliverer = mq.NewDelayedRedeliverer(publisher)
	} else {
		redeliverer = mq.NewRequeueRedeliverer(publisher, cfg.RequeueCooldown)
		logger.Warn("delayed exchange disabled, retries pause the worker",
			"max_cooldown", cfg.RequeueCooldown,
		)
	}

	ex, err := extractor.NewHTTPExtractor(extractor.HTTPConfig{
		BaseURL: cfg.ExtractorURL,
		Rate:    cfg.ExtractorRate,
		Timeout: cfg.ExtractTimeout,
	})
	if err != nil {
		return err
	}

	// Redis (опционально): без него дедупликация выключена
	var deduper worker.Deduper
	if cfg.RedisAddr != "" {
		rd := store.NewRedisDeduper(cfg.RedisAddr, cfg.DedupeTTL)
		defer rd.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := rd.Ping(pingCtx)
		pingCancel()
		if err != nil {
			logger.Warn("Redis not available, dedupe disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			deduper = rd
			logger.Info("Redis connected, dedupe enabled", "addr", cfg.RedisAddr, "ttl", cfg.DedupeTTL)
		}
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries

	w := worker.New(worker.Config{
		Conn:           mqConn,
		Publisher:      publisher,
		Redeliverer:    redeliverer,
		Extractor:      ex,
		Deduper:        deduper,
		Policy:         policy,
		ExtractTimeout: cfg.ExtractTimeout,
		PublishTimeout: cfg.PublishTimeout,
		Metrics:        telemetry.NewMetrics(prometheus.DefaultRegisterer),
		Logger:         logger,
	})

	if err := w.Start(ctx); err != nil {
		return err
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			rw.Write([]byte("rabbitmq disconnected"))
			return
		}
		if w.IsStopped() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			rw.Write([]byte("worker stopped"))
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения или потерю соединения
	select {
	case <-ctx.Done():
	case <-w.Done():
	}

	// Останавливаем worker: текущая доставка доводится до ack
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	return w.Err()
}
