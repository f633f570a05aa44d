package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/instacrawl/internal/extractor"
	"github.com/shaiso/instacrawl/internal/mq"
	"github.com/shaiso/instacrawl/internal/retry"
	"github.com/shaiso/instacrawl/internal/telemetry"
)

// Default configuration values.
const (
	defaultExtractTimeout = 2 * time.Minute
	defaultPublishTimeout = 15 * time.Second
	defaultPrefetch       = 1
)

// Publisher публикует результаты и dead letters.
// *mq.Publisher реализует его.
type Publisher interface {
	PublishResult(ctx context.Context, body []byte) error
	PublishDeadLetter(ctx context.Context, body []byte) error
}

// Redeliverer планирует повторную доставку запроса.
// Реализации: mq.DelayedRedeliverer, mq.RequeueRedeliverer.
type Redeliverer interface {
	// Schedule публикует тело запроса с заголовками нового Envelope.
	Schedule(ctx context.Context, body []byte, headers map[string]any) error

	// Cooldown — пауза worker'а после ack запланированного повтора.
	Cooldown(delay time.Duration) time.Duration

	// Mode — delayed или requeue.
	Mode() string
}

// Deduper помнит уже опубликованные запросы.
// *store.RedisDeduper реализует его.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// source — источник доставок. *mq.Consumer реализует его.
type source interface {
	Start(ctx context.Context) error
	Stop()
}

// Worker обрабатывает запросы из crawl_requests.
//
// Worker — stateless компонент: всё состояние retry едет в заголовках
// сообщения. Один процесс обрабатывает ровно одну доставку за раз;
// масштабирование — запуском нескольких процессов.
type Worker struct {
	publisher   Publisher
	redeliverer Redeliverer
	extractor   extractor.Extractor
	deduper     Deduper
	policy      retry.Policy
	metrics     *telemetry.Metrics

	// Configuration
	extractTimeout time.Duration
	publishTimeout time.Duration

	newSource func(h mq.Handler) source
	source    source
	now       func() time.Time

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	done       chan struct{}
	err        error
	errMu      sync.Mutex
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// MQ
	Conn        *mq.Connection
	Publisher   Publisher
	Redeliverer Redeliverer

	// Extractor — внешний сервис извлечения.
	Extractor extractor.Extractor

	// Deduper (опционально; nil — без дедупликации)
	Deduper Deduper

	// Policy — политика retry (нулевое значение — retry.DefaultPolicy()).
	Policy retry.Policy

	// Timeouts
	ExtractTimeout time.Duration // таймаут вызова extractor'а (default: 2m)
	PublishTimeout time.Duration // таймаут одной публикации (default: 15s)

	// Metrics (опционально; nil — метрики без регистрации)
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	extractTimeout := cfg.ExtractTimeout
	if extractTimeout <= 0 {
		extractTimeout = defaultExtractTimeout
	}

	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}

	policy := cfg.Policy
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = retry.DefaultMaxRetries
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(nil)
	}

	w := &Worker{
		publisher:      cfg.Publisher,
		redeliverer:    cfg.Redeliverer,
		extractor:      cfg.Extractor,
		deduper:        cfg.Deduper,
		policy:         policy,
		metrics:        metrics,
		extractTimeout: extractTimeout,
		publishTimeout: publishTimeout,
		now:            time.Now,
		logger:         logger,
		done:           make(chan struct{}),
	}

	if cfg.Conn != nil {
		conn := cfg.Conn
		w.newSource = func(h mq.Handler) source {
			return mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Queue:    string(mq.QueueRequests),
				Handler:  h,
				Prefetch: defaultPrefetch,
			})
		}
	}

	return w
}

// Start запускает потребление crawl_requests в отдельной горутине.
//
// Done() закрывается, когда потребление завершилось: по Stop или
// из-за потери соединения (тогда Err() возвращает причину).
func (w *Worker) Start(ctx context.Context) error {
	if w.newSource == nil {
		return ErrNoConnection
	}
	if w.publisher == nil || w.redeliverer == nil || w.extractor == nil {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"redelivery", w.redeliverer.Mode(),
		"max_retries", w.policy.MaxRetries,
		"extract_timeout", w.extractTimeout,
		"publish_timeout", w.publishTimeout,
		"dedupe", w.deduper != nil,
	)

	w.source = w.newSource(w.handleDelivery)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(w.done)

		if err := w.source.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.setErr(err)
			w.logger.Error("consumer stopped", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
//
// Новые доставки не принимаются; текущая доводится до ack.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.source != nil {
		w.source.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// Done закрывается, когда потребление завершилось.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err возвращает фатальную ошибку потребления или nil.
func (w *Worker) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *Worker) setErr(err error) {
	w.errMu.Lock()
	w.err = err
	w.errMu.Unlock()
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
