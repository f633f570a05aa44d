package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/instacrawl/internal/codec"
	"github.com/shaiso/instacrawl/internal/domain"
	"github.com/shaiso/instacrawl/internal/extractor"
	"github.com/shaiso/instacrawl/internal/mq"
	"github.com/shaiso/instacrawl/internal/retry"
	"github.com/shaiso/instacrawl/internal/telemetry"
)

// Outcome — терминальный исход обработки доставки.
type Outcome string

const (
	OutcomePublished      Outcome = "published"
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	OutcomeDeadLettered   Outcome = "dead_lettered"
	OutcomeDuplicate      Outcome = "duplicate"

	// OutcomePublishFailed — не удалась даже публикация в DLQ.
	// Доставка всё равно подтверждается.
	OutcomePublishFailed Outcome = "publish_failed"
)

// Цели публикации для метрики crawl_publish_failures_total.
const (
	targetResult     = "result"
	targetRetry      = "retry"
	targetDeadLetter = "dead_letter"
)

// result — итог обработки одной доставки.
type result struct {
	outcome Outcome
	req     *domain.CrawlRequest

	// attempt — сколько повторов было до этой доставки
	attempt int

	kind     string
	delay    time.Duration
	cooldown time.Duration
	reason   string
	err      error
}

// handleDelivery обрабатывает одно сообщение из crawl_requests.
//
// Каждая доставка заканчивается ровно одним из переходов:
// публикация результата, планирование повтора или dead letter,
// после чего сообщение подтверждается.
func (w *Worker) handleDelivery(ctx context.Context, d *mq.Delivery) error {
	// Остановка не прерывает текущую доставку: таймауты ограничивают каждый шаг
	work := context.WithoutCancel(ctx)
	work = telemetry.WithLogger(work, telemetry.WithMessageID(w.logger, d.Raw.MessageId))

	res := w.process(work, d.Body(), d.Headers())

	ackErr := d.Ack()
	w.report(d, res, ackErr)

	if ackErr != nil {
		return fmt.Errorf("ack delivery: %w", ackErr)
	}

	if res.cooldown > 0 {
		w.cooldown(ctx, res.cooldown)
	}

	if res.outcome == OutcomePublishFailed {
		return res.err
	}
	return nil
}

// process проводит доставку по машине состояний и выполняет побочный эффект.
func (w *Worker) process(ctx context.Context, body []byte, headers map[string]any) result {
	env := retry.FromHeaders(headers)
	res := result{attempt: env.AttemptCount}

	// 1. Decoding
	req, err := codec.Decode(body)
	if err != nil {
		res.kind = domain.FailureValidation.String()
		res.err = err
		return w.deadLetter(ctx, body, err.Error(), res)
	}
	res.req = req

	if w.isDuplicate(ctx, req) {
		res.outcome = OutcomeDuplicate
		return res
	}

	// 2. Extracting
	payload, err := w.extract(ctx, req)
	if err != nil {
		return w.handleFailure(ctx, body, headers, env, err, res)
	}

	// 3. Publishing
	err = w.publish(ctx, func(ctx context.Context) error {
		return w.publisher.PublishResult(ctx, payload)
	})
	if err != nil {
		w.metrics.IncPublishFailure(targetResult)
		res.err = fmt.Errorf("%w: %v", ErrResultPublish, err)
		return w.deadLetter(ctx, body, res.err.Error(), res)
	}

	w.markSeen(ctx, req)
	res.outcome = OutcomePublished
	return res
}

// extract вызывает extractor и кодирует запись для raw_recipe_data.
// Запись, которую нельзя закодировать, считается временной ошибкой.
func (w *Worker) extract(ctx context.Context, req *domain.CrawlRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, w.extractTimeout)
	defer cancel()

	start := time.Now()
	rec, err := w.extractor.Extract(ctx, req.SourceURL)

	var payload []byte
	if err == nil {
		payload, err = codec.EncodeResult(rec)
		if err != nil {
			err = domain.Transient(err)
		}
	}

	label := "ok"
	if err != nil {
		label = extractor.Classify(err).String()
	}
	w.metrics.ObserveExtract(label, time.Since(start))

	return payload, err
}

// handleFailure решает судьбу запроса после ошибки извлечения.
func (w *Worker) handleFailure(ctx context.Context, body []byte, headers map[string]any, env retry.Envelope, cause error, res result) result {
	kind := extractor.Classify(cause)
	res.kind = kind.String()
	res.err = cause

	decision := w.policy.Decide(kind, env.AttemptCount)
	if decision.IsDeadLetter() {
		reason := cause.Error()
		if kind.IsRetryable() {
			reason = fmt.Sprintf("%s, last error: %s", ErrRetryExhausted, cause)
		}
		return w.deadLetter(ctx, body, reason, res)
	}

	next := env.Next(w.now(), cause.Error())
	outHeaders := next.Headers(headers, decision.Delay)
	res.delay = decision.Delay

	err := w.publish(ctx, func(ctx context.Context) error {
		return w.redeliverer.Schedule(ctx, body, outHeaders)
	})
	if err != nil {
		w.metrics.IncPublishFailure(targetRetry)
		res.err = fmt.Errorf("%w: %v", ErrRetrySchedule, err)
		return w.deadLetter(ctx, body, res.err.Error(), res)
	}

	w.metrics.IncRetry(res.kind)
	res.outcome = OutcomeRetryScheduled
	res.cooldown = w.redeliverer.Cooldown(decision.Delay)
	return res
}

// deadLetter публикует FailedRecord в crawl_requests_failed.
//
// Если не удалась и эта публикация, исход — publish_failed:
// сообщение подтверждается, ошибка уходит в лог и метрики.
func (w *Worker) deadLetter(ctx context.Context, body []byte, reason string, res result) result {
	res.reason = reason

	payload, err := codec.EncodeFailure(body, reason, w.now())
	if err == nil {
		err = w.publish(ctx, func(ctx context.Context) error {
			return w.publisher.PublishDeadLetter(ctx, payload)
		})
	}
	if err != nil {
		w.metrics.IncPublishFailure(targetDeadLetter)
		res.outcome = OutcomePublishFailed
		res.err = fmt.Errorf("%w: %v", ErrDeadLetterPublish, err)
		return res
	}

	res.outcome = OutcomeDeadLettered
	return res
}

// publish выполняет одну публикацию с таймаутом.
func (w *Worker) publish(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, w.publishTimeout)
	defer cancel()
	return fn(ctx)
}

// dedupeKey — ключ дедупликации: один и тот же запрос (request_id + shortcode),
// доставленный повторно. Запрос без request_id не дедуплицируется.
func dedupeKey(req *domain.CrawlRequest) string {
	if req.RequestID == "" {
		return ""
	}
	return req.RequestID + ":" + req.Shortcode
}

// isDuplicate проверяет, публиковался ли уже результат для этого запроса.
// Ошибка хранилища не блокирует обработку.
func (w *Worker) isDuplicate(ctx context.Context, req *domain.CrawlRequest) bool {
	key := dedupeKey(req)
	if w.deduper == nil || key == "" {
		return false
	}

	seen, err := w.deduper.Seen(ctx, key)
	if err != nil {
		w.logger.Warn("dedupe check failed", "key", key, "error", err)
		return false
	}
	return seen
}

// markSeen запоминает опубликованный запрос.
func (w *Worker) markSeen(ctx context.Context, req *domain.CrawlRequest) {
	key := dedupeKey(req)
	if w.deduper == nil || key == "" {
		return
	}

	if err := w.deduper.Mark(ctx, key); err != nil {
		w.logger.Warn("dedupe mark failed", "key", key, "error", err)
	}
}

// cooldown приостанавливает worker перед следующей доставкой.
// Остановка прерывает паузу.
func (w *Worker) cooldown(ctx context.Context, d time.Duration) {
	w.logger.Info("cooling down before next delivery", "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// report пишет одну строку лога на терминальный переход и обновляет метрики.
func (w *Worker) report(d *mq.Delivery, res result, ackErr error) {
	logger := telemetry.WithMessageID(w.logger, d.Raw.MessageId)
	if res.req != nil {
		logger = telemetry.WithRequestID(telemetry.WithURL(logger, res.req.SourceURL), res.req.RequestID)
	}

	attrs := []any{"outcome", res.outcome, "attempt", res.attempt}

	switch res.outcome {
	case OutcomePublished:
		logger.Info("crawl request processed", attrs...)

	case OutcomeDuplicate:
		logger.Info("crawl request already published, skipping", attrs...)

	case OutcomeRetryScheduled:
		logger.Warn("retry scheduled", append(attrs,
			"kind", res.kind,
			"delay", retry.DelayLabel(res.delay),
			"next_attempt", res.attempt+1,
			"error", res.err,
		)...)

	case OutcomeDeadLettered:
		logger.Warn("crawl request dead-lettered", append(attrs,
			"kind", res.kind,
			"reason", res.reason,
		)...)

	case OutcomePublishFailed:
		logger.Error("crawl request dropped: dead letter publish failed", append(attrs,
			"kind", res.kind,
			"reason", res.reason,
			"error", res.err,
		)...)
	}

	if ackErr != nil {
		logger.Error("failed to ack delivery", "outcome", res.outcome, "error", ackErr)
	}

	w.metrics.IncProcessed(string(res.outcome))
}
