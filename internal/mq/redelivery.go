package mq

import (
	"context"
	"time"
)

// DefaultRequeueCooldown — верхняя граница паузы в режиме requeue.
const DefaultRequeueCooldown = 60 * time.Second

// Режимы повторной доставки.
const (
	ModeDelayed = "delayed"
	ModeRequeue = "requeue"
)

type delayedPublisher interface {
	PublishDelayed(ctx context.Context, body []byte, headers map[string]any) error
}

type workPublisher interface {
	PublishWork(ctx context.Context, body []byte, headers map[string]any) error
}

// DelayedRedeliverer планирует повтор через delayed_exchange.
//
// Брокер держит сообщение x-delay миллисекунд, worker не ждёт.
type DelayedRedeliverer struct {
	pub delayedPublisher
}

// NewDelayedRedeliverer создаёт DelayedRedeliverer.
func NewDelayedRedeliverer(pub delayedPublisher) *DelayedRedeliverer {
	return &DelayedRedeliverer{pub: pub}
}

// Schedule публикует тело с обновлёнными заголовками в delayed_exchange.
func (r *DelayedRedeliverer) Schedule(ctx context.Context, body []byte, headers map[string]any) error {
	return r.pub.PublishDelayed(ctx, body, headers)
}

// Cooldown всегда 0: задержку обеспечивает брокер.
func (r *DelayedRedeliverer) Cooldown(time.Duration) time.Duration {
	return 0
}

// Mode возвращает имя режима.
func (r *DelayedRedeliverer) Mode() string {
	return ModeDelayed
}

// RequeueRedeliverer — деградированный режим без плагина задержек.
//
// Запрос сразу публикуется обратно в crawl_requests вместе с обновлёнными
// заголовками, поэтому счётчик попыток сохраняется. Задержку заменяет
// пауза всего worker'а после ack: min(delay, maxCooldown).
type RequeueRedeliverer struct {
	pub         workPublisher
	maxCooldown time.Duration
}

// NewRequeueRedeliverer создаёт RequeueRedeliverer.
// maxCooldown <= 0 означает DefaultRequeueCooldown.
func NewRequeueRedeliverer(pub workPublisher, maxCooldown time.Duration) *RequeueRedeliverer {
	if maxCooldown <= 0 {
		maxCooldown = DefaultRequeueCooldown
	}
	return &RequeueRedeliverer{pub: pub, maxCooldown: maxCooldown}
}

// Schedule публикует тело с обновлёнными заголовками в crawl_requests.
func (r *RequeueRedeliverer) Schedule(ctx context.Context, body []byte, headers map[string]any) error {
	return r.pub.PublishWork(ctx, body, headers)
}

// Cooldown возвращает паузу перед следующей доставкой.
func (r *RequeueRedeliverer) Cooldown(delay time.Duration) time.Duration {
	return max(min(delay, r.maxCooldown), 0)
}

// Mode возвращает имя режима.
func (r *RequeueRedeliverer) Mode() string {
	return ModeRequeue
}
