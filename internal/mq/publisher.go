package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// publishChannel — часть *amqp.Channel, нужная для публикации.
type publishChannel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
}

// Publisher публикует сообщения в RabbitMQ.
//
// Все сообщения persistent, с MessageId (uuid) и временем публикации.
// Если на соединении включены confirms, публикация считается успешной
// только после ack брокера.
type Publisher struct {
	channel func() (publishChannel, error)
	logger  *slog.Logger

	// mu сериализует публикацию и ожидание confirm
	mu sync.Mutex
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		channel: func() (publishChannel, error) {
			ch := conn.Channel()
			if ch == nil || ch.IsClosed() {
				return nil, ErrNoChannel
			}
			return ch, nil
		},
		logger: logger,
	}
}

// Publish публикует body в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey string, body []byte, headers map[string]any) error {
	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("publish to %q/%s: %w", exchange, routingKey, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table(headers),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		string(exchange), // exchange
		routingKey,       // routing key
		false,            // mandatory
		false,            // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("publish to %q/%s: %w", exchange, routingKey, err)
	}

	// Без confirm mode брокер ничего не подтверждает
	if confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("wait confirm %q/%s: %w", exchange, routingKey, err)
		}
		if !acked {
			return fmt.Errorf("publish to %q/%s: %w", exchange, routingKey, ErrNack)
		}
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.MessageId,
		"bytes", len(body),
	)

	return nil
}

// PublishResult публикует ExtractedRecord в raw_recipe_data.
func (p *Publisher) PublishResult(ctx context.Context, body []byte) error {
	return p.Publish(ctx, ExchangeDefault, string(QueueResults), body, nil)
}

// PublishDeadLetter публикует FailedRecord в crawl_requests_failed.
func (p *Publisher) PublishDeadLetter(ctx context.Context, body []byte) error {
	return p.Publish(ctx, ExchangeDefault, string(QueueFailed), body, nil)
}

// PublishWork публикует запрос в crawl_requests.
func (p *Publisher) PublishWork(ctx context.Context, body []byte, headers map[string]any) error {
	return p.Publish(ctx, ExchangeDefault, string(QueueRequests), body, headers)
}

// PublishDelayed публикует запрос в delayed_exchange.
// Задержка берётся брокером из заголовка x-delay.
func (p *Publisher) PublishDelayed(ctx context.Context, body []byte, headers map[string]any) error {
	return p.Publish(ctx, ExchangeDelayed, string(QueueRequests), body, headers)
}
