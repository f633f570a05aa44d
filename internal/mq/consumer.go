package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler — функция обработки сообщения.
//
// Handler сам подтверждает доставку (Ack/Nack). Возвращённая ошибка
// только логируется: решение о судьбе сообщения уже принято внутри.
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленное сообщение с методами ack/nack.
type Delivery struct {
	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Body возвращает тело сообщения.
func (d *Delivery) Body() []byte {
	return d.Raw.Body
}

// Headers возвращает заголовки сообщения (может быть nil).
func (d *Delivery) Headers() map[string]any {
	return d.Raw.Headers
}

// Ack подтверждает обработку сообщения.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — выбросить.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// Consumer потребляет сообщения из очереди RabbitMQ.
//
// Сообщения обрабатываются строго последовательно: следующее берётся
// только после возврата Handler.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int
	tag      string

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки (default: 1).
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
		tag:      "crawl-worker-" + uuid.NewString(),
	}
}

// Start запускает потребление сообщений и блокируется до остановки.
//
// Возвращает ctx.Err() при остановке и ошибку соединения, если
// переподключиться не удалось.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer cancel()

	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.Lost():
			return c.lostErr()
		default:
		}

		// Получаем канал доставки
		ch, deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consumer started", "queue", c.queue, "tag", c.tag, "prefetch", c.prefetch)

		// Обрабатываем сообщения
		err = c.processDeliveries(ctx, deliveries)
		if ctx.Err() != nil {
			c.cancelConsume(ch)
			return ctx.Err()
		}

		c.logger.Warn("deliveries channel closed, waiting for reconnect", "queue", c.queue, "error", err)
		if err := c.waitReconnect(ctx); err != nil {
			return err
		}
		c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
	}
}

// waitReconnect ждёт переподключения, остановки или потери соединения.
func (c *Consumer) waitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.Lost():
		return c.lostErr()
	case <-c.conn.ReconnectNotify():
		return nil
	}
}

func (c *Consumer) lostErr() error {
	if err := c.conn.Err(); err != nil {
		return err
	}
	return ErrConnectionLost
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, nil, ErrNoChannel
	}

	// Устанавливаем prefetch
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	// Начинаем потребление
	deliveries, err := ch.Consume(
		c.queue, // queue
		c.tag,   // consumer tag
		false,   // auto-ack (мы ack вручную)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, nil, fmt.Errorf("consume: %w", err)
	}

	return ch, deliveries, nil
}

// cancelConsume отменяет подписку, чтобы брокер перестал слать сообщения.
func (c *Consumer) cancelConsume(ch *amqp.Channel) {
	if ch == nil || ch.IsClosed() {
		return
	}
	if err := ch.Cancel(c.tag, false); err != nil && !errors.Is(err, amqp.ErrClosed) {
		c.logger.Warn("failed to cancel consumer", "queue", c.queue, "error", err)
	}
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}

			c.dispatch(ctx, raw)
		}
	}
}

// dispatch передаёт одно сообщение обработчику.
func (c *Consumer) dispatch(ctx context.Context, raw amqp.Delivery) {
	c.logger.Debug("received message",
		"queue", c.queue,
		"message_id", raw.MessageId,
		"redelivered", raw.Redelivered,
	)

	if err := c.handler(ctx, &Delivery{Raw: raw}); err != nil {
		c.logger.Error("handler failed",
			"queue", c.queue,
			"message_id", raw.MessageId,
			"error", err,
		)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// Get забирает одно сообщение из очереди (basic.get) без auto-ack.
// Если очередь пуста, возвращает ErrEmptyQueue.
func Get(ctx context.Context, conn *Connection, queue Queue) (*Delivery, error) {
	var delivery *Delivery

	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		raw, ok, err := ch.Get(string(queue), false)
		if err != nil {
			return fmt.Errorf("get from %s: %w", queue, err)
		}
		if !ok {
			return ErrEmptyQueue
		}
		delivery = &Delivery{Raw: raw}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return delivery, nil
}
