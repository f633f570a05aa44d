package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Значения по умолчанию.
const (
	defaultMaxReconnects = 5
	defaultReconnectBase = time.Second
	maxReconnectDelay    = 30 * time.Second
)

// SetupFunc вызывается на свежем канале после каждого (пере)подключения.
// Обычно объявляет топологию.
type SetupFunc func(ch *amqp.Channel) error

// Option настраивает Connection.
type Option func(*Connection)

// WithConfirms включает publisher confirms на канале.
func WithConfirms() Option {
	return func(c *Connection) { c.confirms = true }
}

// WithMaxReconnects ограничивает число попыток переподключения подряд.
func WithMaxReconnects(n int) Option {
	return func(c *Connection) {
		if n > 0 {
			c.maxReconnects = n
		}
	}
}

// WithReconnectDelay задаёт начальную задержку переподключения.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Connection) {
		if d > 0 {
			c.reconnectBase = d
		}
	}
}

// WithSetup задаёт функцию, выполняемую после каждого подключения.
func WithSetup(fn SetupFunc) Option {
	return func(c *Connection) { c.setup = fn }
}

// Connection — обёртка над AMQP соединением с автоматическим reconnect.
//
// Особенности:
//   - Переподключение с экспоненциальной задержкой и лимитом попыток
//   - Setup (топология) повторяется после каждого переподключения
//   - Исчерпание попыток закрывает Lost(), причина доступна через Err()
type Connection struct {
	url    string
	logger *slog.Logger

	confirms      bool
	setup         SetupFunc
	maxReconnects int
	reconnectBase time.Duration

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	lostCh   chan struct{}
	lostOnce sync.Once
	lostErr  error

	// Для уведомления о переподключении
	reconnectCh chan struct{}
}

// NewConnection создаёт новое соединение с RabbitMQ.
//
// Ошибка первого подключения или setup возвращается сразу, без повторов.
func NewConnection(url string, logger *slog.Logger, opts ...Option) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:           url,
		logger:        logger,
		maxReconnects: defaultMaxReconnects,
		reconnectBase: defaultReconnectBase,
		closedCh:      make(chan struct{}),
		lostCh:        make(chan struct{}),
		reconnectCh:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	// Запускаем горутину для мониторинга соединения
	go c.watchConnection()

	return c, nil
}

// connect устанавливает соединение, открывает канал и выполняет setup.
func (c *Connection) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if c.confirms {
		if err := ch.Confirm(false); err != nil {
			conn.Close()
			return fmt.Errorf("enable confirms: %w", err)
		}
	}

	if c.setup != nil {
		if err := c.setup(ch); err != nil {
			conn.Close()
			return fmt.Errorf("setup: %w", err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ", "confirms", c.confirms)

	return nil
}

// watchConnection следит за соединением и переподключается при разрыве.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn := c.conn
		ch := c.channel
		c.mu.RUnlock()

		// Ждём закрытия соединения или канала: канал закрывается брокером
		// при ошибках уровня канала, соединение при этом живо
		notifyConn := conn.NotifyClose(make(chan *amqp.Error, 1))
		notifyChan := ch.NotifyClose(make(chan *amqp.Error, 1))

		var cause *amqp.Error
		select {
		case <-c.closedCh:
			return
		case cause = <-notifyConn:
		case cause = <-notifyChan:
		}

		if c.isClosed() {
			return
		}

		if cause != nil {
			c.logger.Warn("connection closed", "error", cause)
		}
		conn.Close()

		if err := c.reconnect(); err != nil {
			c.markLost(err)
			return
		}
	}
}

// reconnect пытается переподключиться с экспоненциальной задержкой.
// Возвращает ошибку, если попытки исчерпаны.
func (c *Connection) reconnect() error {
	delay := c.reconnectBase
	var lastErr error

	for attempt := 1; attempt <= c.maxReconnects; attempt++ {
		c.logger.Info("attempting to reconnect",
			"attempt", attempt,
			"max_attempts", c.maxReconnects,
			"delay", delay,
		)

		select {
		case <-c.closedCh:
			return ErrConnectionClosed
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			lastErr = err
			c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			// Увеличиваем задержку (максимум 30 секунд)
			delay = min(delay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ", "attempt", attempt)

		// Уведомляем о переподключении
		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}

		return nil
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrConnectionLost, c.maxReconnects, lastErr)
}

// markLost фиксирует фатальную потерю соединения.
func (c *Connection) markLost(err error) {
	c.lostOnce.Do(func() {
		c.mu.Lock()
		c.lostErr = err
		c.mu.Unlock()

		c.logger.Error("connection to RabbitMQ lost", "error", err)
		close(c.lostCh)
	})
}

// Lost закрывается, когда переподключиться не удалось.
func (c *Connection) Lost() <-chan struct{} {
	return c.lostCh
}

// Err возвращает причину потери соединения или nil.
func (c *Connection) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lostErr
}

// Channel возвращает текущий AMQP канал.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify возвращает канал для уведомлений о переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.logger.Info("connection closed")
	return nil
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || c.channel == nil {
		return false
	}

	return !c.conn.IsClosed() && !c.channel.IsClosed()
}

func (c *Connection) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// WithChannel выполняет функцию с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}

	return fn(ch)
}
