package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/instacrawl/internal/domain"
	"github.com/shaiso/instacrawl/internal/mq"
)

// Broker — операции RabbitMQ, нужные командам CLI.
type Broker interface {
	PublishWork(ctx context.Context, body []byte, headers map[string]any) error
	Get(ctx context.Context, queue mq.Queue) (*mq.Delivery, error)
	Close() error
}

// Archive — хранилище архивированных dead letters.
type Archive interface {
	Insert(ctx context.Context, f *domain.ArchivedFailure) error
	List(ctx context.Context, limit int) ([]domain.ArchivedFailure, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ArchivedFailure, error)
}

// Client — подключение CLI к RabbitMQ.
//
// Публикация идёт с publisher confirms. При подключении объявляются
// очереди (без delayed exchange), поэтому CLI работает и до первого
// запуска worker'а.
type Client struct {
	conn      *mq.Connection
	publisher *mq.Publisher
}

// Dial подключается к RabbitMQ.
func Dial(url string, logger *slog.Logger) (*Client, error) {
	conn, err := mq.NewConnection(url, logger,
		mq.WithConfirms(),
		mq.WithSetup(mq.TopologySetup(false)),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		conn:      conn,
		publisher: mq.NewPublisher(conn, logger),
	}, nil
}

// PublishWork публикует запрос в crawl_requests.
func (c *Client) PublishWork(ctx context.Context, body []byte, headers map[string]any) error {
	return c.publisher.PublishWork(ctx, body, headers)
}

// Get забирает одно сообщение из очереди.
func (c *Client) Get(ctx context.Context, queue mq.Queue) (*mq.Delivery, error) {
	return mq.Get(ctx, c.conn, queue)
}

// Close закрывает соединение.
func (c *Client) Close() error {
	return c.conn.Close()
}

// drain забирает до limit сообщений из очереди и передаёт их в fn.
//
// Сообщения не подтверждаются автоматически: fn сама вызывает Ack
// или возвращает keep=true, и тогда доставка возвращается в очередь
// после обхода. Пока обход не закончен, такие сообщения остаются
// неподтверждёнными и повторно не выдаются.
func drain(ctx context.Context, b Broker, queue mq.Queue, limit int, fn func(d *mq.Delivery) (keep bool, err error)) error {
	var kept []*mq.Delivery
	defer func() {
		for _, d := range kept {
			_ = d.Nack(true)
		}
	}()

	n := 0
	for limit <= 0 || n < limit {
		d, err := b.Get(ctx, queue)
		if errors.Is(err, mq.ErrEmptyQueue) {
			break
		}
		if err != nil {
			return err
		}
		n++

		keep, err := fn(d)
		if keep {
			kept = append(kept, d)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// defaultRequestID — request_id для ручной отправки.
func defaultRequestID(now time.Time) string {
	return "manual-" + now.Format("20060102-150405")
}
