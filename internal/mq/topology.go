package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// Exchanges — имена обменников.
const (
	// ExchangeDefault — безымянный обменник, маршрутизирует по имени очереди.
	ExchangeDefault Exchange = ""

	// ExchangeDelayed — обменник плагина rabbitmq_delayed_message_exchange.
	ExchangeDelayed Exchange = "delayed_exchange"
)

// Queues — имена очередей.
const (
	QueueRequests Queue = "crawl_requests"
	QueueResults  Queue = "raw_recipe_data"
	QueueFailed   Queue = "crawl_requests_failed"
)

// Аргументы delayed exchange.
const (
	delayedExchangeKind = "x-delayed-message"
	delayedTypeArg      = "x-delayed-type"
)

// declarer — часть *amqp.Channel, нужная для объявления топологии.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// TopologySetup возвращает SetupFunc для Connection.
//
// delayed=true дополнительно объявляет delayed_exchange и привязывает
// к нему crawl_requests. Без плагина объявление падает, и это фатально:
// режим повторной доставки выбирается при старте, а не на лету.
func TopologySetup(delayed bool) SetupFunc {
	return func(ch *amqp.Channel) error {
		return declareTopology(ch, delayed)
	}
}

func declareTopology(ch declarer, delayed bool) error {
	// 1. Создаём queues
	if err := declareQueues(ch); err != nil {
		return err
	}

	if !delayed {
		return nil
	}

	// 2. Delayed exchange и привязка к рабочей очереди
	return declareDelayed(ch)
}

// declareQueues создаёт очереди.
func declareQueues(ch declarer) error {
	for _, q := range []Queue{QueueRequests, QueueResults, QueueFailed} {
		_, err := ch.QueueDeclare(
			string(q), // name
			true,      // durable
			false,     // delete when unused
			false,     // exclusive
			false,     // no-wait
			nil,       // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	return nil
}

// declareDelayed создаёт delayed exchange и привязывает crawl_requests.
func declareDelayed(ch declarer) error {
	err := ch.ExchangeDeclare(
		string(ExchangeDelayed), // name
		delayedExchangeKind,     // type
		true,                    // durable
		false,                   // auto-deleted
		false,                   // internal
		false,                   // no-wait
		amqp.Table{delayedTypeArg: "direct"},
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeDelayed, err)
	}

	err = ch.QueueBind(
		string(QueueRequests),   // queue name
		string(QueueRequests),   // routing key
		string(ExchangeDelayed), // exchange
		false,                   // no-wait
		nil,                     // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", QueueRequests, ExchangeDelayed, err)
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(delayed bool) string {
	info := `
  Crawl RabbitMQ Topology:

    (default exchange)
    ├── crawl_requests         Consumer: crawl-worker
    ├── raw_recipe_data        Consumer: downstream parser
    └── crawl_requests_failed  Manual processing (crawlctl dlq)
`
	if delayed {
		info += `
    delayed_exchange (x-delayed-message, direct)
    └── crawl_requests [routing: crawl_requests, delay: x-delay ms]
`
	}
	return info
}
