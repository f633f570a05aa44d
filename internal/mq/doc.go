// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (confirms, reconnect с лимитом, setup)
//   - topology.go   — объявление очередей и delayed exchange
//   - publisher.go  — публикация сообщений с ожиданием confirm
//   - consumer.go   — последовательное потребление, basic.get для CLI
//   - redelivery.go — механизмы повторной доставки (delayed, requeue)
//
// Очереди (default exchange, routing key = имя очереди):
//   - crawl_requests         — входящие запросы
//   - raw_recipe_data        — извлечённые записи
//   - crawl_requests_failed  — dead letters
//
// Exchanges:
//   - delayed_exchange — x-delayed-message, только в режиме delayed
package mq
