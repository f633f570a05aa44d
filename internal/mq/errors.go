package mq

import "errors"

// Ошибки пакета mq.
var (
	// ErrNoChannel — канал недоступен (идёт переподключение).
	ErrNoChannel = errors.New("no channel available")

	// ErrConnectionClosed — соединение закрыто через Close.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrConnectionLost — переподключиться не удалось.
	ErrConnectionLost = errors.New("connection to broker lost")

	// ErrNack — брокер отклонил публикацию (publisher confirm nack).
	ErrNack = errors.New("publish not confirmed by broker")

	// ErrEmptyQueue — в очереди нет сообщений (basic.get).
	ErrEmptyQueue = errors.New("queue is empty")
)
