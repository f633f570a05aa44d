package worker

import "errors"

// Ошибки воркера.
var (
	// ErrNoConnection — не задано соединение с RabbitMQ.
	ErrNoConnection = errors.New("no broker connection")

	// ErrNotConfigured — не задан publisher, redeliverer или extractor.
	ErrNotConfigured = errors.New("worker is not fully configured")

	// ErrRetryExhausted — все попытки retry исчерпаны.
	ErrRetryExhausted = errors.New("max retries exceeded")

	// ErrRetrySchedule — не удалось запланировать повтор.
	ErrRetrySchedule = errors.New("retry scheduling failed")

	// ErrResultPublish — не удалось опубликовать результат.
	ErrResultPublish = errors.New("result publish failed")

	// ErrDeadLetterPublish — не удалось опубликовать dead letter.
	ErrDeadLetterPublish = errors.New("dead letter publish failed")
)
