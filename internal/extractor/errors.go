package extractor

import "errors"

// Ошибки extractor'а.
var (
	// ErrExtract — запрос к сервису извлечения не удался.
	ErrExtract = errors.New("extract failed")

	// ErrBadResponse — ответ сервиса не удалось разобрать.
	ErrBadResponse = errors.New("bad extractor response")

	// ErrNoBaseURL — не задан адрес сервиса извлечения.
	ErrNoBaseURL = errors.New("extractor base url is required")
)
