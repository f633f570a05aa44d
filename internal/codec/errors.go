package codec

import "errors"

// Ошибки декодирования. Все они оборачиваются в domain.Validation:
// повтор не поможет, сообщение сразу уходит в DLQ.
var (
	// ErrMalformedEnvelope — тело не JSON-объект и не список с объектом первым элементом.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrMissingField — нет обязательного поля.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidField — поле есть, но у него неверный тип.
	ErrInvalidField = errors.New("invalid field")

	// ErrInvalidURL — instagram_url не абсолютный http(s) URL.
	ErrInvalidURL = errors.New("invalid url")

	// ErrInvalidURLShape — путь не /p/{id} и не /reel/{id}.
	ErrInvalidURLShape = errors.New("invalid instagram url format")
)
