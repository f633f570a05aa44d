package domain

import "errors"

// FailureKind — класс ошибки обработки, от него зависит retry.
type FailureKind int

const (
	// FailureTransient — временная ошибка (таймаут, недоступность, сбой парсинга).
	FailureTransient FailureKind = iota

	// FailureRateLimited — upstream явно ограничил нас (401/403, rate limit).
	FailureRateLimited

	// FailureValidation — вход отклонён до сетевого вызова. Retry бессмысленен.
	FailureValidation
)

// String возвращает имя класса для логов и метрик.
func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate_limited"
	case FailureValidation:
		return "validation"
	default:
		return "transient"
	}
}

// IsRetryable — можно ли повторить обработку при этой ошибке.
func (k FailureKind) IsRetryable() bool {
	return k != FailureValidation
}

// Failure — ошибка с известным классом.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// RateLimited помечает ошибку как rate limit.
func RateLimited(err error) error {
	return &Failure{Kind: FailureRateLimited, Err: err}
}

// Transient помечает ошибку как временную.
func Transient(err error) error {
	return &Failure{Kind: FailureTransient, Err: err}
}

// Validation помечает ошибку как ошибку валидации.
func Validation(err error) error {
	return &Failure{Kind: FailureValidation, Err: err}
}

// KindOf возвращает класс ошибки, если он был задан явно.
func KindOf(err error) (FailureKind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return FailureTransient, false
}
