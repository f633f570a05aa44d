package extractor

import (
	"context"
	"strings"

	"github.com/shaiso/instacrawl/internal/domain"
)

// Extractor извлекает данные поста по ссылке.
//
// Ошибки должны быть классифицированы через domain.RateLimited,
// domain.Transient или domain.Validation. Неклассифицированная ошибка
// разбирается Classify.
type Extractor interface {
	Extract(ctx context.Context, sourceURL string) (*domain.ExtractedRecord, error)
}

// Func — адаптер обычной функции к Extractor.
type Func func(ctx context.Context, sourceURL string) (*domain.ExtractedRecord, error)

// Extract вызывает f.
func (f Func) Extract(ctx context.Context, sourceURL string) (*domain.ExtractedRecord, error) {
	return f(ctx, sourceURL)
}

// rateLimitMarkers — признаки rate limit в тексте ошибки.
var rateLimitMarkers = []string{"401", "403", "429", "rate limit"}

// Classify определяет класс ошибки.
//
// Явно заданный класс (domain.Failure) побеждает. Иначе текст ошибки
// проверяется на коды 401/403/429 и "rate limit"; всё остальное — Transient.
func Classify(err error) domain.FailureKind {
	if kind, ok := domain.KindOf(err); ok {
		return kind
	}
	if err == nil {
		return domain.FailureTransient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return domain.FailureRateLimited
		}
	}
	return domain.FailureTransient
}
