package retry

import (
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/shaiso/instacrawl/internal/domain"
)

// Заголовки сообщения, в которых живёт состояние retry.
const (
	HeaderRetryCount   = "x-retry-count"
	HeaderFirstAttempt = "x-first-attempt"
	HeaderLastError    = "x-last-error"

	// HeaderDelay читает delayed message exchange (миллисекунды).
	HeaderDelay = "x-delay"
)

// MaxErrorLength — предел длины x-last-error в символах.
const MaxErrorLength = 500

// Envelope — метаданные retry, которые едут вместе с запросом.
//
// Внешнего хранилища нет: всё состояние в заголовках сообщения,
// поэтому любой экземпляр worker'а может продолжить обработку.
type Envelope struct {
	// AttemptCount — сколько повторов уже запланировано. Только растёт.
	AttemptCount int

	// FirstAttemptAt — время первой ошибки. Устанавливается один раз.
	FirstAttemptAt time.Time

	// LastError — текст последней ошибки, не длиннее MaxErrorLength.
	LastError string
}

// FromHeaders восстанавливает Envelope из заголовков доставки.
// Отсутствующие или нечитаемые значения дают нулевые поля.
func FromHeaders(headers map[string]any) Envelope {
	var env Envelope
	if headers == nil {
		return env
	}

	if n, ok := asInt64(headers[HeaderRetryCount]); ok && n > 0 {
		env.AttemptCount = int(n)
	}
	env.FirstAttemptAt = asTime(headers[HeaderFirstAttempt])
	if s, ok := headers[HeaderLastError].(string); ok {
		env.LastError = s
	}

	return env
}

// Next возвращает Envelope для следующей доставки.
//
// AttemptCount увеличивается ровно на 1, FirstAttemptAt сохраняется,
// LastError перезаписывается (с обрезкой).
func (e Envelope) Next(now time.Time, errText string) Envelope {
	first := e.FirstAttemptAt
	if first.IsZero() {
		first = now
	}

	return Envelope{
		AttemptCount:   e.AttemptCount + 1,
		FirstAttemptAt: first,
		LastError:      Truncate(errText, MaxErrorLength),
	}
}

// Headers копирует base и записывает в копию поля Envelope и задержку.
// base не изменяется.
func (e Envelope) Headers(base map[string]any, delay time.Duration) map[string]any {
	headers := make(map[string]any, len(base)+4)
	for k, v := range base {
		headers[k] = v
	}

	headers[HeaderRetryCount] = int32(e.AttemptCount)
	if !e.FirstAttemptAt.IsZero() {
		headers[HeaderFirstAttempt] = e.FirstAttemptAt.Unix()
	}
	headers[HeaderLastError] = e.LastError
	headers[HeaderDelay] = int32(delay / time.Millisecond)

	return headers
}

// WithoutRetryHeaders возвращает копию заголовков без полей Envelope.
// Используется при ручном replay из DLQ: запрос начинает жизнь заново.
func WithoutRetryHeaders(headers map[string]any) map[string]any {
	clean := make(map[string]any, len(headers))
	for k, v := range headers {
		switch k {
		case HeaderRetryCount, HeaderFirstAttempt, HeaderLastError, HeaderDelay:
			continue
		}
		clean[k] = v
	}
	return clean
}

// Truncate обрезает строку до limit символов (не байт).
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// asInt64 читает целое из заголовка AMQP любой ширины.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil
	}
	return 0, false
}

// asTime читает x-first-attempt: epoch seconds, time.Time или ISO-8601.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case float32:
		return domain.FromEpochSeconds(float64(t))
	case float64:
		return domain.FromEpochSeconds(t)
	case string:
		if parsed, err := domain.ParseISOTime(t); err == nil {
			return parsed
		}
		if secs, err := strconv.ParseFloat(t, 64); err == nil {
			return domain.FromEpochSeconds(secs)
		}
		return time.Time{}
	}

	if secs, ok := asInt64(v); ok && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}
