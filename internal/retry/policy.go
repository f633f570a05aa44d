package retry

import (
	"fmt"
	"time"

	"github.com/shaiso/instacrawl/internal/domain"
)

// DefaultMaxRetries — сколько раз сообщение может быть отправлено на повтор.
const DefaultMaxRetries = 3

// Таблицы задержек по номеру попытки. Индекс — min(attempt, len-1).
var (
	// rate limit держится от минут до часов
	defaultRateLimitDelays = []time.Duration{5 * time.Minute, 15 * time.Minute, 60 * time.Minute}

	// временные ошибки обычно проходят за секунды
	defaultTransientDelays = []time.Duration{30 * time.Second, 5 * time.Minute, 15 * time.Minute}
)

// Action — что делать с сообщением после ошибки.
type Action int

const (
	// ActionRetry — отправить на повторную доставку с задержкой.
	ActionRetry Action = iota

	// ActionDeadLetter — отправить в DLQ, повторов больше не будет.
	ActionDeadLetter
)

// Decision — результат Policy.Decide.
type Decision struct {
	Action Action
	Delay  time.Duration
}

// Retry — решение повторить через delay.
func Retry(delay time.Duration) Decision {
	return Decision{Action: ActionRetry, Delay: delay}
}

// DeadLetter — решение отправить в DLQ.
func DeadLetter() Decision {
	return Decision{Action: ActionDeadLetter}
}

// IsDeadLetter возвращает true, если сообщение нужно отправить в DLQ.
func (d Decision) IsDeadLetter() bool {
	return d.Action == ActionDeadLetter
}

func (d Decision) String() string {
	if d.IsDeadLetter() {
		return "dead_letter"
	}
	return fmt.Sprintf("retry(%s)", d.Delay)
}

// Policy — ступенчатый backoff с общим лимитом повторов.
//
// Задержка берётся из таблицы по номеру попытки, а не вычисляется формулой.
// После последнего элемента таблицы задержка не растёт.
type Policy struct {
	// MaxRetries — после стольких повторов сообщение уходит в DLQ.
	MaxRetries int

	// RateLimitDelays — задержки для domain.FailureRateLimited.
	RateLimitDelays []time.Duration

	// TransientDelays — задержки для domain.FailureTransient.
	TransientDelays []time.Duration
}

// DefaultPolicy возвращает политику по умолчанию:
// rate limit 5m → 15m → 60m, временные ошибки 30s → 5m → 15m, максимум 3 повтора.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      DefaultMaxRetries,
		RateLimitDelays: defaultRateLimitDelays,
		TransientDelays: defaultTransientDelays,
	}
}

// Decide решает судьбу сообщения по классу ошибки и числу уже сделанных повторов.
//
// Чистая функция: не зависит от времени и состояния.
func (p Policy) Decide(kind domain.FailureKind, attempt int) Decision {
	if !kind.IsRetryable() {
		return DeadLetter()
	}

	if attempt < 0 {
		attempt = 0
	}

	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if attempt >= maxRetries {
		return DeadLetter()
	}

	return Retry(tierDelay(p.delaysFor(kind), attempt))
}

// delaysFor возвращает таблицу задержек для класса ошибки.
func (p Policy) delaysFor(kind domain.FailureKind) []time.Duration {
	if kind == domain.FailureRateLimited {
		if len(p.RateLimitDelays) > 0 {
			return p.RateLimitDelays
		}
		return defaultRateLimitDelays
	}

	if len(p.TransientDelays) > 0 {
		return p.TransientDelays
	}
	return defaultTransientDelays
}

// tierDelay — элемент таблицы с усечением по последнему индексу.
func tierDelay(delays []time.Duration, attempt int) time.Duration {
	return delays[min(attempt, len(delays)-1)]
}

// DelayLabel форматирует задержку для логов: 30s, 5m, 1h.
func DelayLabel(d time.Duration) string {
	secs := int64(d / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	default:
		return fmt.Sprintf("%dh", secs/3600)
	}
}
