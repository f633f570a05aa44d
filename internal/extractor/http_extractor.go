package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaiso/instacrawl/internal/codec"
	"github.com/shaiso/instacrawl/internal/domain"
	"github.com/shaiso/instacrawl/internal/retry"
	"github.com/shaiso/instacrawl/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultTimeout = 2 * time.Minute
	defaultRate    = 0.5
	defaultBurst   = 1

	maxResponseBody = 10 << 20

	// maxErrorBody — сколько символов тела ответа попадает в текст ошибки.
	maxErrorBody = 200
)

// HTTPConfig — конфигурация HTTPExtractor.
type HTTPConfig struct {
	// BaseURL — адрес сервиса извлечения, например http://scraper:8000.
	BaseURL string

	// Rate — сколько вызовов в секунду допускается на весь процесс (default: 0.5).
	Rate float64

	// Burst — сколько вызовов можно сделать подряд (default: 1).
	Burst int

	// Timeout — таймаут одного вызова (default: 2m).
	Timeout time.Duration

	// Client — HTTP-клиент (опционально).
	Client *http.Client
}

// HTTPExtractor вызывает сервис извлечения: POST {base}/extract {"url": ...}.
//
// Ответ 200 — ExtractedRecord в JSON. Коды ответа классифицируются:
//   - 401, 403, 429 → RateLimited
//   - остальные ≥ 400 → Transient
//
// Сетевые ошибки, таймауты и неразбираемые ответы тоже Transient.
type HTTPExtractor struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
}

// extractRequest — тело запроса к сервису.
type extractRequest struct {
	URL string `json:"url"`
}

// NewHTTPExtractor создаёт HTTPExtractor.
func NewHTTPExtractor(cfg HTTPConfig) (*HTTPExtractor, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, ErrNoBaseURL
	}

	r := cfg.Rate
	if r <= 0 {
		r = defaultRate
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &HTTPExtractor{
		endpoint: base + "/extract",
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(r), burst),
		timeout:  timeout,
	}, nil
}

// Extract извлекает запись по ссылке.
func (e *HTTPExtractor) Extract(ctx context.Context, sourceURL string) (*domain.ExtractedRecord, error) {
	// Ждём своей очереди у лимитера
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, domain.Transient(fmt.Errorf("%w: rate limiter: %v", ErrExtract, err))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(extractRequest{URL: sourceURL})
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("%w: marshal request: %v", ErrExtract, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("%w: create request: %v", ErrExtract, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("%w: %v", ErrExtract, err))
	}
	defer resp.Body.Close()

	telemetry.FromContext(ctx).Debug("extractor responded",
		"url", sourceURL,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("%w: read response: %v", ErrExtract, err))
	}

	if resp.StatusCode >= 400 {
		return nil, statusError(resp.StatusCode, body)
	}

	rec, err := codec.DecodeResult(body)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("%w: %v", ErrBadResponse, err))
	}
	if rec.URL == "" {
		rec.URL = sourceURL
	}
	if rec.Timestamp.IsZero() {
		return nil, domain.Transient(fmt.Errorf("%w: missing timestamp", ErrBadResponse))
	}

	return rec, nil
}

// statusError классифицирует HTTP-ответ с ошибкой. Вход уже проверен
// декодером, поэтому любой отказ сервиса, кроме rate limit, повторяется.
func statusError(status int, body []byte) error {
	err := fmt.Errorf("%w: HTTP %d: %s", ErrExtract, status, errorBody(body))

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return domain.RateLimited(err)
	default:
		return domain.Transient(err)
	}
}

// errorBody обрезает тело ответа по символам, не разрывая UTF-8.
func errorBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if cut := retry.Truncate(s, maxErrorBody); cut != s {
		return cut + "..."
	}
	return s
}
