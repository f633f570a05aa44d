// Package config читает настройки crawl-worker и crawlctl из окружения.
//
// Пустая переменная означает значение по умолчанию.
// Некорректное значение — ошибка загрузки, а не молчаливый default.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Значения по умолчанию.
const (
	DefaultRedeliveryMode  = "delayed"
	DefaultRequeueCooldown = 60 * time.Second
	DefaultMaxRetries      = 3
	DefaultMaxReconnects   = 5
	DefaultReconnectDelay  = time.Second
	DefaultExtractorURL    = "http://localhost:8000"
	DefaultExtractorRate   = 0.5
	DefaultExtractTimeout  = 2 * time.Minute
	DefaultPublishTimeout  = 15 * time.Second
	DefaultDedupeTTL       = 24 * time.Hour
	DefaultWorkerPort      = "8082"
)

// Config — настройки процесса.
type Config struct {
	RabbitMQURL    string
	RedeliveryMode string

	// RequeueCooldown — верхняя граница паузы в режиме requeue.
	RequeueCooldown time.Duration

	MaxRetries    int
	MaxReconnects int

	// ReconnectDelay — начальная задержка переподключения, дальше она удваивается.
	ReconnectDelay time.Duration

	ExtractorURL   string
	ExtractorRate  float64
	ExtractTimeout time.Duration
	PublishTimeout time.Duration

	// RedisAddr — пусто, если dedupe выключен.
	RedisAddr string
	DedupeTTL time.Duration

	WorkerPort string

	// DBURL нужен только crawlctl dlq.
	DBURL string
}

// Load читает конфигурацию из окружения.
func Load() (*Config, error) {
	cfg := &Config{
		RabbitMQURL:    rabbitURL(),
		RedeliveryMode: strings.ToLower(getEnv("REDELIVERY_MODE", DefaultRedeliveryMode)),
		ExtractorURL:   getEnv("EXTRACTOR_URL", DefaultExtractorURL),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		WorkerPort:     getEnv("WORKER_PORT", DefaultWorkerPort),
		DBURL:          os.Getenv("DB_URL"),
	}

	var err error

	if cfg.RequeueCooldown, err = parseDuration("REQUEUE_COOLDOWN", DefaultRequeueCooldown); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = parseInt("MAX_RETRIES", DefaultMaxRetries); err != nil {
		return nil, err
	}
	if cfg.MaxReconnects, err = parseInt("RABBITMQ_MAX_RECONNECTS", DefaultMaxReconnects); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay, err = parseDuration("RABBITMQ_RECONNECT_DELAY", DefaultReconnectDelay); err != nil {
		return nil, err
	}
	if cfg.ExtractorRate, err = parseFloat("EXTRACTOR_RATE", DefaultExtractorRate); err != nil {
		return nil, err
	}
	if cfg.ExtractTimeout, err = parseDuration("EXTRACT_TIMEOUT", DefaultExtractTimeout); err != nil {
		return nil, err
	}
	if cfg.PublishTimeout, err = parseDuration("PUBLISH_TIMEOUT", DefaultPublishTimeout); err != nil {
		return nil, err
	}
	if cfg.DedupeTTL, err = parseDuration("DEDUPE_TTL", DefaultDedupeTTL); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate проверяет значения, которые нельзя исправить default'ом.
func (c *Config) validate() error {
	switch c.RedeliveryMode {
	case "delayed", "requeue":
	default:
		return fmt.Errorf("REDELIVERY_MODE must be delayed or requeue, got %q", c.RedeliveryMode)
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be >= 1, got %d", c.MaxRetries)
	}
	if c.MaxReconnects < 1 {
		return fmt.Errorf("RABBITMQ_MAX_RECONNECTS must be >= 1, got %d", c.MaxReconnects)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("RABBITMQ_RECONNECT_DELAY must be > 0, got %s", c.ReconnectDelay)
	}
	if c.ExtractorRate <= 0 {
		return fmt.Errorf("EXTRACTOR_RATE must be > 0, got %v", c.ExtractorRate)
	}

	u, err := url.Parse(c.ExtractorURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("EXTRACTOR_URL is not a valid URL: %q", c.ExtractorURL)
	}

	if _, err := strconv.Atoi(c.WorkerPort); err != nil {
		return fmt.Errorf("WORKER_PORT must be a number, got %q", c.WorkerPort)
	}

	return nil
}

// ListenAddr возвращает адрес HTTP-сервера /healthz и /metrics.
func (c *Config) ListenAddr() string {
	return ":" + c.WorkerPort
}

// rabbitURL берёт RABBITMQ_URL или собирает адрес из RABBITMQ_HOST/PORT/USER/PASS.
func rabbitURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}

	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(getEnv("RABBITMQ_USER", "guest"), getEnv("RABBITMQ_PASS", "guest")),
		Host:   net.JoinHostPort(getEnv("RABBITMQ_HOST", "localhost"), getEnv("RABBITMQ_PORT", "5672")),
		Path:   "/",
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration %s", key, d)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
