// Package telemetry обеспечивает наблюдаемость worker'а.
//
// Включает:
//   - logging.go — structured logging через slog (LOG_LEVEL, LOG_FORMAT)
//   - metrics.go — Prometheus метрики
//
// Каждая доставка заканчивается ровно одной строкой лога с полем outcome
// и инкрементом crawl_messages_processed_total{outcome}.
// Метрики отдаются на /metrics.
package telemetry
