// Package extractor — граница между worker'ом и внешним извлечением данных.
//
// Сам scraper живёт за HTTP в отдельном сервисе. Worker видит только
// интерфейс Extractor и три класса ошибок (domain.FailureKind):
//
//   - RateLimited — upstream нас ограничил (401, 403, 429)
//   - Validation  — ссылка отклонена декодером до вызова сервиса
//   - Transient   — всё остальное: сеть, таймауты, 5xx, мусор в ответе
//
// HTTPExtractor ограничивает частоту вызовов через golang.org/x/time/rate:
// upstream лимитирует весь процесс, а не отдельную ссылку.
package extractor
