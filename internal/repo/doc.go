// Package repo — доступ к Postgres через pgx.
//
// Сейчас здесь один репозиторий: FailedRepo, архив dead letters,
// который наполняет `crawlctl dlq archive`. Worker сам в базу не ходит.
package repo
