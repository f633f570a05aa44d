package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/instacrawl/internal/domain"
)

//go:embed migrations/001_failed_crawls.sql
var failedCrawlsSchema string

const defaultListLimit = 50

// FailedRepo — архив dead letters (таблица failed_crawls).
type FailedRepo struct {
	pool *pgxpool.Pool
}

// NewFailedRepo создаёт новый FailedRepo.
func NewFailedRepo(pool *pgxpool.Pool) *FailedRepo {
	return &FailedRepo{pool: pool}
}

// Migrate создаёт таблицу failed_crawls, если её нет.
func (r *FailedRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, failedCrawlsSchema); err != nil {
		return fmt.Errorf("migrate failed_crawls: %w", err)
	}
	return nil
}

// Insert сохраняет dead letter.
func (r *FailedRepo) Insert(ctx context.Context, f *domain.ArchivedFailure) error {
	query := `
		INSERT INTO failed_crawls (id, source_url, original_message, error, failed_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		f.ID,
		f.SourceURL,
		[]byte(f.OriginalMessage),
		f.Error,
		f.FailedAt,
		f.ArchivedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert failed crawl: %w", err)
	}
	return nil
}

// GetByID возвращает dead letter по ID.
func (r *FailedRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ArchivedFailure, error) {
	query := `
		SELECT id, source_url, original_message, error, failed_at, archived_at
		FROM failed_crawls
		WHERE id = $1
	`
	return r.scanFailure(r.pool.QueryRow(ctx, query, id))
}

// List возвращает последние dead letters, новые первыми.
func (r *FailedRepo) List(ctx context.Context, limit int) ([]domain.ArchivedFailure, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, source_url, original_message, error, failed_at, archived_at
		FROM failed_crawls
		ORDER BY failed_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed crawls: %w", err)
	}
	defer rows.Close()

	var failures []domain.ArchivedFailure
	for rows.Next() {
		f, err := r.scanFailure(rows)
		if err != nil {
			return nil, err
		}
		failures = append(failures, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failed crawls: %w", err)
	}

	return failures, nil
}

// scanFailure сканирует строку в ArchivedFailure.
func (r *FailedRepo) scanFailure(row pgx.Row) (*domain.ArchivedFailure, error) {
	var f domain.ArchivedFailure
	var original []byte

	err := row.Scan(&f.ID, &f.SourceURL, &original, &f.Error, &f.FailedAt, &f.ArchivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan failed crawl: %w", err)
	}
	f.OriginalMessage = original

	return &f, nil
}
