package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ArchivedFailure — dead letter, перенесённый из очереди в Postgres.
type ArchivedFailure struct {
	ID uuid.UUID `json:"id"`

	// SourceURL — instagram_url из исходного сообщения, если его удалось достать.
	SourceURL string `json:"source_url"`

	OriginalMessage json.RawMessage `json:"original_message"`
	Error           string          `json:"error"`
	FailedAt        time.Time       `json:"failed_at"`
	ArchivedAt      time.Time       `json:"archived_at"`
}

// NewArchivedFailure готовит FailedRecord к архивированию.
func NewArchivedFailure(rec *FailedRecord, now time.Time) *ArchivedFailure {
	return &ArchivedFailure{
		ID:              uuid.New(),
		SourceURL:       sourceURLOf(rec.OriginalMessage),
		OriginalMessage: rec.OriginalMessage,
		Error:           rec.Error,
		FailedAt:        rec.FailedAt.Time,
		ArchivedAt:      now,
	}
}

// sourceURLOf достаёт instagram_url из объекта или списка с объектом.
// Для всего остального возвращает пустую строку.
func sourceURLOf(original json.RawMessage) string {
	var obj struct {
		SourceURL string `json:"instagram_url"`
	}
	if err := json.Unmarshal(original, &obj); err == nil {
		return obj.SourceURL
	}

	var list []struct {
		SourceURL string `json:"instagram_url"`
	}
	if err := json.Unmarshal(original, &list); err == nil && len(list) > 0 {
		return list[0].SourceURL
	}
	return ""
}
