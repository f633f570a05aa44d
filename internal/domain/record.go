package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ExtractedRecord — результат успешного извлечения поста.
//
// Публикуется в raw_recipe_data ровно один раз и после этого не меняется.
// Worker'у важны только URL и Timestamp, остальные поля он передаёт как есть.
type ExtractedRecord struct {
	URL              string    `json:"url"`
	Caption          string    `json:"caption"`
	MediaURLs        []string  `json:"media_urls"`
	Author           string    `json:"author"`
	Timestamp        Timestamp `json:"timestamp"`
	Hashtags         []string  `json:"hashtags"`
	Mentions         []string  `json:"mentions"`
	LikesCount       *int      `json:"likes_count"`
	CommentsCount    *int      `json:"comments_count"`
	AuthorTopComment *string   `json:"author_top_comment"`
}

// FailedRecord — сообщение из dead-letter очереди crawl_requests_failed.
//
// Создаётся один раз, когда retry больше не имеет смысла.
type FailedRecord struct {
	// OriginalMessage — исходное тело сообщения (декодированный JSON).
	OriginalMessage json.RawMessage `json:"original_message"`

	// Error — причина, по которой сообщение попало в DLQ.
	Error string `json:"error"`

	// FailedAt — время попадания в DLQ (в JSON: epoch seconds float).
	FailedAt EpochSeconds `json:"timestamp"`
}

// isoLayouts — форматы ISO-8601, которые принимаются при декодировании.
// Время без зоны считается UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp — время, которое кодируется в JSON как строка ISO-8601.
//
// При декодировании принимает и ISO-8601 строку, и число (epoch seconds).
type Timestamp struct {
	time.Time
}

// NewTimestamp оборачивает time.Time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON кодирует время как RFC 3339 в UTC.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON декодирует ISO-8601 строку или epoch seconds.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseISOTime(s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}

	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("timestamp: expected ISO-8601 string or number, got %s", data)
	}
	t.Time = FromEpochSeconds(secs)
	return nil
}

// ParseISOTime разбирает строку ISO-8601. Время без зоны считается UTC.
func ParseISOTime(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp: unsupported format %q", s)
}

// EpochSeconds — время, которое кодируется в JSON как epoch seconds (float).
type EpochSeconds struct {
	time.Time
}

// MarshalJSON кодирует время как число секунд с дробной частью.
func (e EpochSeconds) MarshalJSON() ([]byte, error) {
	secs := float64(e.Unix()) + float64(e.Nanosecond())/float64(time.Second)
	return []byte(strconv.FormatFloat(secs, 'f', -1, 64)), nil
}

// UnmarshalJSON принимает число или ISO-8601 строку.
func (e *EpochSeconds) UnmarshalJSON(data []byte) error {
	var ts Timestamp
	if err := ts.UnmarshalJSON(data); err != nil {
		return err
	}
	e.Time = ts.Time
	return nil
}

// FromEpochSeconds переводит epoch seconds с дробной частью в time.Time (UTC).
func FromEpochSeconds(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}
