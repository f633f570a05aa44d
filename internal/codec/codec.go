package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/instacrawl/internal/domain"
)

// payloadShape — форма верхнего уровня входящего JSON.
type payloadShape int

const (
	shapeOther payloadShape = iota
	shapeObject
	shapeArrayOfObject
)

// wireRequest — CrawlRequest в том виде, в каком он приходит из очереди.
// Указатели нужны, чтобы отличить отсутствующее поле от пустого.
type wireRequest struct {
	InstagramURL *string `json:"instagram_url"`
	RequestID    *string `json:"request_id"`
	Priority     *int    `json:"priority"`
}

// Decode разбирает тело сообщения из crawl_requests.
//
// Каноническая форма — JSON-объект. Список принимается, если его первый
// элемент — объект (старый producer заворачивал запрос в список).
// Любая ошибка имеет класс domain.FailureValidation.
func Decode(raw []byte) (*domain.CrawlRequest, error) {
	obj, err := normalize(raw)
	if err != nil {
		return nil, domain.Validation(err)
	}

	var wire wireRequest
	if err := json.Unmarshal(obj, &wire); err != nil {
		return nil, domain.Validation(fmt.Errorf("%w: %v", ErrInvalidField, err))
	}

	if wire.InstagramURL == nil || strings.TrimSpace(*wire.InstagramURL) == "" {
		return nil, domain.Validation(fmt.Errorf("%w: instagram_url", ErrMissingField))
	}

	sourceURL := strings.TrimSpace(*wire.InstagramURL)
	kind, shortcode, err := ParseURL(sourceURL)
	if err != nil {
		return nil, domain.Validation(err)
	}

	req := &domain.CrawlRequest{
		SourceURL: sourceURL,
		Shortcode: shortcode,
		Kind:      kind,
		Priority:  domain.DefaultPriority,
	}
	if wire.RequestID != nil {
		req.RequestID = *wire.RequestID
	}
	if wire.Priority != nil {
		req.Priority = *wire.Priority
	}

	return req, nil
}

// normalize приводит тело к одному JSON-объекту.
func normalize(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMalformedEnvelope)
	}

	switch shapeOf(trimmed) {
	case shapeObject:
		return trimmed, nil

	case shapeArrayOfObject:
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		return bytes.TrimSpace(items[0]), nil

	default:
		return nil, fmt.Errorf("%w: expected object or list of objects", ErrMalformedEnvelope)
	}
}

// shapeOf определяет форму уже валидного JSON.
func shapeOf(doc []byte) payloadShape {
	if len(doc) == 0 {
		return shapeOther
	}

	switch doc[0] {
	case '{':
		return shapeObject
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(doc, &items); err != nil || len(items) == 0 {
			return shapeOther
		}
		first := bytes.TrimSpace(items[0])
		if len(first) > 0 && first[0] == '{' {
			return shapeArrayOfObject
		}
	}

	return shapeOther
}

// ParseURL проверяет ссылку и возвращает тип контента и shortcode.
//
// Допустимые пути: /p/{id} и /reel/{id}, слеш в конце необязателен.
func ParseURL(raw string) (domain.ContentKind, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidURL, raw)
	}

	path := strings.TrimSuffix(u.Path, "/")
	parts := strings.Split(path, "/")
	// "/p/ABC" → ["", "p", "ABC"]
	if len(parts) != 3 || parts[0] != "" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURLShape, raw)
	}

	switch parts[1] {
	case "p":
		return domain.ContentKindPost, parts[2], nil
	case "reel":
		return domain.ContentKindReel, parts[2], nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURLShape, raw)
	}
}

// EncodeResult сериализует запись для raw_recipe_data.
// timestamp кодируется как ISO-8601 строка.
func EncodeResult(rec *domain.ExtractedRecord) ([]byte, error) {
	if rec == nil {
		return nil, errors.New("encode result: nil record")
	}
	if rec.URL == "" {
		return nil, fmt.Errorf("encode result: %w: url", ErrMissingField)
	}
	if rec.Timestamp.IsZero() {
		return nil, fmt.Errorf("encode result: %w: timestamp", ErrMissingField)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return body, nil
}

// DecodeResult разбирает сообщение из raw_recipe_data.
func DecodeResult(body []byte) (*domain.ExtractedRecord, error) {
	var rec domain.ExtractedRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &rec, nil
}

// EncodeFailure формирует сообщение для crawl_requests_failed.
//
// original_message — декодированный исходный JSON. Если исходное тело
// не JSON, оно кладётся строкой, чтобы сообщение не потерялось.
func EncodeFailure(original []byte, errText string, at time.Time) ([]byte, error) {
	rec := domain.FailedRecord{
		OriginalMessage: OriginalMessage(original),
		Error:           errText,
		FailedAt:        domain.EpochSeconds{Time: at},
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode failure: %w", err)
	}
	return body, nil
}

// DecodeFailure разбирает сообщение из crawl_requests_failed.
func DecodeFailure(body []byte) (*domain.FailedRecord, error) {
	var rec domain.FailedRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode failure: %w", err)
	}
	return &rec, nil
}

// OriginalMessage возвращает тело для поля original_message:
// компактный JSON или JSON-строку, если тело не JSON.
func OriginalMessage(original []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(original)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err == nil {
			return compact.Bytes()
		}
	}

	// json.Marshal заменяет невалидный UTF-8, ошибки быть не может
	asString, _ := json.Marshal(string(original))
	return asString
}
