package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// --- Logging Tests ---

func TestLogLevel(t *testing.T) {
	tests := []struct {
		env      string
		expected slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Setenv("LOG_LEVEL", tt.env)
		if got := LogLevel(); got != tt.expected {
			t.Errorf("LOG_LEVEL=%q: expected %v, got %v", tt.env, tt.expected, got)
		}
	}
}

func TestNewLogger_JSONWithHelpers(t *testing.T) {
	t.Setenv("LOG_LEVEL", "INFO")
	var buf bytes.Buffer

	logger := NewLogger(&buf, "json")
	logger = WithURL(WithRequestID(logger, "req-1"), "https://www.instagram.com/p/X/")
	logger.Info("processed", "outcome", "published")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("expected request_id, got %v", entry["request_id"])
	}
	if entry["url"] != "https://www.instagram.com/p/X/" {
		t.Errorf("expected url, got %v", entry["url"])
	}
	if entry["outcome"] != "published" {
		t.Errorf("expected outcome, got %v", entry["outcome"])
	}
}

func TestWithRequestID_Empty(t *testing.T) {
	var buf bytes.Buffer

	logger := WithRequestID(NewLogger(&buf, "json"), "")
	logger.Info("x")

	if bytes.Contains(buf.Bytes(), []byte("request_id")) {
		t.Errorf("empty request_id should not be logged: %s", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "text")

	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger")
	}
}

// --- Metrics Tests ---

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.IncProcessed("published")
	m.IncProcessed("published")
	m.IncProcessed("dead_lettered")
	m.IncRetry("rate_limited")
	m.IncPublishFailure("result")
	m.ObserveExtract("ok", 1500*time.Millisecond)

	if got := testutil.ToFloat64(m.Processed.WithLabelValues("published")); got != 2 {
		t.Errorf("expected 2 published, got %v", got)
	}
	if got := testutil.ToFloat64(m.Processed.WithLabelValues("dead_lettered")); got != 1 {
		t.Errorf("expected 1 dead_lettered, got %v", got)
	}
	if got := testutil.ToFloat64(m.RetriesScheduled.WithLabelValues("rate_limited")); got != 1 {
		t.Errorf("expected 1 retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.PublishFailures.WithLabelValues("result")); got != 1 {
		t.Errorf("expected 1 publish failure, got %v", got)
	}
	if got := testutil.CollectAndCount(m.ExtractDuration); got != 1 {
		t.Errorf("expected 1 histogram series, got %d", got)
	}
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	// Два набора без регистрации не конфликтуют
	a := NewMetrics(nil)
	b := NewMetrics(nil)

	a.IncProcessed("duplicate")
	if got := testutil.ToFloat64(b.Processed.WithLabelValues("duplicate")); got != 0 {
		t.Errorf("metrics should be independent, got %v", got)
	}
}
