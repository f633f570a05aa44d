package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

// --- Timestamp Tests ---

func TestTimestamp_MarshalUTC(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)
	ts := NewTimestamp(time.Date(2025, 1, 1, 15, 0, 0, 0, moscow))

	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"2025-01-01T12:00:00Z"` {
		t.Errorf("unexpected encoding: %s", data)
	}
}

func TestTimestamp_MarshalZero(t *testing.T) {
	data, err := json.Marshal(Timestamp{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "null" {
		t.Errorf("zero timestamp should encode as null, got %s", data)
	}
}

func TestTimestamp_Unmarshal(t *testing.T) {
	want := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
	}{
		{"rfc3339", `"2025-01-01T12:00:00Z"`},
		{"offset", `"2025-01-01T15:00:00+03:00"`},
		{"naive", `"2025-01-01T12:00:00"`},
		{"naive with space", `"2025-01-01 12:00:00"`},
		{"epoch integer", `1735732800`},
		{"epoch float", `1735732800.0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.input), &ts); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ts.Equal(want) {
				t.Errorf("expected %v, got %v", want, ts.Time)
			}
		})
	}
}

func TestTimestamp_UnmarshalInvalid(t *testing.T) {
	for _, input := range []string{`"yesterday"`, `true`, `{}`} {
		var ts Timestamp
		if err := json.Unmarshal([]byte(input), &ts); err == nil {
			t.Errorf("%s: expected error", input)
		}
	}
}

func TestTimestamp_SubSecondRoundTrip(t *testing.T) {
	orig := NewTimestamp(time.Date(2025, 1, 1, 12, 0, 0, 123456000, time.UTC))

	data, _ := json.Marshal(orig)
	var back Timestamp
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(orig.Time) {
		t.Errorf("expected %v, got %v", orig.Time, back.Time)
	}
}

// --- EpochSeconds Tests ---

func TestEpochSeconds_Marshal(t *testing.T) {
	e := EpochSeconds{Time: time.Unix(1735732800, 500000000)}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1735732800.5" {
		t.Errorf("unexpected encoding: %s", data)
	}
}

func TestEpochSeconds_Unmarshal(t *testing.T) {
	var e EpochSeconds
	if err := json.Unmarshal([]byte(`1735732800.5`), &e); err != nil {
		t.Fatal(err)
	}
	if e.Unix() != 1735732800 || e.Nanosecond() != 500000000 {
		t.Errorf("unexpected time: %v", e.Time)
	}
}

// --- Failure Tests ---

func TestFailureKind_String(t *testing.T) {
	tests := map[FailureKind]string{
		FailureTransient:   "transient",
		FailureRateLimited: "rate_limited",
		FailureValidation:  "validation",
	}
	for kind, expected := range tests {
		if kind.String() != expected {
			t.Errorf("expected %s, got %s", expected, kind.String())
		}
	}
}

func TestFailureKind_IsRetryable(t *testing.T) {
	if !FailureTransient.IsRetryable() || !FailureRateLimited.IsRetryable() {
		t.Error("transient and rate limited failures are retryable")
	}
	if FailureValidation.IsRetryable() {
		t.Error("validation failures are not retryable")
	}
}

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	kind, ok := KindOf(fmt.Errorf("wrapped: %w", RateLimited(base)))
	if !ok || kind != FailureRateLimited {
		t.Errorf("expected rate_limited through wrapping, got %v %v", kind, ok)
	}

	if _, ok := KindOf(base); ok {
		t.Error("plain error has no explicit kind")
	}

	if !errors.Is(Validation(base), base) {
		t.Error("Failure should unwrap to the cause")
	}
	if Transient(base).Error() != "boom" {
		t.Errorf("Failure should keep the cause text, got %q", Transient(base).Error())
	}
}

// --- ArchivedFailure Tests ---

func TestNewArchivedFailure(t *testing.T) {
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		original string
		expected string
	}{
		{"object", `{"instagram_url":"https://www.instagram.com/p/A/"}`, "https://www.instagram.com/p/A/"},
		{"list", `[{"instagram_url":"https://www.instagram.com/reel/B/"}]`, "https://www.instagram.com/reel/B/"},
		{"raw string", `"not json"`, ""},
		{"empty list", `[]`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &FailedRecord{
				OriginalMessage: json.RawMessage(tt.original),
				Error:           "boom",
				FailedAt:        EpochSeconds{Time: now.Add(-time.Hour)},
			}

			f := NewArchivedFailure(rec, now)

			if f.SourceURL != tt.expected {
				t.Errorf("expected source url %q, got %q", tt.expected, f.SourceURL)
			}
			if f.Error != "boom" || !f.ArchivedAt.Equal(now) || !f.FailedAt.Equal(now.Add(-time.Hour)) {
				t.Errorf("unexpected archive record: %+v", f)
			}
			if string(f.OriginalMessage) != tt.original {
				t.Errorf("original message changed: %s", f.OriginalMessage)
			}
		})
	}
}
