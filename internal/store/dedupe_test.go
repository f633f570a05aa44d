package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisDeduper_Seen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	d := newRedisDeduper(db, time.Hour)
	ctx := context.TODO()

	// Not seen
	mock.ExpectExists("crawl:published:ABC123").SetVal(0)
	seen, err := d.Seen(ctx, "ABC123")
	assert.NoError(t, err)
	assert.False(t, seen)

	// Seen
	mock.ExpectExists("crawl:published:ABC123").SetVal(1)
	seen, err = d.Seen(ctx, "ABC123")
	assert.NoError(t, err)
	assert.True(t, seen)

	// Error
	mock.ExpectExists("crawl:published:ABC123").SetErr(errors.New("redis error"))
	_, err = d.Seen(ctx, "ABC123")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis exists")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedisDeduper_Mark(t *testing.T) {
	db, mock := redismock.NewClientMock()
	d := newRedisDeduper(db, 2*time.Hour)
	ctx := context.TODO()

	// Success
	mock.ExpectSetNX("crawl:published:ABC123", "1", 2*time.Hour).SetVal(true)
	assert.NoError(t, d.Mark(ctx, "ABC123"))

	// Already marked is not an error
	mock.ExpectSetNX("crawl:published:ABC123", "1", 2*time.Hour).SetVal(false)
	assert.NoError(t, d.Mark(ctx, "ABC123"))

	// Error
	mock.ExpectSetNX("crawl:published:ABC123", "1", 2*time.Hour).SetErr(errors.New("redis error"))
	err := d.Mark(ctx, "ABC123")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis setnx")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedisDeduper_EmptyKey(t *testing.T) {
	db, _ := redismock.NewClientMock()
	d := newRedisDeduper(db, 0)

	_, err := d.Seen(context.TODO(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.ErrorIs(t, d.Mark(context.TODO(), ""), ErrEmptyKey)
	assert.Equal(t, DefaultTTL, d.ttl)
}

func TestRedisDeduper_Ping(t *testing.T) {
	db, mock := redismock.NewClientMock()
	d := newRedisDeduper(db, 0)

	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, d.Ping(context.TODO()))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	assert.Error(t, d.Ping(context.TODO()))
}
