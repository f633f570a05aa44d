// Package store хранит короткоживущее состояние worker'а в Redis.
//
// Сейчас это только дедупликация: shortcode, для которого результат уже
// опубликован, помечается на DEDUPE_TTL, и повторные запросы пропускаются.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL — сколько помнить опубликованный shortcode.
	DefaultTTL = 24 * time.Hour

	keyPrefix = "crawl:published:"
)

// ErrEmptyKey — пустой ключ дедупликации.
var ErrEmptyKey = errors.New("empty dedupe key")

// RedisDeduper помнит опубликованные запросы в Redis.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper создаёт RedisDeduper для addr (host:port).
func NewRedisDeduper(addr string, ttl time.Duration) *RedisDeduper {
	return newRedisDeduper(redis.NewClient(&redis.Options{Addr: addr}), ttl)
}

func newRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// Ping проверяет доступность Redis.
func (d *RedisDeduper) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Seen проверяет, публиковался ли результат для key.
func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	n, err := d.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Mark помечает key как опубликованный на TTL.
// Повторная пометка не продлевает TTL.
func (d *RedisDeduper) Mark(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if _, err := d.client.SetNX(ctx, keyPrefix+key, "1", d.ttl).Result(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

// Close закрывает клиент Redis.
func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
