package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each document as one JSON blob in Redis.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a Redis storage backend.
func NewRedisBackend(addr, password string, db int, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "gclipool:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) Initialize(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RedisBackend) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) docKey(docKey string) string {
	return r.prefix + "doc:" + docKey
}

func (r *RedisBackend) LoadDocument(ctx context.Context, docKey string) (map[string]interface{}, error) {
	data, err := r.client.Get(ctx, r.docKey(docKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docKey, err)
	}

	doc := make(map[string]interface{})
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", docKey, err)
	}
	return doc, nil
}

func (r *RedisBackend) WriteDocument(ctx context.Context, docKey string, doc map[string]interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", docKey, err)
	}
	if err := r.client.Set(ctx, r.docKey(docKey), data, 0).Err(); err != nil {
		return fmt.Errorf("set document %s: %w", docKey, err)
	}
	return nil
}
