// Package redis provides a Redis-based implementation of the storage interface.
//
// Each session is a JSON string at {prefix}session:{id}. A sorted set at
// {prefix}sessions scores ids by last update for List.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vitrine/vitrine/pkg/storage"
)

// Config holds configuration for RedisStorage.
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	// TTL expires idle sessions. Zero keeps them forever.
	TTL time.Duration
}

// RedisStorage implements the Storage interface on top of a redis.Cmdable.
type RedisStorage struct {
	client goredis.Cmdable
	closer func() error
	prefix string
	ttl    time.Duration
}

// New connects to the server described by cfg.
func New(cfg Config) *RedisStorage {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s := NewWithClient(client, cfg.KeyPrefix, cfg.TTL)
	s.closer = client.Close
	return s
}

// NewWithClient wraps an existing client. Close does not close it.
func NewWithClient(client goredis.Cmdable, prefix string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStorage) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *RedisStorage) indexKey() string {
	return s.prefix + "sessions"
}

// Get retrieves a session record.
func (s *RedisStorage) Get(ctx context.Context, sessionID string) (*storage.Record, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, &storage.NotFoundError{SessionID: sessionID}
		}
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	var rec storage.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return &rec, nil
}

// Put writes the record and refreshes its position in the index.
func (s *RedisStorage) Put(ctx context.Context, rec *storage.Record) error {
	if err := storage.Validate(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return &storage.SerializationError{Operation: "marshal", Cause: err}
	}

	if err := s.client.Set(ctx, s.sessionKey(rec.SessionID), data, s.ttl).Err(); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	score := float64(rec.UpdatedAt.UnixNano())
	if err := s.client.ZAdd(ctx, s.indexKey(), goredis.Z{Score: score, Member: rec.SessionID}).Err(); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// List pages the index, most recent first. Ids whose record expired are
// pruned from the index lazily by the next List.
func (s *RedisStorage) List(ctx context.Context, filter *storage.ListFilter) ([]string, int, error) {
	f := filter.Normalize()

	if s.ttl > 0 {
		cutoff := time.Now().Add(-s.ttl).UnixNano()
		if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("(%d", cutoff)).Err(); err != nil {
			return nil, 0, &storage.StorageUnavailableError{Cause: err}
		}
	}

	total, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, 0, &storage.StorageUnavailableError{Cause: err}
	}
	if int64(f.Offset) >= total {
		return []string{}, int(total), nil
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), int64(f.Offset), int64(f.Offset+f.Limit-1)).Result()
	if err != nil {
		return nil, 0, &storage.StorageUnavailableError{Cause: err}
	}
	return ids, int(total), nil
}

// Ping checks connectivity.
func (s *RedisStorage) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Close closes the client when this storage created it.
func (s *RedisStorage) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
