// Package redis stores a session audit log as a Redis list so several
// service replicas can serve the same UI session.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	audit "moflow/pkg/platform/audit"
)

const keyPrefix = "moflow:audit:"

// Store appends entries with RPUSH. An entry's sequence number is its
// 1-based list position and is filled in on read. The key expires ttl after
// the last append.
type Store struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// New creates a store for one log (usually one UI session).
func New(client redis.UniversalClient, logID string, ttl time.Duration) *Store {
	return &Store{client: client, key: keyPrefix + logID, ttl: ttl}
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	entry.Seq = 0
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, body)
	if s.ttl > 0 {
		pipe.PExpire(ctx, s.key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, n int) ([]audit.Entry, error) {
	if n <= 0 {
		return []audit.Entry{}, nil
	}
	return s.lrange(ctx, int64(-n), -1)
}

func (s *Store) All(ctx context.Context) ([]audit.Entry, error) {
	return s.lrange(ctx, 0, -1)
}

func (s *Store) lrange(ctx context.Context, start, stop int64) ([]audit.Entry, error) {
	pipe := s.client.TxPipeline()
	length := pipe.LLen(ctx, s.key)
	items := pipe.LRange(ctx, s.key, start, stop)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	first := start
	if first < 0 {
		first = max(length.Val()+start, 0)
	}
	raw := items.Val()
	entries := make([]audit.Entry, 0, len(raw))
	for i, item := range raw {
		var e audit.Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		e.Seq = uint64(first) + uint64(i) + 1
		entries = append(entries, e)
	}
	return entries, nil
}
