package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
	"github.com/kirillkom/docqa/internal/infrastructure/snapshot"
)

const defaultPrefix = "docqa:snapshot:"

type commander interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Store keeps one JSON snapshot per scope under prefix+scope.
type Store struct {
	client   commander
	prefix   string
	ttl      time.Duration
	executor *resilience.Executor
}

func New(client commander, prefix string, ttl time.Duration, executor *resilience.Executor) *Store {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl, executor: executor}
}

// NewClient opens a client and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (s *Store) Backend() string { return "redis" }

// Write stores snap under its scope key. An empty snapshot deletes the key
// so stale items are not resurrected on the next load.
func (s *Store) Write(ctx context.Context, snap domain.Snapshot) error {
	if len(snap.Items) == 0 {
		if err := s.drop(ctx, snap.Scope); err != nil {
			return domain.WrapError(domain.ErrTemporary, "write snapshot", err)
		}
		return nil
	}
	raw, err := snapshot.Encode(snap)
	if err != nil {
		return err
	}
	err = resilience.Run(ctx, s.executor, "redis.snapshot_write", func(callCtx context.Context) error {
		return s.client.Set(callCtx, s.key(snap.Scope), raw, s.ttl).Err()
	}, classifyRedisError)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "write snapshot", err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, scopeID string) (domain.Snapshot, error) {
	var raw []byte
	err := resilience.Run(ctx, s.executor, "redis.snapshot_read", func(callCtx context.Context) error {
		out, err := s.client.Get(callCtx, s.key(scopeID)).Bytes()
		if err != nil {
			return err
		}
		raw = out
		return nil
	}, classifyRedisError)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotNotFound, "read snapshot", err)
		}
		return domain.Snapshot{}, domain.WrapError(domain.ErrTemporary, "read snapshot", err)
	}
	return snapshot.Decode(raw, scopeID)
}

func (s *Store) drop(ctx context.Context, scopeID string) error {
	return resilience.Run(ctx, s.executor, "redis.snapshot_delete", func(callCtx context.Context) error {
		return s.client.Del(callCtx, s.key(scopeID)).Err()
	}, classifyRedisError)
}

func (s *Store) key(scopeID string) string {
	return s.prefix + scopeID
}
