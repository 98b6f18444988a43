// Package storage is the typed facade over the external Redis-compatible
// key/value store: users, chats, messages, requests, notices, files, and
// read cursors. Persisted key layout is this package's own design choice
// — it is not part of the wire contract.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sentinel errors. Most operations collapse any underlying store failure
// into ErrStorage; the handful of domain conditions the spec calls out
// get their own sentinel so command handlers can branch on them.
var (
	ErrStorage        = errors.New("storage: operation failed")
	ErrEmailTaken     = errors.New("storage: email already registered")
	ErrUserNotFound   = errors.New("storage: user not found")
	ErrChatNotFound   = errors.New("storage: chat not found")
	ErrNotGroupChat   = errors.New("storage: chat is not a group")
	ErrMessageNotFound = errors.New("storage: message not found")
	ErrRequestNotFound = errors.New("storage: request not found")
	ErrIsOwner        = errors.New("storage: user owns this chat")
	ErrReadCursorAhead = errors.New("storage: read cursor beyond last message")
	ErrTokenExpired   = errors.New("storage: token expired")
	ErrTokenMismatch  = errors.New("storage: token does not match")
	ErrPasswordMismatch = errors.New("storage: password does not match")
)

// Store wraps a Redis connection pool and implements every operation
// the session actor and command handlers need.
type Store struct {
	rdb *redis.Client
}

// PoolConfig mirrors the connection-pool tuning knobs from
// internal/config.Database.
type PoolConfig struct {
	Address     string
	PoolMaxOpen int
	PoolMaxIdle int
	PoolTimeout time.Duration
	PoolExpire  time.Duration
}

// New dials the store given a redis:// address and pool settings.
func New(cfg PoolConfig) (*Store, error) {
	opts, err := redis.ParseURL(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("storage: parse redis address: %w", err)
	}
	if cfg.PoolMaxOpen > 0 {
		opts.PoolSize = cfg.PoolMaxOpen
	}
	if cfg.PoolMaxIdle > 0 {
		opts.MinIdleConns = cfg.PoolMaxIdle
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	if cfg.PoolExpire > 0 {
		opts.ConnMaxLifetime = cfg.PoolExpire
	}
	rdb := redis.NewClient(opts)
	return &Store{rdb: rdb}, nil
}

// NewFromClient wraps an already-constructed client, used by tests with
// a miniredis or similar in-process server.
func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Health pings the underlying store.
func (s *Store) Health(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrStorage, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Client exposes the underlying Redis client so collaborators that need
// their own key space on the same connection pool (internal/notify's
// verification codes) don't have to dial a second pool.
func (s *Store) Client() *redis.Client {
	return s.rdb
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
