package storage

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// SetGroupNotice replaces a group chat's single bulletin-style notice.
func (s *Store) SetGroupNotice(ctx context.Context, chatID uint64, content string) error {
	return wrap(s.rdb.HSet(ctx, chatKey(chatID), "notice", content).Err())
}

// GetGroupNotice returns a group chat's current notice content, "" if
// none has been set.
func (s *Store) GetGroupNotice(ctx context.Context, chatID uint64) (string, error) {
	v, err := s.rdb.HGet(ctx, chatKey(chatID), "notice").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", wrap(err)
	}
	return v, nil
}

// SetUserSetting stores a user's opaque client-settings blob verbatim.
func (s *Store) SetUserSetting(ctx context.Context, userID uint32, setting []byte) error {
	return wrap(s.rdb.HSet(ctx, userKey(userID), "setting", setting).Err())
}

// GetUserSetting returns a user's stored settings blob, nil if none has
// ever been set.
func (s *Store) GetUserSetting(ctx context.Context, userID uint32) ([]byte, error) {
	v, err := s.rdb.HGet(ctx, userKey(userID), "setting").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	if v == "" {
		return nil, nil
	}
	return []byte(v), nil
}
