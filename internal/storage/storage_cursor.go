package storage

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// SetReadCursor records that userID has read up through inChatID in
// chatID, rejecting (ErrReadCursorAhead) a cursor past the last message.
func (s *Store) SetReadCursor(ctx context.Context, userID uint32, chatID uint64, inChatID uint64) error {
	last, err := s.LastMessageID(ctx, chatID)
	if err != nil {
		return err
	}
	if inChatID > last {
		return ErrReadCursorAhead
	}
	return wrap(s.rdb.HSet(ctx, userReadCursorsKey(userID), strconv.FormatUint(chatID, 10), inChatID).Err())
}

// ReadCursor returns userID's last-read in-chat id for chatID (0 if
// never set).
func (s *Store) ReadCursor(ctx context.Context, userID uint32, chatID uint64) (uint64, error) {
	v, err := s.rdb.HGet(ctx, userReadCursorsKey(userID), strconv.FormatUint(chatID, 10)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(err)
	}
	n, _ := strconv.ParseUint(v, 10, 64)
	return n, nil
}

// AllReadCursors returns every (chatId, inChatId) pair userID has a
// recorded cursor for, used to seed the login-time Pull.
func (s *Store) AllReadCursors(ctx context.Context, userID uint32) (map[uint64]uint64, error) {
	vals, err := s.rdb.HGetAll(ctx, userReadCursorsKey(userID)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	out := make(map[uint64]uint64, len(vals))
	for k, v := range vals {
		cid, _ := strconv.ParseUint(k, 10, 64)
		inChatID, _ := strconv.ParseUint(v, 10, 64)
		out[cid] = inChatID
	}
	return out, nil
}

// GroupReadersAtLeast returns every member of chatID whose read cursor
// is at least inChatID.
func (s *Store) GroupReadersAtLeast(ctx context.Context, chatID uint64, inChatID uint64) ([]uint32, error) {
	members, err := s.Members(ctx, chatID)
	if err != nil {
		return nil, err
	}
	var out []uint32
	for _, m := range members {
		cursor, err := s.ReadCursor(ctx, m, chatID)
		if err != nil {
			return nil, err
		}
		if cursor >= inChatID {
			out = append(out, m)
		}
	}
	return out, nil
}
