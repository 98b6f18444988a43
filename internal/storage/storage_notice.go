package storage

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

// WriteNotice persists a push event for userID, keyed by timestamp, so
// it can be replayed if the user was offline.
func (s *Store) WriteNotice(ctx context.Context, userID uint32, notice model.Notice) error {
	raw, err := json.Marshal(notice)
	if err != nil {
		return wrap(err)
	}
	return wrap(s.rdb.ZAdd(ctx, userNoticesKey(userID), redis.Z{
		Score:  float64(notice.Timestamp),
		Member: raw,
	}).Err())
}

// ReadNotices returns every notice for userID with timestamp strictly
// greater than sinceTs, oldest first.
func (s *Store) ReadNotices(ctx context.Context, userID uint32, sinceTs int64) ([]model.Notice, error) {
	members, err := s.rdb.ZRangeByScore(ctx, userNoticesKey(userID), &redis.ZRangeBy{
		Min: formatExclusive(sinceTs),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, wrap(err)
	}
	out := make([]model.Notice, 0, len(members))
	for _, m := range members {
		var n model.Notice
		if err := json.Unmarshal([]byte(m), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func formatExclusive(ts int64) string {
	return "(" + strconv.FormatInt(ts, 10)
}
