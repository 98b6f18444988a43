package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func groupInvitePendingKey(recv uint32, chatID uint64) string {
	return fmt.Sprintf("pending:invite:%d:%d", recv, chatID)
}

// FriendPairPending reports whether a MakeFriend request is currently
// in flight between a and b (registered by MarkFriendPending, not yet
// resolved into an actual chat id).
func (s *Store) FriendPairPending(ctx context.Context, a, b uint32) (bool, error) {
	v, err := s.rdb.Get(ctx, friendPairKey(a, b)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, wrap(err)
	}
	return v == "0", nil
}

// MarkGroupInvitation registers an outstanding GroupInvitation request
// for recv against chatID, used to reject a duplicate invite.
func (s *Store) MarkGroupInvitation(ctx context.Context, recv uint32, chatID uint64) error {
	return wrap(s.rdb.Set(ctx, groupInvitePendingKey(recv, chatID), 1, 0).Err())
}

// ClearGroupInvitation removes the outstanding GroupInvitation marker.
func (s *Store) ClearGroupInvitation(ctx context.Context, recv uint32, chatID uint64) error {
	return wrap(s.rdb.Del(ctx, groupInvitePendingKey(recv, chatID)).Err())
}

// GroupInvitationPending reports whether recv already has an
// outstanding GroupInvitation for chatID.
func (s *Store) GroupInvitationPending(ctx context.Context, recv uint32, chatID uint64) (bool, error) {
	n, err := s.rdb.Exists(ctx, groupInvitePendingKey(recv, chatID)).Result()
	if err != nil {
		return false, wrap(err)
	}
	return n == 1, nil
}
