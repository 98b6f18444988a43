package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

func chatKey(id uint64) string        { return fmt.Sprintf("chat:%d", id) }
func chatMembersKey(id uint64) string { return fmt.Sprintf("chat:%d:members", id) }
func chatAdminsKey(id uint64) string  { return fmt.Sprintf("chat:%d:admins", id) }
func userGroupsKey(id uint32) string  { return fmt.Sprintf("user:%d:groups", id) }
func userChatsKey(id uint32) string   { return fmt.Sprintf("user:%d:chats", id) }
func userFriendsKey(id uint32) string { return fmt.Sprintf("user:%d:friends", id) }

func friendPairKey(a, b uint32) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("friend:%d:%d", a, b)
}

// CreateGroup atomically creates a group chat owned and solely
// populated by creatorID.
func (s *Store) CreateGroup(ctx context.Context, creatorID uint32, name, avatarHash string) (uint64, error) {
	id64, err := s.rdb.Incr(ctx, "chat:seq").Result()
	if err != nil {
		return 0, wrap(err)
	}
	cid := uint64(id64)

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, chatKey(cid), map[string]interface{}{
		"kind":       "group",
		"owner":      creatorID,
		"name":       name,
		"avaterHash": avatarHash,
	})
	pipe.SAdd(ctx, chatMembersKey(cid), creatorID)
	pipe.SAdd(ctx, chatAdminsKey(cid), creatorID)
	pipe.SAdd(ctx, userGroupsKey(creatorID), cid)
	pipe.SAdd(ctx, userChatsKey(creatorID), cid)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, wrap(err)
	}
	return cid, nil
}

// AddMember adds userID to a group chat's membership.
func (s *Store) AddMember(ctx context.Context, chatID uint64, userID uint32) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, chatMembersKey(chatID), userID)
	pipe.SAdd(ctx, userGroupsKey(userID), chatID)
	pipe.SAdd(ctx, userChatsKey(userID), chatID)
	_, err := pipe.Exec(ctx)
	return wrap(err)
}

// Members returns every member of a group chat.
func (s *Store) Members(ctx context.Context, chatID uint64) ([]uint32, error) {
	return s.readUint32Set(ctx, chatMembersKey(chatID))
}

// Admins returns every admin of a group chat (owner always included).
func (s *Store) Admins(ctx context.Context, chatID uint64) ([]uint32, error) {
	return s.readUint32Set(ctx, chatAdminsKey(chatID))
}

func (s *Store) readUint32Set(ctx context.Context, key string) ([]uint32, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrap(err)
	}
	out := make([]uint32, 0, len(members))
	for _, m := range members {
		v, _ := strconv.ParseUint(m, 10, 32)
		out = append(out, uint32(v))
	}
	return out, nil
}

// IsGroup reports whether chatID refers to a group chat.
func (s *Store) IsGroup(ctx context.Context, chatID uint64) (bool, error) {
	kind, err := s.rdb.HGet(ctx, chatKey(chatID), "kind").Result()
	if err == redis.Nil {
		return false, ErrChatNotFound
	}
	if err != nil {
		return false, wrap(err)
	}
	return kind == "group", nil
}

// Owner returns the owning user of a group chat.
func (s *Store) Owner(ctx context.Context, chatID uint64) (uint32, error) {
	ownerStr, err := s.rdb.HGet(ctx, chatKey(chatID), "owner").Result()
	if err == redis.Nil || ownerStr == "" {
		return 0, ErrNotGroupChat
	}
	if err != nil {
		return 0, wrap(err)
	}
	v, _ := strconv.ParseUint(ownerStr, 10, 32)
	return uint32(v), nil
}

// SetAdmin promotes userID to admin of a group chat.
func (s *Store) SetAdmin(ctx context.Context, chatID uint64, userID uint32) error {
	return wrap(s.rdb.SAdd(ctx, chatAdminsKey(chatID), userID).Err())
}

// UnsetAdmin demotes userID from admin of a group chat.
func (s *Store) UnsetAdmin(ctx context.Context, chatID uint64, userID uint32) error {
	return wrap(s.rdb.SRem(ctx, chatAdminsKey(chatID), userID).Err())
}

// OwnerTransfer makes newOwner the owner (and an admin) of a group chat.
func (s *Store) OwnerTransfer(ctx context.Context, chatID uint64, newOwner uint32) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, chatKey(chatID), "owner", newOwner)
	pipe.SAdd(ctx, chatAdminsKey(chatID), newOwner)
	_, err := pipe.Exec(ctx)
	return wrap(err)
}

// QuitGroup removes userID's membership (and admin bit) from a group
// chat. It refuses if userID is the current owner.
func (s *Store) QuitGroup(ctx context.Context, userID uint32, chatID uint64) error {
	owner, err := s.Owner(ctx, chatID)
	if err == nil && owner == userID {
		return ErrIsOwner
	}
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, chatMembersKey(chatID), userID)
	pipe.SRem(ctx, chatAdminsKey(chatID), userID)
	pipe.SRem(ctx, userGroupsKey(userID), chatID)
	pipe.SRem(ctx, userChatsKey(userID), chatID)
	_, err = pipe.Exec(ctx)
	return wrap(err)
}

// PrivateChatMembers returns the ordered pair (a<b) of a private chat.
func (s *Store) PrivateChatMembers(ctx context.Context, chatID uint64) (uint32, uint32, error) {
	vals, err := s.rdb.HMGet(ctx, chatKey(chatID), "memberA", "memberB").Result()
	if err != nil {
		return 0, 0, wrap(err)
	}
	if vals[0] == nil || vals[1] == nil {
		return 0, 0, ErrChatNotFound
	}
	a, _ := strconv.ParseUint(fmt.Sprint(vals[0]), 10, 32)
	b, _ := strconv.ParseUint(fmt.Sprint(vals[1]), 10, 32)
	return uint32(a), uint32(b), nil
}

// FriendPairToChatID looks up the private chat id for a friend pair, 0
// if none recorded (including an in-flight request placeholder).
func (s *Store) FriendPairToChatID(ctx context.Context, a, b uint32) (uint64, error) {
	v, err := s.rdb.Get(ctx, friendPairKey(a, b)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(err)
	}
	id, _ := strconv.ParseUint(v, 10, 64)
	return id, nil
}

// MarkFriendPending registers an in-flight friend request placeholder
// (chat id 0) for (a,b), used by the request lifecycle's onSend effect.
func (s *Store) MarkFriendPending(ctx context.Context, a, b uint32) error {
	return wrap(s.rdb.Set(ctx, friendPairKey(a, b), 0, 0).Err())
}

// ClearFriendPending removes the in-flight placeholder, used on refuse.
func (s *Store) ClearFriendPending(ctx context.Context, a, b uint32) error {
	return wrap(s.rdb.Del(ctx, friendPairKey(a, b)).Err())
}

// MakeFriends atomically creates a private chat and the friend-pair
// mapping between a and b.
func (s *Store) MakeFriends(ctx context.Context, a, b uint32) (uint64, error) {
	id64, err := s.rdb.Incr(ctx, "chat:seq").Result()
	if err != nil {
		return 0, wrap(err)
	}
	cid := uint64(id64)
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, chatKey(cid), map[string]interface{}{
		"kind":    "private",
		"memberA": lo,
		"memberB": hi,
	})
	pipe.Set(ctx, friendPairKey(a, b), cid, 0)
	pipe.SAdd(ctx, userFriendsKey(a), b)
	pipe.SAdd(ctx, userFriendsKey(b), a)
	pipe.SAdd(ctx, userChatsKey(a), cid)
	pipe.SAdd(ctx, userChatsKey(b), cid)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, wrap(err)
	}
	return cid, nil
}

// Unfriend dissolves a friendship and returns the private chat id that
// existed between a and b.
func (s *Store) Unfriend(ctx context.Context, a, b uint32) (uint64, error) {
	cid, err := s.FriendPairToChatID(ctx, a, b)
	if err != nil {
		return 0, err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, friendPairKey(a, b))
	pipe.SRem(ctx, userFriendsKey(a), b)
	pipe.SRem(ctx, userFriendsKey(b), a)
	pipe.SRem(ctx, userChatsKey(a), cid)
	pipe.SRem(ctx, userChatsKey(b), cid)
	_, err = pipe.Exec(ctx)
	return cid, wrap(err)
}

// UpdateGroupInfo patches name and/or avatar hash of a group chat.
func (s *Store) UpdateGroupInfo(ctx context.Context, chatID uint64, name, avatarHash string) error {
	fields := map[string]interface{}{}
	if name != "" {
		fields["name"] = name
	}
	if avatarHash != "" {
		fields["avaterHash"] = avatarHash
	}
	if len(fields) == 0 {
		return nil
	}
	return wrap(s.rdb.HSet(ctx, chatKey(chatID), fields).Err())
}

// GetChatInfo loads a chat's kind and group descriptive info.
func (s *Store) GetChatInfo(ctx context.Context, chatID uint64) (*model.Chat, error) {
	vals, err := s.rdb.HGetAll(ctx, chatKey(chatID)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	if len(vals) == 0 {
		return nil, ErrChatNotFound
	}
	c := &model.Chat{ChatID: chatID}
	if vals["kind"] == "group" {
		c.Kind = model.ChatGroup
		owner, _ := strconv.ParseUint(vals["owner"], 10, 32)
		c.Owner = uint32(owner)
		c.Info = model.GroupInfo{ChatID: chatID, Name: vals["name"], AvatarHash: vals["avaterHash"]}
	} else {
		c.Kind = model.ChatPrivate
		a, _ := strconv.ParseUint(vals["memberA"], 10, 32)
		b, _ := strconv.ParseUint(vals["memberB"], 10, 32)
		c.MemberA, c.MemberB = uint32(a), uint32(b)
	}
	return c, nil
}

// UserChatIDs lists every chat (private or group) a user belongs to.
func (s *Store) UserChatIDs(ctx context.Context, userID uint32) ([]uint64, error) {
	members, err := s.rdb.SMembers(ctx, userChatsKey(userID)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	out := make([]uint64, 0, len(members))
	for _, m := range members {
		v, _ := strconv.ParseUint(m, 10, 64)
		out = append(out, v)
	}
	return out, nil
}

// UserPendingJoin returns the set of group chats a user has an
// outstanding JoinGroup request against.
func (s *Store) UserPendingJoin(ctx context.Context, userID uint32) (map[uint64]bool, error) {
	members, err := s.rdb.SMembers(ctx, userPendingJoinKey(userID)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	out := make(map[uint64]bool, len(members))
	for _, m := range members {
		v, _ := strconv.ParseUint(m, 10, 64)
		out[v] = true
	}
	return out, nil
}

// MarkPendingJoin records an outstanding JoinGroup request.
func (s *Store) MarkPendingJoin(ctx context.Context, userID uint32, chatID uint64) error {
	return wrap(s.rdb.SAdd(ctx, userPendingJoinKey(userID), chatID).Err())
}

// ClearPendingJoin removes an outstanding JoinGroup request marker.
func (s *Store) ClearPendingJoin(ctx context.Context, userID uint32, chatID uint64) error {
	return wrap(s.rdb.SRem(ctx, userPendingJoinKey(userID), chatID).Err())
}
