package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

func userKey(id uint32) string       { return fmt.Sprintf("user:%d", id) }
func userEmailKey(email string) string { return "user:email:" + email }
func userNameKey(name string) string   { return "user:name:" + name }
func userReadCursorsKey(id uint32) string { return fmt.Sprintf("user:%d:readcursors", id) }
func userPendingJoinKey(id uint32) string { return fmt.Sprintf("user:%d:pendingjoin", id) }
func userRequestsKey(id uint32) string    { return fmt.Sprintf("user:%d:requests", id) }
func userNoticesKey(id uint32) string     { return fmt.Sprintf("user:%d:notices", id) }

// Register creates a new user row, rejecting a duplicate email.
func (s *Store) Register(ctx context.Context, name, pwHash, email string) (uint32, error) {
	taken, err := s.rdb.Exists(ctx, userEmailKey(email)).Result()
	if err != nil {
		return 0, wrap(err)
	}
	if taken == 1 {
		return 0, ErrEmailTaken
	}

	id64, err := s.rdb.Incr(ctx, "user:seq").Result()
	if err != nil {
		return 0, wrap(err)
	}
	id := uint32(id64)

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, userKey(id), map[string]interface{}{
		"userId":       id,
		"userName":     name,
		"avaterHash":   "",
		"email":        email,
		"passwordHash": pwHash,
		"exists":       true,
		"token":        "",
		"tokenIssued":  0,
	})
	pipe.Set(ctx, userEmailKey(email), id, 0)
	pipe.SAdd(ctx, userNameKey(name), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, wrap(err)
	}
	return id, nil
}

func (s *Store) loadUser(ctx context.Context, id uint32) (*model.User, error) {
	vals, err := s.rdb.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	if len(vals) == 0 {
		return nil, ErrUserNotFound
	}
	exists := vals["exists"] == "1" || vals["exists"] == "true"
	tokenIssued, _ := strconv.ParseInt(vals["tokenIssued"], 10, 64)
	return &model.User{
		UserID:       id,
		UserName:     vals["userName"],
		AvatarHash:   vals["avaterHash"],
		Email:        vals["email"],
		PasswordHash: vals["passwordHash"],
		Exists:       exists,
		Token:        vals["token"],
		TokenIssued:  tokenIssued,
	}, nil
}

// GetByID loads a user row by id.
func (s *Store) GetByID(ctx context.Context, id uint32) (*model.User, error) {
	return s.loadUser(ctx, id)
}

// GetByEmail loads a user row by email address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	idStr, err := s.rdb.Get(ctx, userEmailKey(email)).Result()
	if err == redis.Nil {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, wrap(err)
	}
	id, _ := strconv.ParseUint(idStr, 10, 32)
	return s.loadUser(ctx, uint32(id))
}

// GetEmail returns the email address on file for a user.
func (s *Store) GetEmail(ctx context.Context, id uint32) (string, error) {
	u, err := s.loadUser(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// Exists reports whether a user id refers to a live (non-tombstoned) row.
func (s *Store) Exists(ctx context.Context, id uint32) (bool, error) {
	u, err := s.loadUser(ctx, id)
	if err == ErrUserNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Exists, nil
}

// LoginByPassword authenticates by email+password hash.
func (s *Store) LoginByPassword(ctx context.Context, email, pwHash string) (*model.User, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.PasswordHash != pwHash {
		return nil, ErrPasswordMismatch
	}
	return u, nil
}

// LoginByToken authenticates by a previously issued token, rejecting an
// expired one.
func (s *Store) LoginByToken(ctx context.Context, email, token string, tokenTTL time.Duration) (*model.User, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.Token == "" || u.Token != token {
		return nil, ErrTokenMismatch
	}
	if time.Since(time.Unix(u.TokenIssued, 0)) > tokenTTL {
		return nil, ErrTokenExpired
	}
	return u, nil
}

// ApplyToken mints a fresh login token for an already-authenticated user.
func (s *Store) ApplyToken(ctx context.Context, id uint32, token string, issuedAt int64) error {
	err := s.rdb.HSet(ctx, userKey(id), map[string]interface{}{
		"token":       token,
		"tokenIssued": issuedAt,
	}).Err()
	return wrap(err)
}

// UpdateName renames a user, maintaining the name→ids index.
func (s *Store) UpdateName(ctx context.Context, id uint32, newName string) error {
	u, err := s.loadUser(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, userNameKey(u.UserName), id)
	pipe.SAdd(ctx, userNameKey(newName), id)
	pipe.HSet(ctx, userKey(id), "userName", newName)
	_, err = pipe.Exec(ctx)
	return wrap(err)
}

// UpdateAvatar sets a user's avatar hash.
func (s *Store) UpdateAvatar(ctx context.Context, id uint32, avatarHash string) error {
	return wrap(s.rdb.HSet(ctx, userKey(id), "avaterHash", avatarHash).Err())
}

// UpdatePassword sets a user's stored password hash.
func (s *Store) UpdatePassword(ctx context.Context, id uint32, newPwHash string) error {
	return wrap(s.rdb.HSet(ctx, userKey(id), "passwordHash", newPwHash).Err())
}

// NameToIDs resolves a username to every id registered under it.
func (s *Store) NameToIDs(ctx context.Context, name string) ([]uint32, error) {
	members, err := s.rdb.SMembers(ctx, userNameKey(name)).Result()
	if err != nil {
		return nil, wrap(err)
	}
	ids := make([]uint32, 0, len(members))
	for _, m := range members {
		v, _ := strconv.ParseUint(m, 10, 32)
		ids = append(ids, uint32(v))
	}
	return ids, nil
}

// LogOffResult is returned by LogOff alongside the friend pairs that
// were dissolved.
type LogOffResult string

const (
	LogOffSuccess   LogOffResult = "Success"
	LogOffOwnsGroup LogOffResult = "OwnsGroup"
)

// FriendChatPair is one dissolved friendship, for notifying the peer.
type FriendChatPair struct {
	FriendID uint32
	ChatID   uint64
}

// LogOff tombstones a user: renames it to a placeholder, clears the
// email index, dissolves every friendship, and quits every group the
// user belongs to. It refuses (LogOffOwnsGroup) if the user still owns
// any group — the caller must transfer ownership first.
func (s *Store) LogOff(ctx context.Context, id uint32) (LogOffResult, []FriendChatPair, error) {
	u, err := s.loadUser(ctx, id)
	if err != nil {
		return "", nil, err
	}

	groupIDs, err := s.rdb.SMembers(ctx, fmt.Sprintf("user:%d:groups", id)).Result()
	if err != nil {
		return "", nil, wrap(err)
	}
	for _, cidStr := range groupIDs {
		cid, _ := strconv.ParseUint(cidStr, 10, 64)
		owner, err := s.Owner(ctx, cid)
		if err == nil && owner == id {
			return LogOffOwnsGroup, nil, nil
		}
	}

	friendIDs, err := s.rdb.SMembers(ctx, fmt.Sprintf("user:%d:friends", id)).Result()
	if err != nil {
		return "", nil, wrap(err)
	}
	var pairs []FriendChatPair
	for _, fidStr := range friendIDs {
		fid, _ := strconv.ParseUint(fidStr, 10, 32)
		cid, err := s.FriendPairToChatID(ctx, id, uint32(fid))
		if err == nil && cid != 0 {
			pairs = append(pairs, FriendChatPair{FriendID: uint32(fid), ChatID: cid})
			_, _ = s.Unfriend(ctx, id, uint32(fid))
		}
	}

	for _, cidStr := range groupIDs {
		cid, _ := strconv.ParseUint(cidStr, 10, 64)
		_ = s.QuitGroup(ctx, id, cid)
	}

	pipe := s.rdb.TxPipeline()
	placeholder := fmt.Sprintf("deleted-user-%d", id)
	pipe.SRem(ctx, userNameKey(u.UserName), id)
	pipe.Del(ctx, userEmailKey(u.Email))
	pipe.HSet(ctx, userKey(id), map[string]interface{}{
		"userName": placeholder,
		"exists":   false,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", nil, wrap(err)
	}

	return LogOffSuccess, pairs, nil
}
