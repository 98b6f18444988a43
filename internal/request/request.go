// Package request implements the friend/group-join/invite request
// lifecycle: precondition checks, the handler set for each request
// variant, and the onSend/onApprove/onRefuse side effects.
package request

import (
	"context"
	"errors"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/storage"
)

// Precondition errors, one per §4.H failure case.
var (
	ErrSameUser         = errors.New("request: sender and target are the same user")
	ErrUserNotFound     = errors.New("request: user not found or tombstoned")
	ErrRequestExisted   = errors.New("request: an equivalent request is already in flight")
	ErrAlreadyBeFriends = errors.New("request: users are already friends")
	ErrNotGroupChat     = errors.New("request: chat is not a group")
	ErrAlreadyInGroup   = errors.New("request: user is already a member")
	ErrNotInChat        = errors.New("request: sender is not a member of the chat")
	ErrNotFriend        = errors.New("request: sender and receiver are not friends")
)

func userLive(ctx context.Context, s *storage.Store, id uint32) error {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// CheckMakeFriend validates a MakeFriend request from sender to recv.
func CheckMakeFriend(ctx context.Context, s *storage.Store, sender, recv uint32) error {
	if sender == recv {
		return ErrSameUser
	}
	if err := userLive(ctx, s, sender); err != nil {
		return err
	}
	if err := userLive(ctx, s, recv); err != nil {
		return err
	}
	cid, err := s.FriendPairToChatID(ctx, sender, recv)
	if err != nil {
		return err
	}
	if cid != 0 {
		return ErrAlreadyBeFriends
	}
	// cid == 0 with a key present means a request is already in flight;
	// FriendPairToChatID returns 0 for both "no record" and "pending",
	// so check the pending marker directly would require a distinct
	// sentinel — here we reuse the same key, so any existing key at all
	// (pending or resolved-to-zero, which never happens once resolved)
	// signals RequestExisted.
	pending, err := s.FriendPairPending(ctx, sender, recv)
	if err != nil {
		return err
	}
	if pending {
		return ErrRequestExisted
	}
	return nil
}

// CheckJoinGroup validates a JoinGroup request from sender against chat.
func CheckJoinGroup(ctx context.Context, s *storage.Store, sender uint32, chatID uint64) error {
	if err := userLive(ctx, s, sender); err != nil {
		return err
	}
	isGroup, err := s.IsGroup(ctx, chatID)
	if err == storage.ErrChatNotFound || (err == nil && !isGroup) {
		return ErrNotGroupChat
	}
	if err != nil {
		return err
	}
	members, err := s.Members(ctx, chatID)
	if err != nil {
		return err
	}
	if contains(members, sender) {
		return ErrAlreadyInGroup
	}
	pending, err := s.UserPendingJoin(ctx, sender)
	if err != nil {
		return err
	}
	if pending[chatID] {
		return ErrRequestExisted
	}
	return nil
}

// CheckGroupInvitation validates a GroupInvitation from sender (a
// current member) inviting recv into chatID.
func CheckGroupInvitation(ctx context.Context, s *storage.Store, sender, recv uint32, chatID uint64) error {
	if sender == recv {
		return ErrSameUser
	}
	if err := userLive(ctx, s, sender); err != nil {
		return err
	}
	if err := userLive(ctx, s, recv); err != nil {
		return err
	}
	isGroup, err := s.IsGroup(ctx, chatID)
	if err == storage.ErrChatNotFound || (err == nil && !isGroup) {
		return ErrNotGroupChat
	}
	if err != nil {
		return err
	}
	members, err := s.Members(ctx, chatID)
	if err != nil {
		return err
	}
	if !contains(members, sender) {
		return ErrNotInChat
	}
	if contains(members, recv) {
		return ErrAlreadyInGroup
	}
	friendChat, err := s.FriendPairToChatID(ctx, sender, recv)
	if err != nil {
		return err
	}
	if friendChat == 0 {
		return ErrNotFriend
	}
	existing, err := s.GroupInvitationPending(ctx, recv, chatID)
	if err != nil {
		return err
	}
	if existing {
		return ErrRequestExisted
	}
	return nil
}

// CheckInvitedJoinGroup validates a chained InvitedJoinGroup request
// created when the invitee approves a GroupInvitation from a non-admin.
func CheckInvitedJoinGroup(ctx context.Context, s *storage.Store, inviter, user uint32, chatID uint64) error {
	if inviter == user {
		return ErrSameUser
	}
	if err := userLive(ctx, s, inviter); err != nil {
		return err
	}
	if err := userLive(ctx, s, user); err != nil {
		return err
	}
	isGroup, err := s.IsGroup(ctx, chatID)
	if err == storage.ErrChatNotFound || (err == nil && !isGroup) {
		return ErrNotGroupChat
	}
	if err != nil {
		return err
	}
	members, err := s.Members(ctx, chatID)
	if err != nil {
		return err
	}
	if !contains(members, inviter) {
		return ErrNotInChat
	}
	if contains(members, user) {
		return ErrAlreadyInGroup
	}
	return nil
}

// Handlers resolves the user ids authorized to approve/refuse a
// request, per content kind.
func Handlers(ctx context.Context, s *storage.Store, content model.RequestContent) ([]uint32, error) {
	switch content.Kind {
	case model.RequestMakeFriend:
		return []uint32{content.ReceiverID}, nil
	case model.RequestJoinGroup:
		return s.Admins(ctx, content.ChatID)
	case model.RequestGroupInvitation:
		return []uint32{content.ReceiverID}, nil
	case model.RequestInvitedJoinGroup:
		return s.Admins(ctx, content.ChatID)
	default:
		return nil, errors.New("request: unknown content kind")
	}
}

func contains(xs []uint32, v uint32) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
