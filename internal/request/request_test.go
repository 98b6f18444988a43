package request

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return storage.NewFromClient(client)
}

func mustRegister(t *testing.T, s *storage.Store, name, email string) uint32 {
	t.Helper()
	id, err := s.Register(context.Background(), name, "pw", email)
	require.NoError(t, err)
	return id
}

func TestMakeFriendLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustRegister(t, s, "a", "a@x.com")
	b := mustRegister(t, s, "b", "b@x.com")

	require.NoError(t, CheckMakeFriend(ctx, s, a, b))

	req := &model.Request{SenderID: a, Content: model.RequestContent{Kind: model.RequestMakeFriend, ReceiverID: b}}
	require.NoError(t, OnSend(ctx, s, req))

	err := CheckMakeFriend(ctx, s, a, b)
	require.ErrorIs(t, err, ErrRequestExisted)

	result, err := OnApprove(ctx, s, req)
	require.NoError(t, err)
	require.NotZero(t, result.NewChatID)

	err = CheckMakeFriend(ctx, s, a, b)
	require.ErrorIs(t, err, ErrAlreadyBeFriends)
}

func TestMakeFriendRefuseClearsMarker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustRegister(t, s, "a", "a@x.com")
	b := mustRegister(t, s, "b", "b@x.com")

	req := &model.Request{SenderID: a, Content: model.RequestContent{Kind: model.RequestMakeFriend, ReceiverID: b}}
	require.NoError(t, OnSend(ctx, s, req))
	require.NoError(t, OnRefuse(ctx, s, req))

	require.NoError(t, CheckMakeFriend(ctx, s, a, b))
}

func TestJoinGroupAlreadyInGroup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustRegister(t, s, "owner", "o@x.com")
	member := mustRegister(t, s, "m", "m@x.com")
	cid, err := s.CreateGroup(ctx, owner, "g", "")
	require.NoError(t, err)
	require.NoError(t, s.AddMember(ctx, cid, member))

	err = CheckJoinGroup(ctx, s, member, cid)
	require.ErrorIs(t, err, ErrAlreadyInGroup)
}

func TestGroupInvitationByNonAdminChains(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustRegister(t, s, "owner", "o@x.com")
	member := mustRegister(t, s, "m", "m@x.com")
	invitee := mustRegister(t, s, "inv", "inv@x.com")

	cid, err := s.CreateGroup(ctx, owner, "g", "")
	require.NoError(t, err)
	require.NoError(t, s.AddMember(ctx, cid, member))
	_, err = s.MakeFriends(ctx, member, invitee)
	require.NoError(t, err)

	require.NoError(t, CheckGroupInvitation(ctx, s, member, invitee, cid))

	req := &model.Request{
		SenderID: member,
		Content:  model.RequestContent{Kind: model.RequestGroupInvitation, ReceiverID: invitee, ChatID: cid},
	}
	result, err := OnApprove(ctx, s, req)
	require.NoError(t, err)
	require.NotNil(t, result.ChainedRequest)
	require.Equal(t, model.RequestInvitedJoinGroup, result.ChainedRequest.Content.Kind)
	require.Equal(t, member, result.ChainedRequest.Content.InviterID)

	members, err := s.Members(ctx, cid)
	require.NoError(t, err)
	require.NotContains(t, members, invitee)
}

func TestGroupInvitationByAdminAddsDirectly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustRegister(t, s, "owner", "o@x.com")
	invitee := mustRegister(t, s, "inv", "inv@x.com")

	cid, err := s.CreateGroup(ctx, owner, "g", "")
	require.NoError(t, err)
	_, err = s.MakeFriends(ctx, owner, invitee)
	require.NoError(t, err)

	req := &model.Request{
		SenderID: owner,
		Content:  model.RequestContent{Kind: model.RequestGroupInvitation, ReceiverID: invitee, ChatID: cid},
	}
	result, err := OnApprove(ctx, s, req)
	require.NoError(t, err)
	require.Nil(t, result.ChainedRequest)
	require.True(t, result.Added)

	members, err := s.Members(ctx, cid)
	require.NoError(t, err)
	require.Contains(t, members, invitee)
}
