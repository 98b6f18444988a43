package command

import (
	"context"
	"encoding/json"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/session"
	"github.com/Francis-Rockwell/dmail-server/internal/storage"
)

// handleCreateGroupChat implements §4.G CreateGroupChat.
func (d *Dispatcher) handleCreateGroupChat(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.CreateGroupChatData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespCreateGroupChatResponse, model.CreateGroupChatResponse{State: model.StateContentError})
		return
	}
	if len(req.Name) == 0 || len(req.Name) > d.Cfg.User.MaxUserNameLength {
		actor.Send(model.RespCreateGroupChatResponse, model.CreateGroupChatResponse{State: model.StateUserNameFormatError})
		return
	}

	chatID, err := d.Store.CreateGroup(ctx, userID, req.Name, req.AvatarHash)
	if err != nil {
		actor.Send(model.RespCreateGroupChatResponse, model.CreateGroupChatResponse{State: model.StateDatabaseError})
		return
	}
	d.announceToGroup(ctx, chatID, model.AdminMsgGroupCreated)

	actor.Send(model.RespCreateGroupChatResponse, model.CreateGroupChatResponse{State: model.StateSuccess, ChatID: chatID})
}

// handleQuitGroupChat implements §4.G QuitGroupChat.
func (d *Dispatcher) handleQuitGroupChat(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.QuitGroupChatData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespQuitGroupChatResponse, model.QuitGroupChatResponse{State: model.StateContentError})
		return
	}

	if err := d.Store.QuitGroup(ctx, userID, req.ChatID); err != nil {
		if err == storage.ErrIsOwner {
			actor.Send(model.RespQuitGroupChatResponse, model.QuitGroupChatResponse{State: model.StateNotOwner})
			return
		}
		actor.Send(model.RespQuitGroupChatResponse, model.QuitGroupChatResponse{State: model.StateDatabaseError})
		return
	}

	name := d.userName(ctx, userID)
	d.announceToGroup(ctx, req.ChatID, model.AdminMsgQuitGroup(name))
	broadcast(d.Presence, d.groupMembers(ctx, req.ChatID), model.PushGroupMemberChange,
		model.GroupMemberChangePush{Type: model.GroupMemberDeleted, ChatID: req.ChatID, UserID: userID})

	actor.Send(model.RespQuitGroupChatResponse, model.QuitGroupChatResponse{State: model.StateSuccess})
}

// handleRemoveGroupMember implements §4.G RemoveGroupMember.
func (d *Dispatcher) handleRemoveGroupMember(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.RemoveGroupMemberData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespRemoveGroupMemberResp, model.SetGroupAdminResponse{State: model.StateContentError})
		return
	}
	if req.UserID == userID {
		actor.Send(model.RespRemoveGroupMemberResp, model.SetGroupAdminResponse{State: model.StateSameUser})
		return
	}

	owner, err := d.Store.Owner(ctx, req.ChatID)
	if err != nil {
		if err == storage.ErrNotGroupChat {
			actor.Send(model.RespRemoveGroupMemberResp, model.SetGroupAdminResponse{State: model.StateNotGroupChat})
			return
		}
		actor.Send(model.RespRemoveGroupMemberResp, model.SetGroupAdminResponse{State: model.StateDatabaseError})
		return
	}
	admins, err := d.Store.Admins(ctx, req.ChatID)
	if err != nil {
		actor.Send(model.RespRemoveGroupMemberResp, model.SetGroupAdminResponse{State: model.StateDatabaseError})
		return
	}
	callerIsAdmin, targetIsAdmin := false, false
	for _, a := range admins {
		if a == userID {
			callerIsAdmin = true
		}
		if a == req.UserID {
			targetIsAdmin = true
		}
	}
	if !(callerIsAdmin || owner == userID) {
		actor.Send(model.RespRemoveGroupMemberResp, model.SetGroupAdminResponse{State: model.StateNotAdmin})
		return
	}
	if targetIsAdmin && owner != userID {
		actor.Send(model.RespRemoveGroupMemberResp, model.SetGroupAdminResponse{State: model.StateNoPermission})
		return
	}

	before := d.groupMembers(ctx, req.ChatID)
	if err := d.Store.QuitGroup(ctx, req.UserID, req.ChatID); err != nil {
		actor.Send(model.RespRemoveGroupMemberResp, model.SetGroupAdminResponse{State: model.StateDatabaseError})
		return
	}

	removerName := d.userName(ctx, userID)
	removedName := d.userName(ctx, req.UserID)
	d.announceToGroup(ctx, req.ChatID, model.AdminMsgRemovedFromGroup(removedName, removerName))

	unicast(d.Presence, req.UserID, model.PushDeleteChat, model.DeleteChatPush{ChatID: req.ChatID})
	broadcastExcept(d.Presence, before, req.UserID, model.PushGroupMemberChange,
		model.GroupMemberChangePush{Type: model.GroupMemberDeleted, ChatID: req.ChatID, UserID: req.UserID})

	actor.Send(model.RespRemoveGroupMemberResp, model.SetGroupAdminResponse{State: model.StateSuccess})
}

// handleSetGroupAdmin implements both SetGroupAdmin and UnsetGroupAdmin;
// grant distinguishes which.
func (d *Dispatcher) handleSetGroupAdmin(ctx context.Context, actor *session.Actor, raw json.RawMessage, grant bool) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.SetGroupAdminData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespSetGroupAdminResponse, model.SetGroupAdminResponse{State: model.StateContentError})
		return
	}

	owner, err := d.Store.Owner(ctx, req.ChatID)
	if err != nil {
		if err == storage.ErrNotGroupChat {
			actor.Send(model.RespSetGroupAdminResponse, model.SetGroupAdminResponse{State: model.StateNotGroupChat})
			return
		}
		actor.Send(model.RespSetGroupAdminResponse, model.SetGroupAdminResponse{State: model.StateDatabaseError})
		return
	}
	if owner != userID {
		actor.Send(model.RespSetGroupAdminResponse, model.SetGroupAdminResponse{State: model.StateNotOwner})
		return
	}

	var opErr error
	if grant {
		opErr = d.Store.SetAdmin(ctx, req.ChatID, req.UserID)
	} else {
		opErr = d.Store.UnsetAdmin(ctx, req.ChatID, req.UserID)
	}
	if opErr != nil {
		actor.Send(model.RespSetGroupAdminResponse, model.SetGroupAdminResponse{State: model.StateDatabaseError})
		return
	}

	actor.Send(model.RespSetGroupAdminResponse, model.SetGroupAdminResponse{State: model.StateSuccess})
}

// handleGroupOwnerTransfer implements §4.G GroupOwnerTransfer.
func (d *Dispatcher) handleGroupOwnerTransfer(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.GroupOwnerTransferData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespGroupOwnerTransferResp, model.SetGroupAdminResponse{State: model.StateContentError})
		return
	}

	owner, err := d.Store.Owner(ctx, req.ChatID)
	if err != nil {
		if err == storage.ErrNotGroupChat {
			actor.Send(model.RespGroupOwnerTransferResp, model.SetGroupAdminResponse{State: model.StateNotGroupChat})
			return
		}
		actor.Send(model.RespGroupOwnerTransferResp, model.SetGroupAdminResponse{State: model.StateDatabaseError})
		return
	}
	if owner != userID {
		actor.Send(model.RespGroupOwnerTransferResp, model.SetGroupAdminResponse{State: model.StateNotOwner})
		return
	}
	members := d.groupMembers(ctx, req.ChatID)
	if !contains(members, req.UserID) {
		actor.Send(model.RespGroupOwnerTransferResp, model.SetGroupAdminResponse{State: model.StateUserNotInChat})
		return
	}

	if err := d.Store.OwnerTransfer(ctx, req.ChatID, req.UserID); err != nil {
		actor.Send(model.RespGroupOwnerTransferResp, model.SetGroupAdminResponse{State: model.StateDatabaseError})
		return
	}

	actor.Send(model.RespGroupOwnerTransferResp, model.SetGroupAdminResponse{State: model.StateSuccess})
}

// handleUpdateGroupInfo implements §4.G UpdateGroupInfo.
func (d *Dispatcher) handleUpdateGroupInfo(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.UpdateGroupInfoData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespUpdateGroupInfoResponse, model.UpdateGroupInfoResponse{State: model.StateContentError})
		return
	}
	if req.Name != "" && len(req.Name) > d.Cfg.User.MaxUserNameLength {
		actor.Send(model.RespUpdateGroupInfoResponse, model.UpdateGroupInfoResponse{State: model.StateUserNameFormatError})
		return
	}

	admins, err := d.Store.Admins(ctx, req.ChatID)
	if err != nil {
		actor.Send(model.RespUpdateGroupInfoResponse, model.UpdateGroupInfoResponse{State: model.StateDatabaseError})
		return
	}
	if !contains(admins, userID) {
		actor.Send(model.RespUpdateGroupInfoResponse, model.UpdateGroupInfoResponse{State: model.StateNotAdmin})
		return
	}

	if err := d.Store.UpdateGroupInfo(ctx, req.ChatID, req.Name, req.AvatarHash); err != nil {
		actor.Send(model.RespUpdateGroupInfoResponse, model.UpdateGroupInfoResponse{State: model.StateDatabaseError})
		return
	}

	actor.Send(model.RespUpdateGroupInfoResponse, model.UpdateGroupInfoResponse{State: model.StateSuccess})
}

// handleGetChatInfo implements §4.G GetChatInfo.
func (d *Dispatcher) handleGetChatInfo(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	if _, ok := requireLogin(actor); !ok {
		return
	}
	var req model.GetChatInfoData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespGetChatInfoResponse, model.GetChatInfoResponse{State: model.StateContentError})
		return
	}
	chat, err := d.Store.GetChatInfo(ctx, req.ChatID)
	if err == storage.ErrChatNotFound {
		actor.Send(model.RespGetChatInfoResponse, model.GetChatInfoResponse{State: model.StateChatNotFound})
		return
	}
	if err != nil {
		actor.Send(model.RespGetChatInfoResponse, model.GetChatInfoResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespGetChatInfoResponse, model.GetChatInfoResponse{
		State:  model.StateSuccess,
		ChatID: req.ChatID,
		Group:  chat.IsGroup(),
		Info:   chat.Info,
	})
}

// handleGetGroupUsers implements §4.G GetGroupUsers.
func (d *Dispatcher) handleGetGroupUsers(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	if _, ok := requireLogin(actor); !ok {
		return
	}
	var req model.GetGroupUsersData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespGetGroupUsersResponse, model.GetGroupUsersResponse{State: model.StateContentError})
		return
	}
	members, err := d.Store.Members(ctx, req.ChatID)
	if err != nil {
		actor.Send(model.RespGetGroupUsersResponse, model.GetGroupUsersResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespGetGroupUsersResponse, model.GetGroupUsersResponse{State: model.StateSuccess, UserIDs: members})
}

// handleGetGroupOwner implements §4.G GetGroupOwner.
func (d *Dispatcher) handleGetGroupOwner(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	if _, ok := requireLogin(actor); !ok {
		return
	}
	var req model.GetGroupOwnerData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespGetGroupOwnerResponse, model.GetGroupOwnerResponse{State: model.StateContentError})
		return
	}
	owner, err := d.Store.Owner(ctx, req.ChatID)
	if err != nil {
		if err == storage.ErrNotGroupChat {
			actor.Send(model.RespGetGroupOwnerResponse, model.GetGroupOwnerResponse{State: model.StateNotGroupChat})
			return
		}
		actor.Send(model.RespGetGroupOwnerResponse, model.GetGroupOwnerResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespGetGroupOwnerResponse, model.GetGroupOwnerResponse{State: model.StateSuccess, UserID: owner})
}

// handleGetGroupAdmin implements §4.G GetGroupAdmin.
func (d *Dispatcher) handleGetGroupAdmin(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	if _, ok := requireLogin(actor); !ok {
		return
	}
	var req model.GetGroupOwnerData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespGetGroupAdminResponse, model.GetGroupAdminResponse{State: model.StateContentError})
		return
	}
	admins, err := d.Store.Admins(ctx, req.ChatID)
	if err != nil {
		actor.Send(model.RespGetGroupAdminResponse, model.GetGroupAdminResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespGetGroupAdminResponse, model.GetGroupAdminResponse{State: model.StateSuccess, UserIDs: admins})
}

// handleUnfriend implements §4.G Unfriend.
func (d *Dispatcher) handleUnfriend(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.UnfriendData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespUnfriendResponse, model.UnfriendResponse{State: model.StateContentError})
		return
	}
	if req.UserID == userID {
		actor.Send(model.RespUnfriendResponse, model.UnfriendResponse{State: model.StateSameUser})
		return
	}

	cid, err := d.Store.FriendPairToChatID(ctx, userID, req.UserID)
	if err != nil {
		actor.Send(model.RespUnfriendResponse, model.UnfriendResponse{State: model.StateDatabaseError})
		return
	}
	if cid == 0 {
		actor.Send(model.RespUnfriendResponse, model.UnfriendResponse{State: model.StateNotFriend})
		return
	}

	if _, err := d.Store.Unfriend(ctx, userID, req.UserID); err != nil {
		actor.Send(model.RespUnfriendResponse, model.UnfriendResponse{State: model.StateDatabaseError})
		return
	}

	unicast(d.Presence, req.UserID, model.PushDeleteChat, model.DeleteChatPush{ChatID: cid})

	actor.Send(model.RespUnfriendResponse, model.UnfriendResponse{State: model.StateSuccess})
}
