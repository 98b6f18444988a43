package command

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/session"
	"github.com/Francis-Rockwell/dmail-server/internal/storage"
)

// canSendIn reports whether userID may post into chatID: ordinary
// membership, or the reserved system sender.
func (d *Dispatcher) canSendIn(ctx context.Context, chatID uint64, userID uint32) (bool, error) {
	if userID == model.SystemUserID {
		return true, nil
	}
	isGroup, err := d.Store.IsGroup(ctx, chatID)
	if err != nil {
		return false, err
	}
	if isGroup {
		members, err := d.Store.Members(ctx, chatID)
		if err != nil {
			return false, err
		}
		for _, m := range members {
			if m == userID {
				return true, nil
			}
		}
		return false, nil
	}
	a, b, err := d.Store.PrivateChatMembers(ctx, chatID)
	if err != nil {
		return false, err
	}
	return userID == a || userID == b, nil
}

// fanoutMessage delivers msg to every member of chatID, honoring the
// group-fanout worker-pool threshold from §5.
func (d *Dispatcher) fanoutMessage(ctx context.Context, chatID uint64, senderID uint32, msg *model.ChatMessage) {
	isGroup, err := d.Store.IsGroup(ctx, chatID)
	if err != nil {
		return
	}
	if !isGroup {
		a, b, err := d.Store.PrivateChatMembers(ctx, chatID)
		if err != nil {
			return
		}
		if senderID == model.SystemUserID {
			broadcast(d.Presence, []uint32{a, b}, model.PushMessage, msg)
			return
		}
		peer := a
		if senderID == a {
			peer = b
		}
		unicast(d.Presence, peer, model.PushMessage, msg)
		return
	}

	members, err := d.Store.Members(ctx, chatID)
	if err != nil {
		return
	}
	send := func() {
		broadcastExcept(d.Presence, members, senderID, model.PushMessage, msg)
	}
	if len(members) > d.Cfg.Protocol.GroupFanoutWorkerThreshold {
		d.Pool.Submit(send)
	} else {
		send()
	}
}

// handleSendMessage implements §4.G SendMessage.
func (d *Dispatcher) handleSendMessage(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.SendMessageData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespSendMessageResponse, model.SendMessageResponse{State: model.StateContentError, ClientID: req.ClientID, ChatID: req.ChatID})
		return
	}

	if len(req.SerializedContent) > d.Cfg.Safety.MaxMsgLength {
		actor.Send(model.RespSendMessageResponse, model.SendMessageResponse{State: model.StateLengthLimitExceeded, ClientID: req.ClientID, ChatID: req.ChatID})
		return
	}

	allowed, err := d.canSendIn(ctx, req.ChatID, userID)
	if err == storage.ErrChatNotFound {
		actor.Send(model.RespSendMessageResponse, model.SendMessageResponse{State: model.StateChatNotFound, ClientID: req.ClientID, ChatID: req.ChatID})
		return
	}
	if err != nil {
		actor.Send(model.RespSendMessageResponse, model.SendMessageResponse{State: model.StateDatabaseError, ClientID: req.ClientID, ChatID: req.ChatID})
		return
	}
	if !allowed {
		actor.Send(model.RespSendMessageResponse, model.SendMessageResponse{State: model.StateUserNotInChat, ClientID: req.ClientID, ChatID: req.ChatID})
		return
	}

	var mention model.MentionTextContent
	if req.Type == model.MessageMentionText {
		if err := json.Unmarshal([]byte(req.SerializedContent), &mention); err != nil {
			actor.Send(model.RespSendMessageResponse, model.SendMessageResponse{State: model.StateContentError, ClientID: req.ClientID, ChatID: req.ChatID})
			return
		}
	}

	msg, err := d.Store.WriteMessage(ctx, req.Type, req.SerializedContent, req.ChatID, userID)
	if err != nil {
		actor.Send(model.RespSendMessageResponse, model.SendMessageResponse{State: model.StateDatabaseError, ClientID: req.ClientID, ChatID: req.ChatID})
		return
	}

	if req.Type == model.MessageMentionText {
		for _, uid := range mention.UserIDs {
			notice := model.Notice{Kind: model.NoticeMentioned, ChatID: req.ChatID, InChatID: msg.InChatID, Timestamp: time.Now().UnixMilli()}
			_ = d.Store.WriteNotice(ctx, uid, notice)
			unicast(d.Presence, uid, model.PushNotice, notice)
		}
	}

	d.fanoutMessage(ctx, req.ChatID, userID, msg)

	actor.Send(model.RespSendMessageResponse, model.SendMessageResponse{
		State:     model.StateSuccess,
		ClientID:  req.ClientID,
		ChatID:    req.ChatID,
		InChatID:  msg.InChatID,
		Timestamp: msg.Timestamp,
	})
}

// handleGetMessages implements the GetMessages range read.
func (d *Dispatcher) handleGetMessages(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.GetMessagesData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespGetMessagesResponse, model.GetMessagesResponse{State: model.StateContentError})
		return
	}

	allowed, err := d.canSendIn(ctx, req.ChatID, userID)
	if err != nil {
		actor.Send(model.RespGetMessagesResponse, model.GetMessagesResponse{State: model.StateDatabaseError})
		return
	}
	if !allowed {
		actor.Send(model.RespGetMessagesResponse, model.GetMessagesResponse{State: model.StateUserNotInChat})
		return
	}

	to := req.ToInChatID
	if to == 0 {
		last, err := d.Store.LastMessageID(ctx, req.ChatID)
		if err != nil {
			actor.Send(model.RespGetMessagesResponse, model.GetMessagesResponse{State: model.StateDatabaseError})
			return
		}
		limit := uint64(d.Cfg.Protocol.MaxMessagesPerChatOnGet)
		to = last
		if req.FromInChatID+limit < to {
			to = req.FromInChatID + limit
		}
	}

	msgs, err := d.Store.GetRange(ctx, req.ChatID, req.FromInChatID, to)
	if err != nil {
		actor.Send(model.RespGetMessagesResponse, model.GetMessagesResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespGetMessagesResponse, model.GetMessagesResponse{State: model.StateSuccess, Messages: msgs})
}

// handleRevokeMessage implements §4.G RevokeMessage.
func (d *Dispatcher) handleRevokeMessage(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.RevokeMessageData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespRevokeMessageResponse, model.RevokeMessageResponse{State: model.StateContentError})
		return
	}

	msg, err := d.Store.GetMessage(ctx, req.ChatID, req.InChatID)
	if err == storage.ErrMessageNotFound {
		actor.Send(model.RespRevokeMessageResponse, model.RevokeMessageResponse{State: model.StateMessageNotExisted})
		return
	}
	if err != nil {
		actor.Send(model.RespRevokeMessageResponse, model.RevokeMessageResponse{State: model.StateDatabaseError})
		return
	}

	authorized := false
	switch req.Method {
	case model.RevokeBySender:
		authorized = msg.SenderID == userID
		if authorized && d.Cfg.User.SenderRevokeExpire > 0 {
			age := time.Since(time.UnixMilli(msg.Timestamp))
			if age > time.Duration(d.Cfg.User.SenderRevokeExpire)*time.Second {
				authorized = false
			}
		}
	case model.RevokeByGroupAdmin:
		admins, err := d.Store.Admins(ctx, req.ChatID)
		if err != nil {
			actor.Send(model.RespRevokeMessageResponse, model.RevokeMessageResponse{State: model.StateDatabaseError})
			return
		}
		callerIsAdmin, targetIsAdmin := false, false
		for _, a := range admins {
			if a == userID {
				callerIsAdmin = true
			}
			if a == msg.SenderID {
				targetIsAdmin = true
			}
		}
		authorized = callerIsAdmin && (msg.SenderID == userID || !targetIsAdmin)
	case model.RevokeByGroupOwner:
		owner, err := d.Store.Owner(ctx, req.ChatID)
		if err != nil {
			actor.Send(model.RespRevokeMessageResponse, model.RevokeMessageResponse{State: model.StateDatabaseError})
			return
		}
		authorized = owner == userID
	}
	if !authorized {
		actor.Send(model.RespRevokeMessageResponse, model.RevokeMessageResponse{State: model.StatePermissionsDenied})
		return
	}

	if _, err := d.Store.Revoke(ctx, req.ChatID, req.InChatID); err != nil {
		actor.Send(model.RespRevokeMessageResponse, model.RevokeMessageResponse{State: model.StateDatabaseError})
		return
	}

	members, err := d.membersOf(ctx, req.ChatID)
	if err == nil {
		notice := model.Notice{Kind: model.NoticeRevoked, ChatID: req.ChatID, InChatID: req.InChatID, Timestamp: time.Now().UnixMilli()}
		for _, m := range members {
			_ = d.Store.WriteNotice(ctx, m, notice)
		}
		broadcast(d.Presence, members, model.PushNotice, notice)
	}

	actor.Send(model.RespRevokeMessageResponse, model.RevokeMessageResponse{State: model.StateSuccess})
}

// membersOf returns every participant of a chat, private or group.
func (d *Dispatcher) membersOf(ctx context.Context, chatID uint64) ([]uint32, error) {
	isGroup, err := d.Store.IsGroup(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if isGroup {
		return d.Store.Members(ctx, chatID)
	}
	a, b, err := d.Store.PrivateChatMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return []uint32{a, b}, nil
}

// handleSetAlreadyRead implements §4.G SetAlreadyRead.
func (d *Dispatcher) handleSetAlreadyRead(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.SetAlreadyReadData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespSetAlreadyReadResponse, model.SetAlreadyReadResponse{State: model.StateContentError})
		return
	}

	err := d.Store.SetReadCursor(ctx, userID, req.ChatID, req.InChatID)
	if err == storage.ErrReadCursorAhead {
		actor.Send(model.RespSetAlreadyReadResponse, model.SetAlreadyReadResponse{State: model.StateContentError})
		return
	}
	if err != nil {
		actor.Send(model.RespSetAlreadyReadResponse, model.SetAlreadyReadResponse{State: model.StateDatabaseError})
		return
	}

	if req.Private {
		a, b, err := d.Store.PrivateChatMembers(ctx, req.ChatID)
		if err == nil {
			peer := a
			if userID == a {
				peer = b
			}
			unicast(d.Presence, peer, model.PushSetOppositeReadCursor, model.SetOppositeReadCursorPush{ChatID: req.ChatID, InChatID: req.InChatID})
		}
	}

	actor.Send(model.RespSetAlreadyReadResponse, model.SetAlreadyReadResponse{State: model.StateSuccess})
}

// handleGetUserReadInGroup implements SPEC_FULL.md supplement #4.
func (d *Dispatcher) handleGetUserReadInGroup(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.GetUserReadInGroupData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespGetUserReadInGroupResp, model.GetUserReadInGroupResponse{State: model.StateContentError})
		return
	}
	if !contains(d.groupMembers(ctx, req.ChatID), userID) {
		actor.Send(model.RespGetUserReadInGroupResp, model.GetUserReadInGroupResponse{State: model.StateUserNotInChat})
		return
	}
	ids, err := d.Store.GroupReadersAtLeast(ctx, req.ChatID, req.AtLeast)
	if err != nil {
		actor.Send(model.RespGetUserReadInGroupResp, model.GetUserReadInGroupResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespGetUserReadInGroupResp, model.GetUserReadInGroupResponse{State: model.StateSuccess, UserIDs: ids})
}

// handleGetUserReadInPrivate implements SPEC_FULL.md supplement #4.
func (d *Dispatcher) handleGetUserReadInPrivate(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.GetUserReadInPrivateData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespGetUserReadInPrivateResp, model.GetUserReadInPrivateResponse{State: model.StateContentError})
		return
	}
	a, b, err := d.Store.PrivateChatMembers(ctx, req.ChatID)
	if err != nil {
		actor.Send(model.RespGetUserReadInPrivateResp, model.GetUserReadInPrivateResponse{State: model.StateChatNotFound})
		return
	}
	if userID != a && userID != b {
		actor.Send(model.RespGetUserReadInPrivateResp, model.GetUserReadInPrivateResponse{State: model.StateUserNotInChat})
		return
	}
	peer := a
	if userID == a {
		peer = b
	}
	cursor, err := d.Store.ReadCursor(ctx, peer, req.ChatID)
	if err != nil {
		actor.Send(model.RespGetUserReadInPrivateResp, model.GetUserReadInPrivateResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespGetUserReadInPrivateResp, model.GetUserReadInPrivateResponse{State: model.StateSuccess, InChatID: cursor})
}
