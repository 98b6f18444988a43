package command

import (
	"context"
	"encoding/json"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/session"
)

// handleSendGroupNotice implements §4.G SendGroupNotice: only an admin
// may post the single chat-wide bulletin.
func (d *Dispatcher) handleSendGroupNotice(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.SendGroupNoticeData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespSendGroupNoticeResponse, model.SendGroupNoticeResponse{State: model.StateContentError})
		return
	}
	if len(req.Content) > d.Cfg.Safety.MaxNoticeLength {
		actor.Send(model.RespSendGroupNoticeResponse, model.SendGroupNoticeResponse{State: model.StateLengthLimitExceeded})
		return
	}

	admins, err := d.Store.Admins(ctx, req.ChatID)
	if err != nil {
		actor.Send(model.RespSendGroupNoticeResponse, model.SendGroupNoticeResponse{State: model.StateDatabaseError})
		return
	}
	if !contains(admins, userID) {
		actor.Send(model.RespSendGroupNoticeResponse, model.SendGroupNoticeResponse{State: model.StateNotAdmin})
		return
	}

	if err := d.Store.SetGroupNotice(ctx, req.ChatID, req.Content); err != nil {
		actor.Send(model.RespSendGroupNoticeResponse, model.SendGroupNoticeResponse{State: model.StateDatabaseError})
		return
	}

	members := d.groupMembers(ctx, req.ChatID)
	broadcastExcept(d.Presence, members, userID, model.PushGroupNotice, model.PullGroupNoticeResponse{State: model.StateSuccess, Content: req.Content})

	actor.Send(model.RespSendGroupNoticeResponse, model.SendGroupNoticeResponse{State: model.StateSuccess})
}

// handlePullGroupNotice implements §4.G PullGroupNotice.
func (d *Dispatcher) handlePullGroupNotice(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	if _, ok := requireLogin(actor); !ok {
		return
	}
	var req model.PullGroupNoticeData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespPullGroupNoticeResponse, model.PullGroupNoticeResponse{State: model.StateContentError})
		return
	}
	content, err := d.Store.GetGroupNotice(ctx, req.ChatID)
	if err != nil {
		actor.Send(model.RespPullGroupNoticeResponse, model.PullGroupNoticeResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespPullGroupNoticeResponse, model.PullGroupNoticeResponse{State: model.StateSuccess, Content: content})
}

// handlePull implements §4.G Pull, offloaded to the worker pool per §5.
func (d *Dispatcher) handlePull(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.PullData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespPullResponse, model.PullResponse{State: model.StateContentError})
		return
	}

	d.Pool.Submit(func() {
		d.runPull(ctx, actor, userID, req)
	})
}

func (d *Dispatcher) runPull(ctx context.Context, actor *session.Actor, userID uint32, req model.PullData) {
	cursors, err := d.Store.AllReadCursors(ctx, userID)
	if err != nil {
		actor.Send(model.RespPullResponse, model.PullResponse{State: model.StateDatabaseError})
		return
	}
	entries := make([]model.ReadCursorEntry, 0, len(cursors))
	for chatID, inChatID := range cursors {
		entries = append(entries, model.ReadCursorEntry{ChatID: chatID, InChatID: inChatID})
	}
	actor.Send(model.PushReadCursors, entries)

	chatIDs, err := d.Store.UserChatIDs(ctx, userID)
	if err != nil {
		actor.Send(model.RespPullResponse, model.PullResponse{State: model.StateDatabaseError})
		return
	}
	perChat, err := d.Store.LastNOfEachChat(ctx, chatIDs, d.Cfg.Protocol.MaxMessagesPerChatOnPull)
	if err != nil {
		actor.Send(model.RespPullResponse, model.PullResponse{State: model.StateDatabaseError})
		return
	}
	var messages []model.ChatMessage
	for _, chatID := range chatIDs {
		messages = append(messages, perChat[chatID]...)
	}
	actor.Send(model.PushMessages, messages)

	reqIDs, err := d.Store.ListForUser(ctx, userID, req.LastRequestID)
	if err != nil {
		actor.Send(model.RespPullResponse, model.PullResponse{State: model.StateDatabaseError})
		return
	}
	requests := make([]model.Request, 0, len(reqIDs))
	for _, rid := range reqIDs {
		r, err := d.Store.GetRequest(ctx, rid)
		if err == nil {
			requests = append(requests, *r)
		}
	}
	actor.Send(model.PushRequests, requests)

	if setting, err := d.Store.GetUserSetting(ctx, userID); err == nil && setting != nil {
		actor.Send(model.PushUserSetting, model.SetUserSettingData{Setting: json.RawMessage(setting)})
	}

	notices, err := d.Store.ReadNotices(ctx, userID, req.NoticeTimestamp)
	if err != nil {
		actor.Send(model.RespPullResponse, model.PullResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.PushNotices, notices)

	actor.Send(model.RespPullResponse, model.PullResponse{State: model.StateSuccess})
}
