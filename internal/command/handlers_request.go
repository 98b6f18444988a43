package command

import (
	"context"
	"encoding/json"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/request"
	"github.com/Francis-Rockwell/dmail-server/internal/session"
	"github.com/Francis-Rockwell/dmail-server/internal/storage"
)

// requestPreconditionState maps a §4.H precondition error to its wire
// state. nil maps to Success, meaning the caller should proceed.
func requestPreconditionState(err error) string {
	switch err {
	case nil:
		return model.StateSuccess
	case request.ErrSameUser:
		return model.StateSameUser
	case request.ErrUserNotFound:
		return model.StateUserNotFound
	case request.ErrRequestExisted:
		return model.StateRequestExisted
	case request.ErrAlreadyBeFriends:
		return model.StateAlreadyBeFriends
	case request.ErrNotGroupChat, storage.ErrChatNotFound:
		return model.StateNotGroupChat
	case request.ErrAlreadyInGroup:
		return model.StateAlreadyInGroup
	case request.ErrNotInChat:
		return model.StateUserNotInChat
	case request.ErrNotFriend:
		return model.StateNotFriend
	default:
		return model.StateDatabaseError
	}
}

// checkRequestContent runs the §4.H precondition matrix for content,
// with userID as the request's sender.
func (d *Dispatcher) checkRequestContent(ctx context.Context, userID uint32, content model.RequestContent) error {
	switch content.Kind {
	case model.RequestMakeFriend:
		return request.CheckMakeFriend(ctx, d.Store, userID, content.ReceiverID)
	case model.RequestJoinGroup:
		return request.CheckJoinGroup(ctx, d.Store, userID, content.ChatID)
	case model.RequestGroupInvitation:
		return request.CheckGroupInvitation(ctx, d.Store, userID, content.ReceiverID, content.ChatID)
	case model.RequestInvitedJoinGroup:
		return request.CheckInvitedJoinGroup(ctx, d.Store, content.InviterID, userID, content.ChatID)
	default:
		return request.ErrNotGroupChat
	}
}

// handleSendRequest implements §4.G SendRequest.
func (d *Dispatcher) handleSendRequest(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.SendRequestData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespSendRequestResponse, model.SendRequestResponse{State: model.StateContentError, ClientID: req.ClientID})
		return
	}

	if err := d.checkRequestContent(ctx, userID, req.Content); err != nil {
		actor.Send(model.RespSendRequestResponse, model.SendRequestResponse{State: requestPreconditionState(err), ClientID: req.ClientID})
		return
	}

	handlers, err := request.Handlers(ctx, d.Store, req.Content)
	if err != nil {
		actor.Send(model.RespSendRequestResponse, model.SendRequestResponse{State: model.StateDatabaseError, ClientID: req.ClientID})
		return
	}

	stored, err := d.Store.WriteRequest(ctx, userID, req.Message, req.Content, handlers)
	if err != nil {
		actor.Send(model.RespSendRequestResponse, model.SendRequestResponse{State: model.StateDatabaseError, ClientID: req.ClientID})
		return
	}
	if err := request.OnSend(ctx, d.Store, stored); err != nil {
		actor.Send(model.RespSendRequestResponse, model.SendRequestResponse{State: model.StateDatabaseError, ClientID: req.ClientID})
		return
	}

	broadcast(d.Presence, handlers, model.PushRequest, stored)

	actor.Send(model.RespSendRequestResponse, model.SendRequestResponse{State: model.StateSuccess, ReqID: stored.ReqID, ClientID: req.ClientID})
}

// handleSolveRequest implements §4.G SolveRequest and the onApprove/
// onRefuse follow-on messaging from §4.H.
func (d *Dispatcher) handleSolveRequest(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.SolveRequestData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespSolveRequestResponse, model.SolveRequestResponse{State: model.StateContentError})
		return
	}

	stored, err := d.Store.GetRequest(ctx, req.ReqID)
	if err == storage.ErrRequestNotFound {
		actor.Send(model.RespSolveRequestResponse, model.SolveRequestResponse{State: model.StateRequestNotFound})
		return
	}
	if err != nil {
		actor.Send(model.RespSolveRequestResponse, model.SolveRequestResponse{State: model.StateDatabaseError})
		return
	}
	if stored.State != model.RequestUnsolved {
		actor.Send(model.RespSolveRequestResponse, model.SolveRequestResponse{State: model.StateAlreadySolved})
		return
	}

	handlers, err := request.Handlers(ctx, d.Store, stored.Content)
	if err != nil {
		actor.Send(model.RespSolveRequestResponse, model.SolveRequestResponse{State: model.StateDatabaseError})
		return
	}
	if !contains(handlers, userID) {
		actor.Send(model.RespSolveRequestResponse, model.SolveRequestResponse{State: model.StateNotHandler})
		return
	}

	newState := model.RequestRefused
	if req.Answer == model.AnswerApproved {
		newState = model.RequestApproved
	}
	if err := d.Store.SetState(ctx, req.ReqID, newState); err != nil {
		if err == storage.ErrAlreadySolved {
			actor.Send(model.RespSolveRequestResponse, model.SolveRequestResponse{State: model.StateAlreadySolved})
			return
		}
		actor.Send(model.RespSolveRequestResponse, model.SolveRequestResponse{State: model.StateDatabaseError})
		return
	}
	stored.State = newState

	senderLive, err := d.Store.Exists(ctx, stored.SenderID)
	if err != nil {
		senderLive = true
	}

	var approveResult *request.ApproveResult
	if newState == model.RequestApproved {
		approveResult, err = request.OnApprove(ctx, d.Store, stored)
		if err != nil {
			actor.Send(model.RespSolveRequestResponse, model.SolveRequestResponse{State: model.StateDatabaseError})
			return
		}
		d.afterApprove(ctx, stored, approveResult)
	} else {
		_ = request.OnRefuse(ctx, d.Store, stored)
	}

	update := model.RequestStateUpdatePush{ReqID: stored.ReqID, State: stored.State}
	if senderLive {
		unicast(d.Presence, stored.SenderID, model.PushRequestStateUpdate, update)
	} else {
		unicast(d.Presence, userID, model.PushRequestMessage, model.RequestMessagePush{Kind: model.RequestMessageUserLogOff, ReqID: stored.ReqID})
	}
	broadcast(d.Presence, handlers, model.PushRequestStateUpdate, update)

	if approveResult != nil && approveResult.AlreadyInChat {
		unicast(d.Presence, userID, model.PushRequestMessage, model.RequestMessagePush{Kind: model.RequestMessageUserAlreadyInChat, ReqID: stored.ReqID})
	}

	actor.Send(model.RespSolveRequestResponse, model.SolveRequestResponse{State: model.StateSuccess})
}

// afterApprove performs the chat-mutation follow-on messaging specific
// to each request kind, once request.OnApprove has run.
func (d *Dispatcher) afterApprove(ctx context.Context, req *model.Request, result *request.ApproveResult) {
	switch req.Content.Kind {
	case model.RequestMakeFriend:
		if result.NewChatID == 0 {
			return
		}
		d.Store.WriteMessage(ctx, model.MessageText, model.AdminMsgBecameFriends, result.NewChatID, model.SystemUserID)
		msg, err := d.Store.GetMessage(ctx, result.NewChatID, 1)
		if err == nil {
			d.fanoutMessage(ctx, result.NewChatID, model.SystemUserID, msg)
		}

	case model.RequestJoinGroup:
		if !result.Added {
			return
		}
		name := d.userName(ctx, req.SenderID)
		d.announceToGroup(ctx, req.Content.ChatID, model.AdminMsgJoinedGroup(name))
		broadcastExcept(d.Presence, d.groupMembers(ctx, req.Content.ChatID), req.SenderID, model.PushGroupMemberChange,
			model.GroupMemberChangePush{Type: model.GroupMemberAdded, ChatID: req.Content.ChatID, UserID: req.SenderID})

	case model.RequestGroupInvitation:
		if result.ChainedRequest != nil {
			chainedHandlers, err := request.Handlers(ctx, d.Store, result.ChainedRequest.Content)
			if err == nil {
				broadcast(d.Presence, chainedHandlers, model.PushRequest, result.ChainedRequest)
			}
			return
		}
		if !result.Added {
			return
		}
		inviterName := d.userName(ctx, req.SenderID)
		inviteeName := d.userName(ctx, req.Content.ReceiverID)
		d.announceToGroup(ctx, req.Content.ChatID, model.AdminMsgInvitedJoinedGroup(inviterName, inviteeName))
		broadcastExcept(d.Presence, d.groupMembers(ctx, req.Content.ChatID), req.Content.ReceiverID, model.PushGroupMemberChange,
			model.GroupMemberChangePush{Type: model.GroupMemberAdded, ChatID: req.Content.ChatID, UserID: req.Content.ReceiverID})

	case model.RequestInvitedJoinGroup:
		if !result.Added {
			return
		}
		inviterName := d.userName(ctx, req.Content.InviterID)
		inviteeName := d.userName(ctx, req.SenderID)
		d.announceToGroup(ctx, req.Content.ChatID, model.AdminMsgInvitedJoinedGroup(inviterName, inviteeName))
		broadcastExcept(d.Presence, d.groupMembers(ctx, req.Content.ChatID), req.SenderID, model.PushGroupMemberChange,
			model.GroupMemberChangePush{Type: model.GroupMemberAdded, ChatID: req.Content.ChatID, UserID: req.SenderID})
	}
}

func (d *Dispatcher) groupMembers(ctx context.Context, chatID uint64) []uint32 {
	members, err := d.Store.Members(ctx, chatID)
	if err != nil {
		return nil
	}
	return members
}

func contains(xs []uint32, v uint32) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
