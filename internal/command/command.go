// Package command implements every wire command (§4.G): one handler
// function per command string, wired to storage, the object store, the
// notification facade, presence fan-out, and the shared worker pool.
//
// Command is the concrete session.Dispatcher: it owns the command-string
// switch so internal/session never needs to know the handler set.
package command

import (
	"context"
	"encoding/json"
	"log"

	"github.com/Francis-Rockwell/dmail-server/internal/config"
	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/notify"
	"github.com/Francis-Rockwell/dmail-server/internal/objectstore"
	"github.com/Francis-Rockwell/dmail-server/internal/presence"
	"github.com/Francis-Rockwell/dmail-server/internal/session"
	"github.com/Francis-Rockwell/dmail-server/internal/storage"
	"github.com/Francis-Rockwell/dmail-server/internal/workerpool"
)

// Dispatcher implements session.Dispatcher, routing every command string
// in §6's client→server tag list to its handler.
type Dispatcher struct {
	Store    *storage.Store
	Objects  *objectstore.Service
	Notify   *notify.Service
	Presence *presence.Registry
	Pool     *workerpool.Pool
	Cfg      *config.Config
}

// New builds a Dispatcher from its collaborators.
func New(store *storage.Store, objects *objectstore.Service, notifier *notify.Service, reg *presence.Registry, pool *workerpool.Pool, cfg *config.Config) *Dispatcher {
	return &Dispatcher{Store: store, Objects: objects, Notify: notifier, Presence: reg, Pool: pool, Cfg: cfg}
}

var _ session.Dispatcher = (*Dispatcher)(nil)

// Dispatch decodes data into the shape a handler expects and invokes it.
// Handlers never return a Go error across this boundary: a handler
// answers with one actor.Send call carrying a closed response variant,
// sent after any pushes it fans out, per §7's propagation policy. The
// media-signaling commands forward without answering, Pull sends its
// pushes before its response, unknown commands are only logged, and a
// handler reached without a login sends nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, actor *session.Actor, command string, data json.RawMessage) {
	switch command {
	case model.CmdPing:
		actor.Send(model.CmdPong, struct{}{})
	case model.CmdRegister:
		d.handleRegister(ctx, actor, data)
	case model.CmdLogin:
		d.handleLogin(ctx, actor, data)
	case model.CmdApplyForToken:
		d.handleApplyForToken(ctx, actor)
	case model.CmdUpdateUserInfo:
		d.handleUpdateUserInfo(ctx, actor, data)
	case model.CmdLogOff:
		d.handleLogOff(ctx, actor, data)
	case model.CmdGetUserID:
		d.handleGetUserID(ctx, actor, data)
	case model.CmdGetUserInfo:
		d.handleGetUserInfo(ctx, actor, data)

	case model.CmdSendMessage:
		d.handleSendMessage(ctx, actor, data)
	case model.CmdGetMessages:
		d.handleGetMessages(ctx, actor, data)
	case model.CmdRevokeMessage:
		d.handleRevokeMessage(ctx, actor, data)
	case model.CmdSetAlreadyRead:
		d.handleSetAlreadyRead(ctx, actor, data)
	case model.CmdGetUserReadInGroup:
		d.handleGetUserReadInGroup(ctx, actor, data)
	case model.CmdGetUserReadInPrivate:
		d.handleGetUserReadInPrivate(ctx, actor, data)

	case model.CmdSendRequest:
		d.handleSendRequest(ctx, actor, data)
	case model.CmdSolveRequest:
		d.handleSolveRequest(ctx, actor, data)

	case model.CmdCreateGroupChat:
		d.handleCreateGroupChat(ctx, actor, data)
	case model.CmdQuitGroupChat:
		d.handleQuitGroupChat(ctx, actor, data)
	case model.CmdRemoveGroupMember:
		d.handleRemoveGroupMember(ctx, actor, data)
	case model.CmdSetGroupAdmin:
		d.handleSetGroupAdmin(ctx, actor, data, true)
	case model.CmdUnsetGroupAdmin:
		d.handleSetGroupAdmin(ctx, actor, data, false)
	case model.CmdGroupOwnerTransfer:
		d.handleGroupOwnerTransfer(ctx, actor, data)
	case model.CmdUpdateGroupInfo:
		d.handleUpdateGroupInfo(ctx, actor, data)
	case model.CmdGetChatInfo:
		d.handleGetChatInfo(ctx, actor, data)
	case model.CmdGetGroupUsers:
		d.handleGetGroupUsers(ctx, actor, data)
	case model.CmdGetGroupOwner:
		d.handleGetGroupOwner(ctx, actor, data)
	case model.CmdGetGroupAdmin:
		d.handleGetGroupAdmin(ctx, actor, data)
	case model.CmdUnfriend:
		d.handleUnfriend(ctx, actor, data)

	case model.CmdSendGroupNotice:
		d.handleSendGroupNotice(ctx, actor, data)
	case model.CmdPullGroupNotice:
		d.handlePullGroupNotice(ctx, actor, data)
	case model.CmdPull:
		d.handlePull(ctx, actor, data)

	case model.CmdUploadFileRequest:
		d.handleUploadFileRequest(ctx, actor, data)
	case model.CmdFileUploaded:
		d.handleFileUploaded(ctx, actor, data)
	case model.CmdGetFileUrl:
		d.handleGetFileUrl(ctx, actor, data)

	case model.CmdMediaCall:
		d.handleMediaCall(ctx, actor, data)
	case model.CmdMediaCallAnswer:
		d.handleMediaForward(ctx, actor, data, model.PushMediaCallAnswer)
	case model.CmdMediaIceCandidate:
		d.handleMediaForward(ctx, actor, data, model.PushMediaIceCandidate)
	case model.CmdMediaCallStop:
		d.handleMediaForward(ctx, actor, data, model.PushMediaCallStop)

	case model.CmdSetUserSetting:
		d.handleSetUserSetting(ctx, actor, data)

	default:
		log.Printf("[Command] unknown command %q from actor", command)
	}
}

// requireLogin resolves the calling actor's user id, or reports false
// without sending a response if the actor somehow reached a handler
// without being logged in (the session actor already gates this, so
// this is a defensive last line, not the primary enforcement).
func requireLogin(actor *session.Actor) (uint32, bool) {
	return actor.UserID()
}

// broadcast marshals one envelope and fans it out to ids, encrypting
// once per recipient under their own session key via presence.Registry.
func broadcast(reg *presence.Registry, ids []uint32, command string, data interface{}) {
	env, err := model.NewEnvelope(command, data)
	if err != nil {
		log.Printf("[Command] marshal broadcast %s: %v", command, err)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Command] marshal broadcast %s: %v", command, err)
		return
	}
	reg.SendMany(ids, raw)
}

func broadcastExcept(reg *presence.Registry, ids []uint32, exclude uint32, command string, data interface{}) {
	env, err := model.NewEnvelope(command, data)
	if err != nil {
		log.Printf("[Command] marshal broadcast %s: %v", command, err)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Command] marshal broadcast %s: %v", command, err)
		return
	}
	reg.SendManyExcept(ids, raw, exclude)
}

func unicast(reg *presence.Registry, id uint32, command string, data interface{}) {
	broadcast(reg, []uint32{id}, command, data)
}

// userName fetches a user's display name for an admin-message template,
// falling back to an empty name on storage failure rather than dropping
// the whole fan-out.
func (d *Dispatcher) userName(ctx context.Context, id uint32) string {
	u, err := d.Store.GetByID(ctx, id)
	if err != nil {
		return ""
	}
	return u.UserName
}

// announceToGroup writes an admin system message (senderId 0) into
// chatID and fans it out to every member, mirroring the group-chat
// admin-message helper the original implementation calls on every
// membership change.
func (d *Dispatcher) announceToGroup(ctx context.Context, chatID uint64, text string) {
	msg, err := d.Store.WriteMessage(ctx, model.MessageText, text, chatID, model.SystemUserID)
	if err != nil {
		log.Printf("[Command] write admin message to chat %d: %v", chatID, err)
		return
	}
	members, err := d.Store.Members(ctx, chatID)
	if err != nil {
		log.Printf("[Command] load members of chat %d for admin message: %v", chatID, err)
		return
	}
	broadcast(d.Presence, members, model.PushMessage, msg)
}
