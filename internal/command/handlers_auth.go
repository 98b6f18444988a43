package command

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/mail"
	"time"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/session"
	"github.com/Francis-Rockwell/dmail-server/internal/storage"
)

func validEmail(addr string) bool {
	_, err := mail.ParseAddress(addr)
	return err == nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// handleRegister implements §4.F.5.
func (d *Dispatcher) handleRegister(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	var req model.RegisterData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespRegisterResponse, model.RegisterResponse{State: model.StateContentError})
		return
	}

	if len(req.UserName) > d.Cfg.User.MaxUserNameLength {
		actor.Send(model.RespRegisterResponse, model.RegisterResponse{State: model.StateUserNameFormatError})
		return
	}
	if !validEmail(req.Email) {
		actor.Send(model.RespRegisterResponse, model.RegisterResponse{State: model.StateEmailInvalid})
		return
	}
	if !d.Cfg.User.PasswordCheck.MatchString(req.Password) {
		actor.Send(model.RespRegisterResponse, model.RegisterResponse{State: model.StatePasswordFormatError})
		return
	}

	ok, err := d.Notify.CheckAndConsume(ctx, req.Email, req.EmailCode)
	if err != nil {
		actor.Send(model.RespRegisterResponse, model.RegisterResponse{State: model.StateDatabaseError})
		return
	}
	if !ok {
		actor.Send(model.RespRegisterResponse, model.RegisterResponse{State: model.StateCodeMismatch})
		return
	}

	id, err := d.Store.Register(ctx, req.UserName, req.Password, req.Email)
	if err == storage.ErrEmailTaken {
		actor.Send(model.RespRegisterResponse, model.RegisterResponse{State: model.StateEmailTaken})
		return
	}
	if err != nil {
		actor.Send(model.RespRegisterResponse, model.RegisterResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespRegisterResponse, model.RegisterResponse{State: model.StateSuccess, UserID: id})
}

// handleLogin implements §4.F.6.
func (d *Dispatcher) handleLogin(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	var req model.LoginData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StateContentError})
		return
	}
	if !validEmail(req.Email) {
		actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StateEmailInvalid})
		return
	}
	if actor.State() == model.SessionLogged {
		actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StateUserLogged})
		return
	}

	var (
		u   *model.User
		err error
	)
	switch {
	case req.EmailCode != "":
		ok, cerr := d.Notify.CheckAndConsume(ctx, req.Email, req.EmailCode)
		if cerr != nil {
			actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StateDatabaseError})
			return
		}
		if !ok {
			actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StateCodeMismatch})
			return
		}
		u, err = d.Store.GetByEmail(ctx, req.Email)
	case req.Password != "":
		u, err = d.Store.LoginByPassword(ctx, req.Email, req.Password)
	default:
		ttl := time.Duration(d.Cfg.User.TokenExpireTime) * time.Second
		u, err = d.Store.LoginByToken(ctx, req.Email, req.Token, ttl)
	}

	switch err {
	case nil:
	case storage.ErrUserNotFound:
		actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StateUserNotFound})
		return
	case storage.ErrPasswordMismatch:
		actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StatePasswordMismatch})
		return
	case storage.ErrTokenMismatch:
		actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StateTokenMismatch})
		return
	case storage.ErrTokenExpired:
		actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StateTokenExpired})
		return
	default:
		actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StateDatabaseError})
		return
	}

	if d.Presence.IsOnline(u.UserID) {
		actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StateUserLogged})
		return
	}

	actor.CompleteLogin(u.UserID)
	actor.Send(model.RespLoginResponse, model.LoginResponse{State: model.StateSuccess, UserID: u.UserID, Token: u.Token})
}

// handleApplyForToken implements SPEC_FULL.md supplement #2.
func (d *Dispatcher) handleApplyForToken(ctx context.Context, actor *session.Actor) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	token, err := generateToken()
	if err != nil {
		actor.Send(model.RespApplyForTokenResponse, model.ApplyForTokenResponse{State: model.StateServerError})
		return
	}
	issuedAt := time.Now().Unix()
	if err := d.Store.ApplyToken(ctx, userID, token, issuedAt); err != nil {
		actor.Send(model.RespApplyForTokenResponse, model.ApplyForTokenResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespApplyForTokenResponse, model.ApplyForTokenResponse{State: model.StateSuccess, Token: token, IssuedAt: issuedAt})
}

// handleUpdateUserInfo implements SPEC_FULL.md supplement #1: a tagged
// union over username/password/avatar, exactly one populated.
func (d *Dispatcher) handleUpdateUserInfo(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.UpdateUserInfoData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespUpdateUserInfoResponse, model.UpdateUserInfoResponse{State: model.StateContentError})
		return
	}

	switch {
	case req.UserName != "":
		if len(req.UserName) > d.Cfg.User.MaxUserNameLength {
			actor.Send(model.RespUpdateUserInfoResponse, model.UpdateUserInfoResponse{State: model.StateUserNameFormatError})
			return
		}
		if err := d.Store.UpdateName(ctx, userID, req.UserName); err != nil {
			actor.Send(model.RespUpdateUserInfoResponse, model.UpdateUserInfoResponse{State: model.StateDatabaseError})
			return
		}

	case req.Password != "":
		if !d.Cfg.User.PasswordCheck.MatchString(req.Password) {
			actor.Send(model.RespUpdateUserInfoResponse, model.UpdateUserInfoResponse{State: model.StatePasswordFormatError})
			return
		}
		email, err := d.Store.GetEmail(ctx, userID)
		if err != nil {
			actor.Send(model.RespUpdateUserInfoResponse, model.UpdateUserInfoResponse{State: model.StateDatabaseError})
			return
		}
		ok, err := d.Notify.CheckAndConsume(ctx, email, req.EmailCode)
		if err != nil {
			actor.Send(model.RespUpdateUserInfoResponse, model.UpdateUserInfoResponse{State: model.StateDatabaseError})
			return
		}
		if !ok {
			actor.Send(model.RespUpdateUserInfoResponse, model.UpdateUserInfoResponse{State: model.StateCodeMismatch})
			return
		}
		if err := d.Store.UpdatePassword(ctx, userID, req.Password); err != nil {
			actor.Send(model.RespUpdateUserInfoResponse, model.UpdateUserInfoResponse{State: model.StateDatabaseError})
			return
		}

	case req.AvatarHash != "":
		if err := d.Store.UpdateAvatar(ctx, userID, req.AvatarHash); err != nil {
			actor.Send(model.RespUpdateUserInfoResponse, model.UpdateUserInfoResponse{State: model.StateDatabaseError})
			return
		}

	default:
		actor.Send(model.RespUpdateUserInfoResponse, model.UpdateUserInfoResponse{State: model.StateContentError})
		return
	}

	actor.Send(model.RespUpdateUserInfoResponse, model.UpdateUserInfoResponse{State: model.StateSuccess})
}

// handleLogOff implements §4.G LogOff.
func (d *Dispatcher) handleLogOff(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.LogOffData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespLogOffResponse, model.LogOffResponse{State: model.StateContentError})
		return
	}

	email, err := d.Store.GetEmail(ctx, userID)
	if err != nil {
		actor.Send(model.RespLogOffResponse, model.LogOffResponse{State: model.StateDatabaseError})
		return
	}
	ok2, err := d.Notify.CheckAndConsume(ctx, email, req.EmailCode)
	if err != nil {
		actor.Send(model.RespLogOffResponse, model.LogOffResponse{State: model.StateDatabaseError})
		return
	}
	if !ok2 {
		actor.Send(model.RespLogOffResponse, model.LogOffResponse{State: model.StateCodeMismatch})
		return
	}

	result, pairs, err := d.Store.LogOff(ctx, userID)
	if err != nil {
		actor.Send(model.RespLogOffResponse, model.LogOffResponse{State: model.StateDatabaseError})
		return
	}
	if result == storage.LogOffOwnsGroup {
		actor.Send(model.RespLogOffResponse, model.LogOffResponse{State: model.StateOwnsGroup})
		return
	}

	for _, pair := range pairs {
		unicast(d.Presence, pair.FriendID, model.PushDeleteChat, model.DeleteChatPush{ChatID: pair.ChatID})
	}

	actor.Send(model.RespLogOffResponse, model.LogOffResponse{State: model.StateSuccess})
	actor.Send(model.PushClose, struct{}{})
	actor.Terminate()
}

// handleGetUserID implements SPEC_FULL.md supplement #3.
func (d *Dispatcher) handleGetUserID(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	if _, ok := requireLogin(actor); !ok {
		return
	}
	var req model.GetUserIDData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespGetUserIDResponse, model.GetUserIDResponse{State: model.StateContentError})
		return
	}
	ids, err := d.Store.NameToIDs(ctx, req.Name)
	if err != nil {
		actor.Send(model.RespGetUserIDResponse, model.GetUserIDResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespGetUserIDResponse, model.GetUserIDResponse{State: model.StateSuccess, UserIDs: ids})
}

// handleGetUserInfo answers a lookup of another (or the caller's own)
// user row.
func (d *Dispatcher) handleGetUserInfo(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	if _, ok := requireLogin(actor); !ok {
		return
	}
	var req model.GetUserInfoData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespGetUserInfoResponse, model.GetUserInfoResponse{State: model.StateContentError})
		return
	}
	u, err := d.Store.GetByID(ctx, req.UserID)
	if err == storage.ErrUserNotFound {
		actor.Send(model.RespGetUserInfoResponse, model.GetUserInfoResponse{State: model.StateUserNotFound})
		return
	}
	if err != nil {
		actor.Send(model.RespGetUserInfoResponse, model.GetUserInfoResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespGetUserInfoResponse, model.GetUserInfoResponse{
		State:      model.StateSuccess,
		UserID:     u.UserID,
		UserName:   u.UserName,
		AvatarHash: u.AvatarHash,
	})
}
