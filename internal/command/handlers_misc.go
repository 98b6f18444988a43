package command

import (
	"context"
	"encoding/json"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/session"
)

// handleSetUserSetting implements §4.G SetUserSetting: the server stores
// the opaque blob verbatim and echoes it back on a future Pull, it
// never interprets the contents.
func (d *Dispatcher) handleSetUserSetting(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.SetUserSettingData
	if err := json.Unmarshal(raw, &req); err != nil {
		actor.Send(model.RespSetUserSettingResponse, model.SetUserSettingResponse{State: model.StateContentError})
		return
	}
	if err := d.Store.SetUserSetting(ctx, userID, []byte(req.Setting)); err != nil {
		actor.Send(model.RespSetUserSettingResponse, model.SetUserSettingResponse{State: model.StateDatabaseError})
		return
	}
	actor.Send(model.RespSetUserSettingResponse, model.SetUserSettingResponse{State: model.StateSuccess})
}
