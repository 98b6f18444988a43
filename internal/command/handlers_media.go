package command

import (
	"context"
	"encoding/json"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/session"
)

// handleMediaCall implements §4.G MediaCall: the server is stateless for
// media, it only verifies caller and callee share a private chat (i.e.
// are friends) and forwards the offer with the sender substituted.
func (d *Dispatcher) handleMediaCall(ctx context.Context, actor *session.Actor, raw json.RawMessage) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.MediaSignalData
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	chatID, err := d.Store.FriendPairToChatID(ctx, userID, req.FriendID)
	if err != nil || chatID == 0 {
		return
	}
	unicast(d.Presence, req.FriendID, model.PushMediaCallOffer, model.MediaSignalData{
		SenderID: userID,
		Payload:  req.Payload,
	})
}

// handleMediaForward implements the shared forwarding body of
// MediaCallAnswer/MediaIceCandidate/MediaCallStop: each is an
// unconditional, unverified forward to TargetID with SenderID
// substituted, since the call was already authorized at MediaCall time.
func (d *Dispatcher) handleMediaForward(ctx context.Context, actor *session.Actor, raw json.RawMessage, pushTag string) {
	userID, ok := requireLogin(actor)
	if !ok {
		return
	}
	var req model.MediaSignalData
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	unicast(d.Presence, req.TargetID, pushTag, model.MediaSignalData{
		SenderID: userID,
		Payload:  req.Payload,
	})
}
