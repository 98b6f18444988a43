package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

// becomeFriends drives a full MakeFriend request/approve cycle and drains
// the admin-message/state-update pushes it produces on both ends, so
// other tests can start from an already-friended pair. Returns the
// private chat id created by the approval.
func becomeFriends(t *testing.T, a, b *testClient, bID uint32) uint64 {
	t.Helper()
	a.sendEncrypted(model.CmdSendRequest, model.SendRequestData{
		Content: model.RequestContent{Kind: model.RequestMakeFriend, ReceiverID: bID},
	})
	a.readUntil(model.RespSendRequestResponse)

	pushEnv := b.readUntil(model.PushRequest)
	var pushedReq model.Request
	require.NoError(t, json.Unmarshal(pushEnv.Data, &pushedReq))

	b.sendEncrypted(model.CmdSolveRequest, model.SolveRequestData{ReqID: pushedReq.ReqID, Answer: model.AnswerApproved})
	msgEnv := b.readUntil(model.PushMessage)
	b.readUntil(model.RespSolveRequestResponse)
	a.readUntil(model.PushRequestStateUpdate)

	var msg model.ChatMessage
	require.NoError(t, json.Unmarshal(msgEnv.Data, &msg))
	return msg.ChatID
}

func TestMediaCallForwardsOfferToFriend(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.connect()
	alice.registerAndLogin("mediaalice", "mediaalice@example.com", "Password1!")
	bob := srv.connect()
	bobID := bob.registerAndLogin("mediabob", "mediabob@example.com", "Password1!")

	becomeFriends(t, alice, bob, bobID)

	alice.sendEncrypted(model.CmdMediaCall, model.MediaSignalData{FriendID: bobID, Payload: json.RawMessage(`{"sdp":"offer"}`)})
	offerEnv := bob.readUntil(model.PushMediaCallOffer)
	var offer model.MediaSignalData
	require.NoError(t, json.Unmarshal(offerEnv.Data, &offer))
	require.JSONEq(t, `{"sdp":"offer"}`, string(offer.Payload))
}

func TestMediaCallSilentlyDroppedForNonFriend(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.connect()
	alice.registerAndLogin("mediaalice2", "mediaalice2@example.com", "Password1!")
	bob := srv.connect()
	bobID := bob.registerAndLogin("mediabob2", "mediabob2@example.com", "Password1!")

	alice.sendEncrypted(model.CmdMediaCall, model.MediaSignalData{FriendID: bobID, Payload: json.RawMessage(`{"sdp":"offer"}`)})

	alice.sendEncrypted(model.CmdGetUserInfo, model.GetUserInfoData{UserID: bobID})
	env := alice.readUntil(model.RespGetUserInfoResponse)
	var resp model.GetUserInfoResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, model.StateSuccess, resp.State)
}

func TestMediaAnswerAndStopForwardToTarget(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.connect()
	aliceID := alice.registerAndLogin("mediaalice3", "mediaalice3@example.com", "Password1!")
	bob := srv.connect()
	bobID := bob.registerAndLogin("mediabob3", "mediabob3@example.com", "Password1!")

	becomeFriends(t, alice, bob, bobID)

	alice.sendEncrypted(model.CmdMediaCall, model.MediaSignalData{FriendID: bobID, Payload: json.RawMessage(`{"sdp":"offer"}`)})
	bob.readUntil(model.PushMediaCallOffer)

	bob.sendEncrypted(model.CmdMediaCallAnswer, model.MediaSignalData{TargetID: aliceID, Payload: json.RawMessage(`{"sdp":"answer"}`)})
	answerEnv := alice.readUntil(model.PushMediaCallAnswer)
	var answer model.MediaSignalData
	require.NoError(t, json.Unmarshal(answerEnv.Data, &answer))
	require.Equal(t, bobID, answer.SenderID)

	alice.sendEncrypted(model.CmdMediaIceCandidate, model.MediaSignalData{TargetID: bobID, Payload: json.RawMessage(`{"candidate":"x"}`)})
	iceEnv := bob.readUntil(model.PushMediaIceCandidate)
	var ice model.MediaSignalData
	require.NoError(t, json.Unmarshal(iceEnv.Data, &ice))
	require.Equal(t, aliceID, ice.SenderID)

	alice.sendEncrypted(model.CmdMediaCallStop, model.MediaSignalData{TargetID: bobID})
	stopEnv := bob.readUntil(model.PushMediaCallStop)
	var stop model.MediaSignalData
	require.NoError(t, json.Unmarshal(stopEnv.Data, &stop))
	require.Equal(t, aliceID, stop.SenderID)
}
