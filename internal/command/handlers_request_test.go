package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

func TestMakeFriendApprovalCreatesChatAndMessagingWorks(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.connect()
	aliceID := alice.registerAndLogin("alice", "alice@example.com", "Password1!")
	bob := srv.connect()
	bobID := bob.registerAndLogin("bob", "bob@example.com", "Password1!")

	alice.sendEncrypted(model.CmdSendRequest, model.SendRequestData{
		Message: "let's be friends",
		Content: model.RequestContent{Kind: model.RequestMakeFriend, ReceiverID: bobID},
	})
	sendEnv := alice.readUntil(model.RespSendRequestResponse)
	var sendResp model.SendRequestResponse
	require.NoError(t, json.Unmarshal(sendEnv.Data, &sendResp))
	require.Equal(t, model.StateSuccess, sendResp.State)
	require.NotZero(t, sendResp.ReqID)

	pushEnv := bob.readUntil(model.PushRequest)
	var pushedReq model.Request
	require.NoError(t, json.Unmarshal(pushEnv.Data, &pushedReq))
	require.Equal(t, sendResp.ReqID, pushedReq.ReqID)
	require.Equal(t, aliceID, pushedReq.SenderID)

	bob.sendEncrypted(model.CmdSolveRequest, model.SolveRequestData{ReqID: pushedReq.ReqID, Answer: model.AnswerApproved})
	bobMsgEnv := bob.readUntil(model.PushMessage)
	var bobMsg model.ChatMessage
	require.NoError(t, json.Unmarshal(bobMsgEnv.Data, &bobMsg))
	require.Equal(t, model.AdminMsgBecameFriends, bobMsg.SerializedContent)
	chatID := bobMsg.ChatID
	require.NotZero(t, chatID)

	solveEnv := bob.readUntil(model.RespSolveRequestResponse)
	var solveResp model.SolveRequestResponse
	require.NoError(t, json.Unmarshal(solveEnv.Data, &solveResp))
	require.Equal(t, model.StateSuccess, solveResp.State)

	aliceUpdateEnv := alice.readUntil(model.PushRequestStateUpdate)
	var update model.RequestStateUpdatePush
	require.NoError(t, json.Unmarshal(aliceUpdateEnv.Data, &update))
	require.Equal(t, model.RequestApproved, update.State)

	alice.sendEncrypted(model.CmdSendMessage, model.SendMessageData{
		Type:              model.MessageText,
		ClientID:          1,
		ChatID:            chatID,
		SerializedContent: "hello bob",
	})
	sendMsgEnv := alice.readUntil(model.RespSendMessageResponse)
	var sendMsgResp model.SendMessageResponse
	require.NoError(t, json.Unmarshal(sendMsgEnv.Data, &sendMsgResp))
	require.Equal(t, model.StateSuccess, sendMsgResp.State)

	bobRecvEnv := bob.readUntil(model.PushMessage)
	var bobRecv model.ChatMessage
	require.NoError(t, json.Unmarshal(bobRecvEnv.Data, &bobRecv))
	require.Equal(t, "hello bob", bobRecv.SerializedContent)
	require.Equal(t, aliceID, bobRecv.SenderID)
}
