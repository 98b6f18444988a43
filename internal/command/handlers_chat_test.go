package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

func TestCreateGroupChatAnnouncesCreation(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.connect()
	owner.registerAndLogin("owner", "owner@example.com", "Password1!")

	owner.sendEncrypted(model.CmdCreateGroupChat, model.CreateGroupChatData{Name: "my group"})
	msgEnv := owner.readUntil(model.PushMessage)
	var msg model.ChatMessage
	require.NoError(t, json.Unmarshal(msgEnv.Data, &msg))
	require.Equal(t, model.AdminMsgGroupCreated, msg.SerializedContent)

	env := owner.readUntil(model.RespCreateGroupChatResponse)
	var resp model.CreateGroupChatResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, model.StateSuccess, resp.State)
	require.NotZero(t, resp.ChatID)
}

func TestQuitGroupChatRejectsOwner(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.connect()
	owner.registerAndLogin("owner2", "owner2@example.com", "Password1!")

	owner.sendEncrypted(model.CmdCreateGroupChat, model.CreateGroupChatData{Name: "solo group"})
	owner.readUntil(model.PushMessage)
	createEnv := owner.readUntil(model.RespCreateGroupChatResponse)
	var created model.CreateGroupChatResponse
	require.NoError(t, json.Unmarshal(createEnv.Data, &created))

	owner.sendEncrypted(model.CmdQuitGroupChat, model.QuitGroupChatData{ChatID: created.ChatID})
	quitEnv := owner.readUntil(model.RespQuitGroupChatResponse)
	var quitResp model.QuitGroupChatResponse
	require.NoError(t, json.Unmarshal(quitEnv.Data, &quitResp))
	require.Equal(t, model.StateNotOwner, quitResp.State)
}

// joinGroup drives a JoinGroup request from joiner through owner's
// approval, draining the admin-announcement/member-change pushes it
// produces, and returns once joiner is a confirmed member.
func joinGroup(t *testing.T, owner, joiner *testClient, chatID uint64) {
	t.Helper()
	joiner.sendEncrypted(model.CmdSendRequest, model.SendRequestData{
		Content: model.RequestContent{Kind: model.RequestJoinGroup, ChatID: chatID},
	})
	joiner.readUntil(model.RespSendRequestResponse)

	pushEnv := owner.readUntil(model.PushRequest)
	var pushedReq model.Request
	require.NoError(t, json.Unmarshal(pushEnv.Data, &pushedReq))

	owner.sendEncrypted(model.CmdSolveRequest, model.SolveRequestData{ReqID: pushedReq.ReqID, Answer: model.AnswerApproved})
	owner.readUntil(model.PushMessage)
	owner.readUntil(model.RespSolveRequestResponse)
	joiner.readUntil(model.PushRequestStateUpdate)
}

func TestGroupAdminLifecycle(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.connect()
	owner.registerAndLogin("groupowner", "groupowner@example.com", "Password1!")
	member := srv.connect()
	memberID := member.registerAndLogin("groupmember", "groupmember@example.com", "Password1!")

	owner.sendEncrypted(model.CmdCreateGroupChat, model.CreateGroupChatData{Name: "admins group"})
	owner.readUntil(model.PushMessage)
	createEnv := owner.readUntil(model.RespCreateGroupChatResponse)
	var created model.CreateGroupChatResponse
	require.NoError(t, json.Unmarshal(createEnv.Data, &created))
	chatID := created.ChatID

	joinGroup(t, owner, member, chatID)

	owner.sendEncrypted(model.CmdGetGroupUsers, model.GetGroupUsersData{ChatID: chatID})
	usersEnv := owner.readUntil(model.RespGetGroupUsersResponse)
	var usersResp model.GetGroupUsersResponse
	require.NoError(t, json.Unmarshal(usersEnv.Data, &usersResp))
	require.Equal(t, model.StateSuccess, usersResp.State)
	require.Len(t, usersResp.UserIDs, 2)
	require.Contains(t, usersResp.UserIDs, memberID)

	owner.sendEncrypted(model.CmdGetGroupOwner, model.GetGroupOwnerData{ChatID: chatID})
	ownerEnv := owner.readUntil(model.RespGetGroupOwnerResponse)
	var ownerResp model.GetGroupOwnerResponse
	require.NoError(t, json.Unmarshal(ownerEnv.Data, &ownerResp))
	require.Equal(t, model.StateSuccess, ownerResp.State)
	ownerID := ownerResp.UserID

	owner.sendEncrypted(model.CmdSetGroupAdmin, model.SetGroupAdminData{ChatID: chatID, UserID: memberID})
	setAdminEnv := owner.readUntil(model.RespSetGroupAdminResponse)
	var setAdminResp model.SetGroupAdminResponse
	require.NoError(t, json.Unmarshal(setAdminEnv.Data, &setAdminResp))
	require.Equal(t, model.StateSuccess, setAdminResp.State)

	owner.sendEncrypted(model.CmdGetGroupAdmin, model.GetGroupOwnerData{ChatID: chatID})
	adminsEnv := owner.readUntil(model.RespGetGroupAdminResponse)
	var adminsResp model.GetGroupAdminResponse
	require.NoError(t, json.Unmarshal(adminsEnv.Data, &adminsResp))
	require.Equal(t, model.StateSuccess, adminsResp.State)
	require.Contains(t, adminsResp.UserIDs, memberID)

	owner.sendEncrypted(model.CmdUpdateGroupInfo, model.UpdateGroupInfoData{ChatID: chatID, Name: "renamed group"})
	updateEnv := owner.readUntil(model.RespUpdateGroupInfoResponse)
	var updateResp model.UpdateGroupInfoResponse
	require.NoError(t, json.Unmarshal(updateEnv.Data, &updateResp))
	require.Equal(t, model.StateSuccess, updateResp.State)

	owner.sendEncrypted(model.CmdGroupOwnerTransfer, model.GroupOwnerTransferData{ChatID: chatID, UserID: memberID})
	transferEnv := owner.readUntil(model.RespGroupOwnerTransferResp)
	var transferResp model.SetGroupAdminResponse
	require.NoError(t, json.Unmarshal(transferEnv.Data, &transferResp))
	require.Equal(t, model.StateSuccess, transferResp.State)

	owner.sendEncrypted(model.CmdGetGroupOwner, model.GetGroupOwnerData{ChatID: chatID})
	newOwnerEnv := owner.readUntil(model.RespGetGroupOwnerResponse)
	var newOwnerResp model.GetGroupOwnerResponse
	require.NoError(t, json.Unmarshal(newOwnerEnv.Data, &newOwnerResp))
	require.Equal(t, memberID, newOwnerResp.UserID)
	require.NotEqual(t, ownerID, newOwnerResp.UserID)
}

func TestRemoveGroupMemberRejectsSelfRemoval(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.connect()
	ownerID := owner.registerAndLogin("soleowner", "soleowner@example.com", "Password1!")

	owner.sendEncrypted(model.CmdCreateGroupChat, model.CreateGroupChatData{Name: "self remove group"})
	owner.readUntil(model.PushMessage)
	createEnv := owner.readUntil(model.RespCreateGroupChatResponse)
	var created model.CreateGroupChatResponse
	require.NoError(t, json.Unmarshal(createEnv.Data, &created))

	owner.sendEncrypted(model.CmdRemoveGroupMember, model.RemoveGroupMemberData{ChatID: created.ChatID, UserID: ownerID})
	env := owner.readUntil(model.RespRemoveGroupMemberResp)
	var resp model.SetGroupAdminResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, model.StateSameUser, resp.State)
}

func TestUnfriendEndsFriendship(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.connect()
	alice.registerAndLogin("unfriendalice", "unfriendalice@example.com", "Password1!")
	bob := srv.connect()
	bobID := bob.registerAndLogin("unfriendbob", "unfriendbob@example.com", "Password1!")

	becomeFriends(t, alice, bob, bobID)

	alice.sendEncrypted(model.CmdUnfriend, model.UnfriendData{UserID: bobID})
	env := alice.readUntil(model.RespUnfriendResponse)
	var resp model.UnfriendResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, model.StateSuccess, resp.State)
}
