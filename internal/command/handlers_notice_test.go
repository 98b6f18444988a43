package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

func TestSendGroupNoticeByAdminIsPulledBack(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.connect()
	owner.registerAndLogin("owner3", "owner3@example.com", "Password1!")

	owner.sendEncrypted(model.CmdCreateGroupChat, model.CreateGroupChatData{Name: "notice group"})
	owner.readUntil(model.PushMessage)
	createEnv := owner.readUntil(model.RespCreateGroupChatResponse)
	var created model.CreateGroupChatResponse
	require.NoError(t, json.Unmarshal(createEnv.Data, &created))

	owner.sendEncrypted(model.CmdSendGroupNotice, model.SendGroupNoticeData{ChatID: created.ChatID, Content: "welcome"})
	env := owner.readUntil(model.RespSendGroupNoticeResponse)
	var resp model.SendGroupNoticeResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, model.StateSuccess, resp.State)

	owner.sendEncrypted(model.CmdPullGroupNotice, model.PullGroupNoticeData{ChatID: created.ChatID})
	pullEnv := owner.readUntil(model.RespPullGroupNoticeResponse)
	var pullResp model.PullGroupNoticeResponse
	require.NoError(t, json.Unmarshal(pullEnv.Data, &pullResp))
	require.Equal(t, model.StateSuccess, pullResp.State)
	require.Equal(t, "welcome", pullResp.Content)
}

func TestSetUserSettingRoundTripsThroughPull(t *testing.T) {
	srv := newTestServer(t)
	c := srv.connect()
	c.registerAndLogin("settingsuser", "settingsuser@example.com", "Password1!")

	c.sendEncrypted(model.CmdSetUserSetting, model.SetUserSettingData{Setting: json.RawMessage(`{"theme":"dark"}`)})
	env := c.readUntil(model.RespSetUserSettingResponse)
	var resp model.SetUserSettingResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, model.StateSuccess, resp.State)

	c.sendEncrypted(model.CmdPull, model.PullData{})
	settingEnv := c.readUntil(model.PushUserSetting)
	var settingPush model.SetUserSettingData
	require.NoError(t, json.Unmarshal(settingEnv.Data, &settingPush))
	require.JSONEq(t, `{"theme":"dark"}`, string(settingPush.Setting))
}
