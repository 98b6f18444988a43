package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

func TestRegisterThenLoginSucceeds(t *testing.T) {
	srv := newTestServer(t)
	c := srv.connect()

	id := c.registerAndLogin("alice", "alice@example.com", "Password1!")
	require.NotZero(t, id)
}

func TestRegisterRejectsBadPasswordFormat(t *testing.T) {
	srv := newTestServer(t)
	c := srv.connect()

	c.sendEncrypted(model.CmdRegister, model.RegisterData{UserName: "bob", Email: "bob@example.com", Password: "short"})
	env := c.readUntil(model.RespRegisterResponse)
	var resp model.RegisterResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, model.StatePasswordFormatError, resp.State)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	srv := newTestServer(t)
	c := srv.connect()
	c.registerAndLogin("carl", "carl@example.com", "Password1!")

	c2 := srv.connect()
	c2.sendEncrypted(model.CmdLogin, model.LoginData{Email: "carl@example.com", Password: "WrongPass1!"})
	env := c2.readUntil(model.RespLoginResponse)
	var resp model.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, model.StatePasswordMismatch, resp.State)
}

func TestGetUserInfoReturnsRegisteredName(t *testing.T) {
	srv := newTestServer(t)
	c := srv.connect()
	id := c.registerAndLogin("dana", "dana@example.com", "Password1!")

	c.sendEncrypted(model.CmdGetUserInfo, model.GetUserInfoData{UserID: id})
	env := c.readUntil(model.RespGetUserInfoResponse)
	var resp model.GetUserInfoResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, model.StateSuccess, resp.State)
	require.Equal(t, "dana", resp.UserName)
}
