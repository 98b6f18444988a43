package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Francis-Rockwell/dmail-server/internal/cryptoutil"
	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/presence"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, actor *Actor, command string, data json.RawMessage) {
	d.mu.Lock()
	d.calls = append(d.calls, command)
	d.mu.Unlock()
}

func (d *recordingDispatcher) seen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func startTestActor(t *testing.T, dispatcher Dispatcher) (*websocket.Conn, *recordingDispatcher) {
	t.Helper()
	reg := presence.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		actor := NewActor(conn, dispatcher, reg, time.Minute)
		go actor.Run(context.Background())
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	rd, _ := dispatcher.(*recordingDispatcher)
	return client, rd
}

func readEnvelope(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env model.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func readEncryptedEnvelope(t *testing.T, conn *websocket.Conn, aesKey []byte) model.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	plaintext, err := cryptoutil.Open(aesKey, string(raw))
	require.NoError(t, err)
	var env model.Envelope
	require.NoError(t, json.Unmarshal(plaintext, &env))
	return env
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, command string, data interface{}) {
	t.Helper()
	env, err := model.NewEnvelope(command, data)
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func sendEncryptedEnvelope(t *testing.T, conn *websocket.Conn, aesKey []byte, command string, data interface{}) {
	t.Helper()
	env, err := model.NewEnvelope(command, data)
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	sealed, err := cryptoutil.Seal(aesKey, raw)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(sealed)))
}

func TestStartedStateRejectsAnythingButSetConnectionPubKey(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	client, _ := startTestActor(t, dispatcher)

	sendEnvelope(t, client, model.CmdLogin, model.LoginData{Email: "a@b.com"})

	env := readEnvelope(t, client)
	require.Equal(t, model.RespSetConnectionPubKeyResp, env.Command)
	var resp model.SetConnectionPubKeyResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, model.HandshakeNeedSetPubKey, resp.State)
}

func TestHandshakeTransitionsToApprovedAndGatesNonLoginCommands(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	client, _ := startTestActor(t, dispatcher)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubDER := x509.MarshalPKCS1PublicKey(&priv.PublicKey)
	pubB64 := base64.StdEncoding.EncodeToString(pubDER)

	sendEnvelope(t, client, model.CmdSetConnectionPubKey, pubB64)

	env := readEnvelope(t, client)
	require.Equal(t, model.RespSetConnectionSymKey, env.Command)

	var wrappedB64 string
	require.NoError(t, json.Unmarshal(env.Data, &wrappedB64))
	wrapped, err := base64.StdEncoding.DecodeString(wrappedB64)
	require.NoError(t, err)
	aesKey, err := rsa.DecryptPKCS1v15(rand.Reader, priv, wrapped)
	require.NoError(t, err)
	require.Len(t, aesKey, cryptoutil.AESKeySize)

	sendEncryptedEnvelope(t, client, aesKey, model.CmdGetUserInfo, model.GetUserInfoData{})

	resp := readEncryptedEnvelope(t, client, aesKey)
	require.Equal(t, model.RespLoginResponse, resp.Command)
	var loginResp model.LoginResponse
	require.NoError(t, json.Unmarshal(resp.Data, &loginResp))
	require.Equal(t, model.LoginNeedLogin, loginResp.State)
	require.Empty(t, dispatcher.seen())
}

func TestApprovedStateDelegatesLoginToDispatcher(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	client, rd := startTestActor(t, dispatcher)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubB64 := base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PublicKey(&priv.PublicKey))
	sendEnvelope(t, client, model.CmdSetConnectionPubKey, pubB64)

	env := readEnvelope(t, client)
	var wrappedB64 string
	require.NoError(t, json.Unmarshal(env.Data, &wrappedB64))
	wrapped, _ := base64.StdEncoding.DecodeString(wrappedB64)
	aesKey, err := rsa.DecryptPKCS1v15(rand.Reader, priv, wrapped)
	require.NoError(t, err)

	sendEncryptedEnvelope(t, client, aesKey, model.CmdLogin, model.LoginData{Email: "a@b.com", Password: "x"})

	require.Eventually(t, func() bool {
		return len(rd.seen()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{model.CmdLogin}, rd.seen())
}
