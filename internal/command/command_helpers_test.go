package command

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Francis-Rockwell/dmail-server/internal/config"
	"github.com/Francis-Rockwell/dmail-server/internal/cryptoutil"
	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/notify"
	"github.com/Francis-Rockwell/dmail-server/internal/presence"
	"github.com/Francis-Rockwell/dmail-server/internal/session"
	"github.com/Francis-Rockwell/dmail-server/internal/storage"
	"github.com/Francis-Rockwell/dmail-server/internal/workerpool"
)

// testServer wires a real Dispatcher to an in-process miniredis store and
// the real session actor/websocket pipeline, so handler tests exercise
// the full frame-decode -> dispatch -> frame-encode path rather than
// calling handler methods directly.
type testServer struct {
	t   *testing.T
	cfg *config.Config
	reg *presence.Registry
	url string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := storage.NewFromClient(rdb)

	cfg := config.Default()
	cfg.User.PasswordCheck = regexp.MustCompile(cfg.User.PasswordCheckRaw)
	notifier := notify.New(notify.Config{Enable: false}, rdb)
	reg := presence.New()
	pool := workerpool.New(2, 16)
	t.Cleanup(pool.Shutdown)

	dispatcher := New(store, nil, notifier, reg, pool, cfg)

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		actor := session.NewActor(conn, dispatcher, reg, time.Minute)
		go actor.Run(context.Background())
	}))
	t.Cleanup(srv.Close)

	return &testServer{t: t, cfg: cfg, reg: reg, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

// testClient is one handshake-completed connection ready to exchange
// encrypted command/response envelopes.
type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	aesKey []byte
}

func (s *testServer) connect() *testClient {
	s.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { conn.Close() })

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(s.t, err)
	pubB64 := base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PublicKey(&priv.PublicKey))

	c := &testClient{t: s.t, conn: conn}
	c.send(model.CmdSetConnectionPubKey, pubB64)

	env := c.readPlain()
	require.Equal(s.t, model.RespSetConnectionSymKey, env.Command)
	var wrappedB64 string
	require.NoError(s.t, json.Unmarshal(env.Data, &wrappedB64))
	wrapped, err := base64.StdEncoding.DecodeString(wrappedB64)
	require.NoError(s.t, err)
	aesKey, err := rsa.DecryptPKCS1v15(rand.Reader, priv, wrapped)
	require.NoError(s.t, err)
	c.aesKey = aesKey
	return c
}

func (c *testClient) send(command string, data interface{}) {
	c.t.Helper()
	env, err := model.NewEnvelope(command, data)
	require.NoError(c.t, err)
	raw, err := json.Marshal(env)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, raw))
}

func (c *testClient) sendEncrypted(command string, data interface{}) {
	c.t.Helper()
	env, err := model.NewEnvelope(command, data)
	require.NoError(c.t, err)
	raw, err := json.Marshal(env)
	require.NoError(c.t, err)
	sealed, err := cryptoutil.Seal(c.aesKey, raw)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(sealed)))
}

func (c *testClient) readPlain() model.Envelope {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	var env model.Envelope
	require.NoError(c.t, json.Unmarshal(raw, &env))
	return env
}

// read decrypts and decodes the next frame under this client's session
// key, skipping over PushClose/ping-shaped frames is not needed since
// the transport frames one logical envelope per read.
func (c *testClient) read() model.Envelope {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	plaintext, err := cryptoutil.Open(c.aesKey, string(raw))
	require.NoError(c.t, err)
	var env model.Envelope
	require.NoError(c.t, json.Unmarshal(plaintext, &env))
	return env
}

// readUntil reads frames until it finds one tagged command, failing the
// test if none arrives before the deadline. Handlers often emit several
// pushes before (or instead of) the response a test cares about.
func (c *testClient) readUntil(command string) model.Envelope {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		env := c.read()
		if env.Command == command {
			return env
		}
	}
	c.t.Fatalf("did not see command %q within 10 frames", command)
	return model.Envelope{}
}

// registerAndLogin completes Register+Login for a fresh user and returns its id.
func (c *testClient) registerAndLogin(name, email, password string) uint32 {
	c.t.Helper()
	c.sendEncrypted(model.CmdRegister, model.RegisterData{UserName: name, Email: email, Password: password})
	reg := c.readUntil(model.RespRegisterResponse)
	var regResp model.RegisterResponse
	require.NoError(c.t, json.Unmarshal(reg.Data, &regResp))
	require.Equal(c.t, model.StateSuccess, regResp.State)

	c.sendEncrypted(model.CmdLogin, model.LoginData{Email: email, Password: password})
	login := c.readUntil(model.RespLoginResponse)
	var loginResp model.LoginResponse
	require.NoError(c.t, json.Unmarshal(login.Data, &loginResp))
	require.Equal(c.t, model.StateSuccess, loginResp.State)
	return loginResp.UserID
}
