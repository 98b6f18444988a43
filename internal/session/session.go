// Package session implements the per-connection actor: transport
// framing over a websocket, the heartbeat, the three-state handshake
// state machine, and dispatch into command handlers once a connection
// is trusted.
package session

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Francis-Rockwell/dmail-server/internal/cryptoutil"
	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/presence"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 128 * 1024
	sendQueueDepth = 32
)

// Dispatcher routes a decoded, state-gated command to its handler.
// Implemented by the command package; owned here to keep session and
// command from importing each other.
type Dispatcher interface {
	Dispatch(ctx context.Context, actor *Actor, command string, data json.RawMessage)
}

// Actor is one logical connection: its websocket, its place in the
// handshake/login state machine, and its outbound mailbox.
type Actor struct {
	conn       *websocket.Conn
	dispatcher Dispatcher
	presence   *presence.Registry

	pongWait   time.Duration
	pingPeriod time.Duration

	send chan []byte

	mu     sync.Mutex
	state  model.SessionState
	userID uint32
	pubKey *rsa.PublicKey
	aesKey []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewActor wraps conn as a fresh, unauthenticated session actor.
// heartbeat is the interval after which a silent connection is
// terminated (internal/config's User.HeartBeatTime).
func NewActor(conn *websocket.Conn, dispatcher Dispatcher, reg *presence.Registry, heartbeat time.Duration) *Actor {
	return &Actor{
		conn:       conn,
		dispatcher: dispatcher,
		presence:   reg,
		pongWait:   heartbeat,
		pingPeriod: (heartbeat * 9) / 10,
		send:       make(chan []byte, sendQueueDepth),
		state:      model.SessionStarted,
		done:       make(chan struct{}),
	}
}

// State returns the actor's current position in the handshake/login
// state machine.
func (a *Actor) State() model.SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// UserID returns the logged-in user id and true, or (0, false) before
// login completes.
func (a *Actor) UserID() (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != model.SessionLogged {
		return 0, false
	}
	return a.userID, true
}

// CompleteLogin transitions the actor into SessionLogged, binds it to
// userID, and registers it in the presence registry. Called by the
// Login command handler on success.
func (a *Actor) CompleteLogin(userID uint32) {
	a.mu.Lock()
	a.state = model.SessionLogged
	a.userID = userID
	a.mu.Unlock()
	a.presence.Register(userID, a)
}

// Send marshals command/data into an envelope, encrypts it under the
// actor's own key (if the handshake has completed), and queues it for
// delivery. Encoding happens here rather than in the write pump so a
// response sent in the same call that flips the state (notably
// SetConnectionSymKey, sent while still Started) is encoded against
// the state it was actually sent under, not whatever the state has
// become by the time the write pump gets to it.
func (a *Actor) Send(command string, data interface{}) error {
	env, err := model.NewEnvelope(command, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = a.push(raw)
	return err
}

// Push implements presence.Endpoint: it accepts an already-marshaled,
// plaintext envelope produced by another session and encrypts it under
// this actor's own symmetric key before queueing, so a single shared
// event fans out correctly across sessions negotiated with different
// keys.
func (a *Actor) Push(event []byte) bool {
	delivered, err := a.push(event)
	if err != nil {
		log.Printf("session: encode pushed frame: %v", err)
		return false
	}
	return delivered
}

func (a *Actor) push(plaintext []byte) (bool, error) {
	frame, err := a.encodeFrame(plaintext)
	if err != nil {
		return false, err
	}
	select {
	case a.send <- frame:
		return true, nil
	default:
		return false, nil
	}
}

// Terminate closes the connection and stops both pumps. Safe to call
// more than once and from any goroutine.
func (a *Actor) Terminate() {
	a.closeOnce.Do(func() {
		close(a.done)
		a.conn.Close()
	})
}

// Run starts the read and write pumps and blocks until the connection
// closes. On return, the actor has deregistered from presence if it
// had logged in.
func (a *Actor) Run(ctx context.Context) {
	go a.writePump()
	a.readPump(ctx)

	a.mu.Lock()
	loggedIn := a.state == model.SessionLogged
	userID := a.userID
	a.mu.Unlock()
	if loggedIn {
		a.presence.Deregister(userID)
	}
}

func (a *Actor) readPump(ctx context.Context) {
	defer a.Terminate()

	a.conn.SetReadLimit(maxMessageSize)
	a.conn.SetReadDeadline(time.Now().Add(a.pongWait))
	a.conn.SetPongHandler(func(string) error {
		a.conn.SetReadDeadline(time.Now().Add(a.pongWait))
		return nil
	})

	for {
		msgType, raw, err := a.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("session: unexpected close: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			return
		}

		env, err := a.decodeFrame(raw)
		if err != nil {
			log.Printf("session: malformed frame: %v", err)
			return
		}

		if env.Command == model.CmdClose {
			return
		}
		a.handleEnvelope(ctx, env)
	}
}

// decodeFrame turns a raw frame into an Envelope, decrypting it first
// if the handshake has already produced a symmetric key.
func (a *Actor) decodeFrame(raw []byte) (*model.Envelope, error) {
	a.mu.Lock()
	state, key := a.state, a.aesKey
	a.mu.Unlock()

	plaintext := raw
	if state != model.SessionStarted {
		opened, err := cryptoutil.Open(key, string(raw))
		if err != nil {
			return nil, err
		}
		plaintext = opened
	}

	var env model.Envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (a *Actor) handleEnvelope(ctx context.Context, env *model.Envelope) {
	switch a.State() {
	case model.SessionStarted:
		if env.Command != model.CmdSetConnectionPubKey {
			a.Send(model.RespSetConnectionPubKeyResp, model.SetConnectionPubKeyResponse{State: model.HandshakeNeedSetPubKey})
			return
		}
		a.handleSetConnectionPubKey(env.Data)

	case model.SessionApproved:
		if env.Command != model.CmdRegister && env.Command != model.CmdLogin {
			a.Send(model.RespLoginResponse, model.LoginResponse{State: model.LoginNeedLogin})
			return
		}
		a.dispatcher.Dispatch(ctx, a, env.Command, env.Data)

	case model.SessionLogged:
		a.dispatcher.Dispatch(ctx, a, env.Command, env.Data)
	}
}

func (a *Actor) writePump() {
	ticker := time.NewTicker(a.pingPeriod)
	defer func() {
		ticker.Stop()
		a.conn.Close()
	}()

	for {
		select {
		case <-a.done:
			return

		case frame, ok := <-a.send:
			a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				a.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := a.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// encodeFrame seals plaintext under the actor's symmetric key once the
// handshake has produced one; before that, frames travel as plain JSON.
func (a *Actor) encodeFrame(plaintext []byte) ([]byte, error) {
	a.mu.Lock()
	state, key := a.state, a.aesKey
	a.mu.Unlock()

	if state == model.SessionStarted {
		return plaintext, nil
	}
	sealed, err := cryptoutil.Seal(key, plaintext)
	if err != nil {
		return nil, err
	}
	return []byte(sealed), nil
}
