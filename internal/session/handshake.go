package session

import (
	"encoding/json"
	"log"

	"github.com/Francis-Rockwell/dmail-server/internal/cryptoutil"
	"github.com/Francis-Rockwell/dmail-server/internal/model"
)

// handleSetConnectionPubKey implements §4.F.4: import the client's RSA
// key, mint a fresh AES key for this connection, wrap it under the
// client's key, and transition Started→Approved.
func (a *Actor) handleSetConnectionPubKey(data json.RawMessage) {
	a.mu.Lock()
	already := a.state != model.SessionStarted
	a.mu.Unlock()
	if already {
		a.Send(model.RespSetConnectionPubKeyResp, model.SetConnectionPubKeyResponse{State: model.HandshakeHasApproved})
		return
	}

	var b64 model.SetConnectionPubKeyData
	if err := json.Unmarshal(data, &b64); err != nil {
		a.Send(model.RespSetConnectionPubKeyResp, model.SetConnectionPubKeyResponse{State: model.HandshakePubKeyError})
		return
	}

	pub, err := cryptoutil.ImportPublicKey(b64)
	if err != nil {
		a.Send(model.RespSetConnectionPubKeyResp, model.SetConnectionPubKeyResponse{State: model.HandshakePubKeyError})
		return
	}

	aesKey, err := cryptoutil.GenerateAESKey()
	if err != nil {
		log.Printf("session: generate aes key: %v", err)
		a.Send(model.RespSetConnectionPubKeyResp, model.SetConnectionPubKeyResponse{State: model.HandshakePubKeyError})
		return
	}

	wrapped, err := cryptoutil.WrapKeyForPeer(pub, aesKey)
	if err != nil {
		log.Printf("session: wrap aes key: %v", err)
		a.Send(model.RespSetConnectionPubKeyResp, model.SetConnectionPubKeyResponse{State: model.HandshakePubKeyError})
		return
	}

	// Sent while still Started, so it goes out as plain JSON: the client
	// has no AES key yet and must RSA-decrypt this payload to learn one.
	var resp model.SetConnectionSymKeyData = wrapped
	a.Send(model.RespSetConnectionSymKey, resp)

	a.mu.Lock()
	a.pubKey = pub
	a.aesKey = aesKey
	a.state = model.SessionApproved
	a.mu.Unlock()
}
