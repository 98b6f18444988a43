// Package iceservers issues short-lived TURN/STUN credentials for the
// WebRTC media-call signaling family (§4.G MediaCall), backed by
// Twilio's Network Traversal Service. The server never interprets
// these credentials itself; clients use them directly to reach a TURN
// relay outside the chat transport.
package iceservers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Handler issues ICE server credentials over a plain HTTP GET.
type Handler struct {
	client *twilio.RestClient
	ttl    int
}

// New builds a Handler from Twilio account credentials. accountSID or
// authToken empty means the endpoint is disabled: callers should not
// mount it in that case.
func New(accountSID, authToken string, ttlSeconds int) *Handler {
	if ttlSeconds <= 0 {
		ttlSeconds = 86400
	}
	return &Handler{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		ttl: ttlSeconds,
	}
}

// ServeHTTP mints a fresh Twilio network-traversal token and returns its
// ICE server list as JSON.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ttl := h.ttl
	token, err := h.client.Api.CreateToken(&twilioApi.CreateTokenParams{Ttl: &ttl})
	if err != nil {
		http.Error(w, fmt.Sprintf("ice servers: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"iceServers": token.IceServers,
	})
}
