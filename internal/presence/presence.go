// Package presence is the process-wide, in-process registry mapping a
// logged-in user id to that session's push endpoint. It is strictly
// in-process: an offline send is silently dropped, durability for
// offline users is the storage facade's job.
package presence

import "sync"

// Endpoint is a send-only handle into a session's inbound mailbox. It
// must never block indefinitely; a session implementation backs this
// with a buffered channel and drops on overflow rather than stall a
// fan-out caller.
type Endpoint interface {
	Push(event []byte) bool
}

// Registry is a concurrent map from user id to that user's current
// session endpoint, guarded by a single RWMutex — the teacher's Hub
// uses the same pattern for its client map, and presence lookups here
// are not a hot enough path to need sharding.
type Registry struct {
	mu   sync.RWMutex
	byID map[uint32]Endpoint
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[uint32]Endpoint)}
}

// Register associates userID with endpoint, replacing any prior one
// (the earlier session, if any, is expected to have already
// deregistered itself on disconnect; this is a defensive overwrite).
func (r *Registry) Register(userID uint32, endpoint Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[userID] = endpoint
}

// Deregister removes userID from the registry, if present.
func (r *Registry) Deregister(userID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, userID)
}

// Lookup returns userID's current endpoint, if online.
func (r *Registry) Lookup(userID uint32) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.byID[userID]
	return ep, ok
}

// IsOnline reports whether userID currently has a registered session.
func (r *Registry) IsOnline(userID uint32) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Send delivers event to userID if online; it is non-blocking and
// silently drops if the user is offline or its mailbox is full.
func (r *Registry) Send(userID uint32, event []byte) {
	ep, ok := r.Lookup(userID)
	if !ok {
		return
	}
	ep.Push(event)
}

// SendMany delivers one shared event to each listed id.
func (r *Registry) SendMany(ids []uint32, event []byte) {
	for _, id := range ids {
		r.Send(id, event)
	}
}

// SendManyExcept is SendMany with a single id skipped, typically the
// acting user who already has the effect reflected in their own
// response.
func (r *Registry) SendManyExcept(ids []uint32, event []byte, exclude uint32) {
	for _, id := range ids {
		if id == exclude {
			continue
		}
		r.Send(id, event)
	}
}
