package eventbroker

import (
	"sync"
)

// Registry is the table of active sessions. All operations are safe for
// concurrent use; reads return snapshots in insertion order.
type Registry struct {
	sessions []Session
	sync.Mutex
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make([]Session, 0),
	}
}

// Add appends the session unconditionally.
func (r *Registry) Add(s Session) {
	r.Lock()
	defer r.Unlock()

	r.sessions = append(r.sessions, s)
}

// Replace removes the first session with the same identity and appends s. It
// returns true if an existing session was replaced.
func (r *Registry) Replace(s Session) bool {
	r.Lock()
	defer r.Unlock()

	replaced := r.removeFirst(s)
	r.sessions = append(r.sessions, s)
	return replaced
}

// RemoveExact removes the first session with the same identity as s.
func (r *Registry) RemoveExact(s Session) bool {
	r.Lock()
	defer r.Unlock()

	return r.removeFirst(s)
}

// Remove deletes every session matching the predicate and returns them.
func (r *Registry) Remove(pred func(Session) bool) []Session {
	r.Lock()
	defer r.Unlock()

	removed := make([]Session, 0)
	kept := r.sessions[:0]
	for _, s := range r.sessions {
		if pred(s) {
			removed = append(removed, s)
			continue
		}
		kept = append(kept, s)
	}
	// Clear the tail so removed sessions don't keep their transports alive
	for i := len(kept); i < len(r.sessions); i++ {
		r.sessions[i] = Session{}
	}
	r.sessions = kept

	return removed
}

// RemoveForPlugin deletes all sessions of the plugin.
func (r *Registry) RemoveForPlugin(pluginID string) []Session {
	return r.Remove(func(s Session) bool {
		return s.PluginID == pluginID
	})
}

// RemoveForReceiver deletes all sessions of the receiver.
func (r *Registry) RemoveForReceiver(receiverID string) []Session {
	return r.Remove(func(s Session) bool {
		return s.ReceiverID == receiverID
	})
}

// FindAll returns a snapshot of all sessions.
func (r *Registry) FindAll() []Session {
	r.Lock()
	defer r.Unlock()

	snapshot := make([]Session, len(r.sessions))
	copy(snapshot, r.sessions)
	return snapshot
}

// UpdateAccessToken rotates the token of every session of the plugin and
// returns the number of updated sessions.
func (r *Registry) UpdateAccessToken(pluginID, token string) int {
	r.Lock()
	defer r.Unlock()

	n := 0
	for i := range r.sessions {
		if r.sessions[i].PluginID == pluginID {
			r.sessions[i].AccessToken = token
			n++
		}
	}
	return n
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.Lock()
	defer r.Unlock()

	return len(r.sessions)
}

func (r *Registry) removeFirst(s Session) bool {
	for i, existing := range r.sessions {
		if existing.SameIdentity(s) {
			copy(r.sessions[i:], r.sessions[i+1:])
			r.sessions[len(r.sessions)-1] = Session{}
			r.sessions = r.sessions[:len(r.sessions)-1]
			return true
		}
	}
	return false
}
