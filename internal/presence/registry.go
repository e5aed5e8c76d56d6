// Package presence tracks which users currently hold at least one live connection.
package presence

import (
	"sync"
	"time"
)

type entry struct {
	sessions     map[string]struct{}
	lastActivity time.Time
}

// Registry maps user ids to their live sessions. A user is online iff it has at least one
// session. Every check-and-mutate runs under one lock so concurrent connects and disconnects of
// the same user agree on who saw the first and the last session.
type Registry struct {
	mu    sync.Mutex
	users map[uint64]*entry
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[uint64]*entry),
		now:   time.Now,
	}
}

// RegisterSession adds sessionID to userID and reports whether it is the user's first session.
// Registering the same session twice is a no-op returning false.
func (r *Registry) RegisterSession(userID uint64, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[userID]
	if !ok {
		e = &entry{sessions: make(map[string]struct{}, 1)}
		r.users[userID] = e
	}
	if _, dup := e.sessions[sessionID]; dup {
		return false
	}
	e.sessions[sessionID] = struct{}{}
	e.lastActivity = r.now()
	return len(e.sessions) == 1
}

// UnregisterSession removes sessionID and reports whether the user has just gone offline.
// Unknown users or sessions are no-ops returning false.
func (r *Registry) UnregisterSession(userID uint64, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := e.sessions[sessionID]; !ok {
		return false
	}
	delete(e.sessions, sessionID)
	if len(e.sessions) > 0 {
		return false
	}
	delete(r.users, userID)
	return true
}

func (r *Registry) IsOnline(userID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok
}

// Statuses answers IsOnline for every id under a single lock.
func (r *Registry) Statuses(userIDs []uint64) map[uint64]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[uint64]bool, len(userIDs))
	for _, id := range userIDs {
		_, out[id] = r.users[id]
	}
	return out
}

// Touch records activity for an online user. Offline users are ignored.
func (r *Registry) Touch(userID uint64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.users[userID]; ok && at.After(e.lastActivity) {
		e.lastActivity = at
	}
}

func (r *Registry) LastActivity(userID uint64) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastActivity, true
}

func (r *Registry) SessionCount(userID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.users[userID]; ok {
		return len(e.sessions)
	}
	return 0
}

func (r *Registry) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
