// Package registry tracks live media sessions keyed by stream or call id.
package registry

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/domain"
)

// Entry is one live media session with its identity and buffered ICE
// candidates. Candidate access goes through the Registry so buffering
// and dedupe stay race-free.
type Entry struct {
	SessionID        string
	CallID           string
	Role             domain.Role
	Kind             domain.StreamKind
	RemoteUserID     string
	RemoteEndpointID string
	Media            domain.MediaSession

	pending []domain.ICECandidate
	seen    map[string]bool
	closed  bool
}

// Registry is a mutex-guarded map of live media sessions. A session id
// maps to exactly one entry for its whole lifetime.
type Registry struct {
	mu        sync.Mutex
	bySession map[string]*Entry
	byCall    map[string]string
	log       zerolog.Logger
}

// New returns an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		bySession: make(map[string]*Entry),
		byCall:    make(map[string]string),
		log:       log.With().Str("module", "registry").Logger(),
	}
}

// Create registers a new session. It fails if the session id is already
// live.
func (r *Registry) Create(e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bySession[e.SessionID]; ok {
		return fmt.Errorf("session %s already registered", e.SessionID)
	}
	e.seen = make(map[string]bool)
	r.bySession[e.SessionID] = e
	if e.CallID != "" {
		r.byCall[e.CallID] = e.SessionID
	}
	r.log.Debug().
		Str("session", e.SessionID).
		Str("role", e.Role.String()).
		Str("kind", string(e.Kind)).
		Msg("session registered")
	return nil
}

// Find returns the entry for a session id.
func (r *Registry) Find(sessionID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.bySession[sessionID]
	return e, ok
}

// FindByCallID returns the entry whose call id matches.
func (r *Registry) FindByCallID(callID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.byCall[callID]
	if !ok {
		return nil, false
	}
	e, ok := r.bySession[sid]
	return e, ok
}

// AppendCandidate buffers a locally gathered ICE candidate for later
// flushing. Duplicate candidates are dropped. It reports whether the
// candidate was accepted.
func (r *Registry) AppendCandidate(sessionID string, c domain.ICECandidate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.bySession[sessionID]
	if !ok {
		return false
	}
	key := fmt.Sprintf("%s/%d/%s", c.SDPMid, c.SDPMLineIndex, c.Candidate)
	if e.seen[key] {
		return false
	}
	e.seen[key] = true
	e.pending = append(e.pending, c)
	return true
}

// DrainCandidates returns and clears the buffered candidates for a session.
func (r *Registry) DrainCandidates(sessionID string) []domain.ICECandidate {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.bySession[sessionID]
	if !ok || len(e.pending) == 0 {
		return nil
	}
	out := e.pending
	e.pending = nil
	return out
}

// Remove deregisters a session and closes its media exactly once. It
// reports whether the session was present.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	e, ok := r.bySession[sessionID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.bySession, sessionID)
	if e.CallID != "" {
		delete(r.byCall, e.CallID)
	}
	alreadyClosed := e.closed
	e.closed = true
	r.mu.Unlock()

	if !alreadyClosed && e.Media != nil {
		if err := e.Media.Close(); err != nil {
			r.log.Warn().Err(err).Str("session", sessionID).Msg("media close failed")
		}
	}
	r.log.Debug().Str("session", sessionID).Msg("session removed")
	return true
}

// RemoveAll deregisters every session and closes each media session.
// Safe to call on an empty registry.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	entries := make([]*Entry, 0, len(r.bySession))
	for _, e := range r.bySession {
		if !e.closed {
			e.closed = true
			entries = append(entries, e)
		}
	}
	r.bySession = make(map[string]*Entry)
	r.byCall = make(map[string]string)
	r.mu.Unlock()

	for _, e := range entries {
		if e.Media != nil {
			if err := e.Media.Close(); err != nil {
				r.log.Warn().Err(err).Str("session", e.SessionID).Msg("media close failed")
			}
		}
	}
}

// Local returns a snapshot of all sessions this endpoint publishes.
func (r *Registry) Local() []*Entry { return r.byRole(domain.RoleLocal) }

// Remote returns a snapshot of all sessions this endpoint views.
func (r *Registry) Remote() []*Entry { return r.byRole(domain.RoleRemote) }

func (r *Registry) byRole(role domain.Role) []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entry
	for _, e := range r.bySession {
		if e.Role == role {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySession)
}
