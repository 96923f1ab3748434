package browse

import (
	"sync"
	"time"

	"github.com/watchlogapp/watchlog-server/internal/query"
)

// DefaultIdleTTL is how long an unused session is kept.
const DefaultIdleTTL = 30 * time.Minute

type sessionKey struct {
	viewerID string
	scope    query.Scope
}

type held struct {
	session  *Session
	lastSeen time.Time
}

// Registry keeps one session per (viewer, owner, category) and closes sessions left idle.
type Registry struct {
	deps    Deps
	idleTTL time.Duration

	mu       sync.Mutex
	sessions map[sessionKey]*held
	done     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry and starts its eviction loop.
func NewRegistry(deps Deps, idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	r := &Registry{
		deps:     deps,
		idleTTL:  idleTTL,
		sessions: make(map[sessionKey]*held),
		done:     make(chan struct{}),
	}
	go r.janitor()
	return r
}

// Session returns the live session for viewer and scope, creating it if needed.
// The bool reports whether the session was created by this call.
func (r *Registry) Session(viewerID string, scope query.Scope) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionKey{viewerID: viewerID, scope: scope}
	if h, ok := r.sessions[key]; ok {
		h.lastSeen = time.Now()
		return h.session, false
	}
	s := NewSession(r.deps, viewerID, scope)
	r.sessions[key] = &held{session: s, lastSeen: time.Now()}
	return s, true
}

// Drop closes and forgets the session for viewer and scope.
func (r *Registry) Drop(viewerID string, scope query.Scope) {
	r.mu.Lock()
	key := sessionKey{viewerID: viewerID, scope: scope}
	h, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if ok {
		h.session.Close()
	}
}

// MarkOwnerChanged flags every session browsing ownerID's collections so their bounds are reconciled
// before the next query.
func (r *Registry) MarkOwnerChanged(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, h := range r.sessions {
		if key.scope.OwnerID == ownerID {
			h.session.MarkBoundsStale()
		}
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops eviction and closes every session.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[sessionKey]*held)
	r.mu.Unlock()

	for _, h := range all {
		h.session.Close()
	}
}

func (r *Registry) janitor() {
	ticker := time.NewTicker(max(r.idleTTL/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.evictIdle(now)
		}
	}
}

func (r *Registry) evictIdle(now time.Time) {
	var stale []*Session
	r.mu.Lock()
	for key, h := range r.sessions {
		if now.Sub(h.lastSeen) > r.idleTTL {
			delete(r.sessions, key)
			stale = append(stale, h.session)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
}
