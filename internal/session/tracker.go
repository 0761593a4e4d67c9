package session

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"

	"github.com/dimaspandu/pokecat-hunt/internal/creature"
)

// DefaultName is used for sessions that connect without a display name.
const DefaultName = "Trainer"

// Session is one connected user.
type Session struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Position     *creature.Position `json:"position,omitempty"`
	ConnectedAt  time.Time          `json:"connectedAt"`
	LastReportAt time.Time          `json:"lastReportAt,omitempty"`
}

// Located is a session with a known position, as consumed by the spawner.
type Located struct {
	ID       string
	Position creature.Position
}

// Tracker maps live connections to their last reported position.
type Tracker struct {
	mu       deadlock.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{sessions: make(map[string]*Session), now: now}
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// OnConnect registers a session. Reconnecting with a known id resets its
// position.
func (t *Tracker) OnConnect(id, name string) Session {
	if name == "" {
		name = DefaultName
	}
	sess := &Session{ID: id, Name: name, ConnectedAt: t.now()}

	t.mu.Lock()
	t.sessions[id] = sess
	t.mu.Unlock()
	return *sess
}

// OnLocationReport stores the latest position for id. It reports false for
// unknown sessions.
func (t *Tracker) OnLocationReport(id string, pos creature.Position) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[id]
	if !ok {
		return false
	}
	p := pos
	sess.Position = &p
	sess.LastReportAt = t.now()
	return true
}

// OnDisconnect forgets the session and returns what was known about it.
func (t *Tracker) OnDisconnect(id string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(t.sessions, id)
	return sess.snapshot(), true
}

// Get returns a copy of the session.
func (t *Tracker) Get(id string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sess, ok := t.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.snapshot(), true
}

// Name returns the display name for id, or DefaultName when unknown.
func (t *Tracker) Name(id string) string {
	if sess, ok := t.Get(id); ok {
		return sess.Name
	}
	return DefaultName
}

// Positions lists every session with a known position, ordered by id.
func (t *Tracker) Positions() []Located {
	t.mu.RLock()
	out := make([]Located, 0, len(t.sessions))
	for id, sess := range t.sessions {
		if sess.Position == nil {
			continue
		}
		out = append(out, Located{ID: id, Position: *sess.Position})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// List returns copies of every tracked session.
func (t *Tracker) List() []Session {
	t.mu.RLock()
	out := make([]Session, 0, len(t.sessions))
	for _, sess := range t.sessions {
		out = append(out, sess.snapshot())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

func (s *Session) snapshot() Session {
	cloned := *s
	if s.Position != nil {
		pos := *s.Position
		cloned.Position = &pos
	}
	return cloned
}
