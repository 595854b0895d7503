package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the externally visible phase of a monitoring cycle.
type State string

const (
	StatePending     State = "pending"
	StateClassifying State = "classifying"
	StateProductive  State = "productive"
	StateWarned      State = "warned"
	StateClosed      State = "closed"
	StateAborted     State = "aborted"
)

// Session is a snapshot of one monitored tab.
type Session struct {
	TabID      string    `json:"tab_id"`
	URL        string    `json:"url"`
	Generation uint64    `json:"generation"`
	CycleID    string    `json:"cycle_id"`
	State      State     `json:"state"`
	ArmedAt    time.Time `json:"armed_at"`
	CloseAt    time.Time `json:"close_at,omitzero"`
	Verdict    *float64  `json:"verdict,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

type entry struct {
	Session
	classifyTimer Timer
	closeTimer    Timer
	ctx           context.Context
	cancel        context.CancelFunc
}

func (e *entry) release() {
	if e.classifyTimer != nil {
		e.classifyTimer.Stop()
		e.classifyTimer = nil
	}
	if e.closeTimer != nil {
		e.closeTimer.Stop()
		e.closeTimer = nil
	}
	e.cancel()
}

func (e *entry) snapshot() Session {
	s := e.Session
	if e.Verdict != nil {
		v := *e.Verdict
		s.Verdict = &v
	}
	return s
}

// Store holds tab sessions in memory. Every write that replaces a session
// assigns a new generation from a store-wide counter, so a generation number
// identifies exactly one cycle for its whole lifetime.
type Store struct {
	clock Clock

	mu     sync.Mutex
	gen    uint64
	tabs   map[string]*entry
	closed bool
}

func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = RealClock{}
	}
	return &Store{
		clock: clock,
		tabs:  make(map[string]*entry),
	}
}

// Get returns a snapshot of the tab's session.
func (s *Store) Get(tabID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tabs[tabID]
	if !ok {
		return Session{}, false
	}
	return e.snapshot(), true
}

// Put replaces the tab's session without merging. The prior session's timers
// and token are cancelled first and the stored copy gets a fresh generation.
func (s *Store) Put(sess Session) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.replaceLocked(sess)
	if !ok {
		return Session{}, false
	}
	return e.snapshot(), true
}

// Reset starts a new pending cycle for tabID at url. arm is called under the
// store lock with the new generation and must return the classify timer.
func (s *Store) Reset(tabID, url string, arm func(gen uint64) Timer) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.replaceLocked(Session{
		TabID:   tabID,
		URL:     url,
		State:   StatePending,
		ArmedAt: s.clock.Now(),
	})
	if !ok {
		return Session{}, false
	}
	if arm != nil {
		e.classifyTimer = arm(e.Generation)
	}
	return e.snapshot(), true
}

func (s *Store) replaceLocked(sess Session) (*entry, bool) {
	if s.closed {
		return nil, false
	}
	if prev, ok := s.tabs[sess.TabID]; ok {
		prev.release()
	}
	s.gen++
	sess.Generation = s.gen
	sess.CycleID = uuid.NewString()
	if sess.State == "" {
		sess.State = StatePending
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{Session: sess, ctx: ctx, cancel: cancel}
	s.tabs[sess.TabID] = e
	return e, true
}

// ArmClose installs the close timer only if gen is still the tab's current
// generation. The session moves to StateWarned.
func (s *Store) ArmClose(tabID string, gen uint64, delay time.Duration, arm func() Timer) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.currentLocked(tabID, gen)
	if !ok {
		return Session{}, false
	}
	if e.closeTimer != nil {
		e.closeTimer.Stop()
	}
	e.closeTimer = arm()
	e.State = StateWarned
	e.CloseAt = s.clock.Now().Add(delay)
	return e.snapshot(), true
}

// Transition applies fn to the session if gen is current.
func (s *Store) Transition(tabID string, gen uint64, fn func(*Session)) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.currentLocked(tabID, gen)
	if !ok {
		return Session{}, false
	}
	fn(&e.Session)
	e.TabID = tabID
	e.Generation = gen
	return e.snapshot(), true
}

// Context returns the cancellation token of generation gen. It is cancelled
// as soon as the generation is superseded, forgotten or the store closes.
func (s *Store) Context(tabID string, gen uint64) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.currentLocked(tabID, gen)
	if !ok {
		return nil, false
	}
	return e.ctx, true
}

// Current reports whether gen is the live generation of tabID.
func (s *Store) Current(tabID string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.currentLocked(tabID, gen)
	return ok
}

func (s *Store) currentLocked(tabID string, gen uint64) (*entry, bool) {
	e, ok := s.tabs[tabID]
	if !ok || e.Generation != gen || e.ctx.Err() != nil {
		return nil, false
	}
	return e, true
}

// Forget cancels and removes the tab's session.
func (s *Store) Forget(tabID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tabs[tabID]
	if !ok {
		return Session{}, false
	}
	e.release()
	delete(s.tabs, tabID)
	return e.snapshot(), true
}

// List returns all sessions ordered by tab id.
func (s *Store) List() []Session {
	s.mu.Lock()
	out := make([]Session, 0, len(s.tabs))
	for _, e := range s.tabs {
		out = append(out, e.snapshot())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}

// Close cancels every session. Later writes are rejected.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, e := range s.tabs {
		e.release()
		delete(s.tabs, id)
	}
}
