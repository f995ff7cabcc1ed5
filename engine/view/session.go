// Package view holds the per-user lookup state machine and builds the page
// model rendered by the web front end.
package view

import (
	"fmt"
	"sync"

	"github.com/WessleyAI/vinwizard/engine/domain"
)

// Phase is the lookup state of a session.
type Phase int

const (
	Idle Phase = iota
	Loading
	Loaded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Snapshot is an immutable copy of a session's state.
type Snapshot struct {
	Seq         uint64               `json:"seq"`
	Phase       Phase                `json:"phase"`
	InputVIN    string               `json:"input_vin"`
	SearchedVIN string               `json:"searched_vin"`
	Vehicle     domain.VehicleRecord `json:"vehicle,omitempty"`
	Error       string               `json:"error,omitempty"`
	DrawerOpen  bool                 `json:"drawer_open"`
}

// Session is the state of one user's page. All methods are safe for
// concurrent use; every change is pushed to subscribers.
type Session struct {
	mu           sync.Mutex
	state        Snapshot
	lastRecorded string
	subs         map[int]chan Snapshot
	nextSub      int
}

func NewSession() *Session {
	return &Session{subs: make(map[int]chan Snapshot)}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Submit starts a lookup of vin. A blank vin leaves the state untouched and
// returns false. The returned string is the VIN to look up.
func (s *Session) Submit(vin string) (string, bool) {
	vin = domain.NormalizeVIN(vin)
	if vin == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitLocked(vin)
	return vin, true
}

func (s *Session) submitLocked(vin string) {
	s.state.InputVIN = vin
	s.state.SearchedVIN = vin
	s.state.Phase = Loading
	s.state.Vehicle = nil
	s.state.Error = ""
	s.changedLocked()
}

// Resolve applies the outcome of a lookup. Outcomes for any VIN other than
// the one most recently submitted are ignored; Resolve then reports false.
func (s *Session) Resolve(vin string, rec domain.VehicleRecord, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vin == "" || vin != s.state.SearchedVIN {
		return false
	}
	if err != nil {
		s.state.Phase = Failed
		s.state.Vehicle = nil
		s.state.Error = err.Error()
	} else {
		s.state.Phase = Loaded
		s.state.Vehicle = rec
		s.state.Error = ""
	}
	s.changedLocked()
	return true
}

// Select re-runs the lookup for a history entry and closes the drawer.
func (s *Session) Select(e domain.HistoryEntry) (string, bool) {
	vin := domain.NormalizeVIN(e.VIN)
	if vin == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DrawerOpen = false
	s.submitLocked(vin)
	return vin, true
}

func (s *Session) CloseDrawer()  { s.setDrawer(func(bool) bool { return false }) }
func (s *Session) ToggleDrawer() { s.setDrawer(func(open bool) bool { return !open }) }

func (s *Session) setDrawer(next func(bool) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DrawerOpen = next(s.state.DrawerOpen)
	s.changedLocked()
}

// ShouldRecord reports whether the loaded result has not been added to
// history yet.
func (s *Session) ShouldRecord() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Phase == Loaded && s.state.SearchedVIN != s.lastRecorded
}

// MarkRecorded notes that vin has been added to history.
func (s *Session) MarkRecorded(vin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRecorded = vin
}

// Subscribe returns a channel receiving a Snapshot after every change,
// starting with the current one, and a function that ends the
// subscription. Slow subscribers miss intermediate snapshots.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 8)
	ch <- s.copyLocked()
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) changedLocked() {
	s.state.Seq++
	snap := s.copyLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Session) copyLocked() Snapshot {
	snap := s.state
	if s.state.Vehicle != nil {
		snap.Vehicle = make(domain.VehicleRecord, len(s.state.Vehicle))
		for k, v := range s.state.Vehicle {
			snap.Vehicle[k] = v
		}
	}
	return snap
}
