package broadcast

import (
	"fmt"
	"sync"
	"time"
)

// Mode is what the operator last asked the station to play.
type Mode int

const (
	ModeNone Mode = iota
	ModeFixed
	ModeRandom
)

func (m Mode) String() string {
	switch m {
	case ModeFixed:
		return "fixed"
	case ModeRandom:
		return "random"
	default:
		return "none"
	}
}

// MarshalText renders the mode by name in JSON payloads.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*m = ModeNone
	case "fixed":
		*m = ModeFixed
	case "random":
		*m = ModeRandom
	default:
		return fmt.Errorf("unknown mode %q", text)
	}
	return nil
}

// Selection is the operator's choice and when it was made.
type Selection struct {
	Mode       Mode      `json:"mode"`
	Track      string    `json:"track,omitempty"`
	SelectedAt time.Time `json:"selected_at"`
}

// OnAir is the track synchronized listeners are hearing and when it started.
// After a fixed track ends the station continues with random draws, so OnAir
// may differ from Selection.Track.
type OnAir struct {
	Track string    `json:"track,omitempty"`
	Since time.Time `json:"since"`
}

// Snapshot is a consistent copy of the broadcast record.
//
// Generation changes only when the operator selects something; Epoch changes
// on every on-air transition, including selections.
type Snapshot struct {
	Selection
	OnAir      OnAir  `json:"on_air"`
	Generation uint64 `json:"generation"`
	Epoch      uint64 `json:"epoch"`
}

// State is the single broadcast record shared by every stream session.
// All reads and writes go through its methods so no reader observes a
// selection paired with another selection's timestamp.
type State struct {
	clock Clock

	mu         sync.RWMutex
	sel        Selection
	onAir      OnAir
	generation uint64
	epoch      uint64
	changed    chan struct{}
}

// NewState returns a record in ModeNone. A nil clock uses the system clock.
func NewState(clock Clock) *State {
	if clock == nil {
		clock = SystemClock{}
	}
	return &State{
		clock:   clock,
		changed: make(chan struct{}),
	}
}

// Clock returns the clock the state stamps selections with.
func (s *State) Clock() Clock {
	return s.clock
}

// Snapshot returns the current record.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Changed returns a channel that is closed at the next mutation.
func (s *State) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// SetFixed puts file on air from now on.
func (s *State) SetFixed(file string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.sel = Selection{Mode: ModeFixed, Track: file, SelectedAt: now}
	s.onAir = OnAir{Track: file, Since: now}
	s.generation++
	s.bumpLocked()
	return s.snapshotLocked()
}

// SetRandom switches to random mode. first is the shared draw that goes on
// air immediately; it may be empty when nothing could be drawn, in which case
// the first session to resolve performs the draw through Advance.
func (s *State) SetRandom(first string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.sel = Selection{Mode: ModeRandom, SelectedAt: now}
	s.onAir = OnAir{}
	if first != "" {
		s.onAir = OnAir{Track: first, Since: now}
	}
	s.generation++
	s.bumpLocked()
	return s.snapshotLocked()
}

// Advance replaces the on-air track with next starting at since, but only if
// the record is still at epoch. The boolean reports whether this call won;
// either way the returned snapshot is the record after the call. Nothing
// advances while the station is in ModeNone.
func (s *State) Advance(epoch uint64, next string, since time.Time) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch || s.sel.Mode == ModeNone || next == "" {
		return s.snapshotLocked(), false
	}
	if since.IsZero() {
		since = s.clock.Now()
	}
	s.onAir = OnAir{Track: next, Since: since}
	s.bumpLocked()
	return s.snapshotLocked(), true
}

func (s *State) bumpLocked() {
	s.epoch++
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Selection:  s.sel,
		OnAir:      s.onAir,
		Generation: s.generation,
		Epoch:      s.epoch,
	}
}
