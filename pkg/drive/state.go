// Package drive holds the shared record of the most recently applied
// wheel targets and fans commands out to the four motor drivers.
package drive

import (
	"sync"
	"time"

	"github.com/Deblin-Mallick/RoboApp/pkg/protocol"
)

// Wheels is one coherent set of normalized per-wheel targets.
type Wheels struct {
	LF float64
	LR float64
	RF float64
	RR float64
}

// State is the last-applied command plus the time it was accepted.
// The connection service is the sole writer; the safety monitor and
// telemetry read snapshots. The whole record updates under one lock so
// a reader can never observe a torn mix of old and new wheel values.
type State struct {
	mu     sync.Mutex
	wheels Wheels
	last   time.Time
}

// NewState starts with all-zero wheels and the acceptance clock at the
// moment of creation, so the staleness countdown begins at boot rather
// than tripping immediately.
func NewState() *State {
	return &State{last: time.Now()}
}

// Apply clamps the command's wheel targets, stores them with the
// current timestamp, and returns the clamped set.
func (s *State) Apply(cmd protocol.MotorCommand) Wheels {
	w := Wheels{
		LF: protocol.Clamp(cmd.LF),
		LR: protocol.Clamp(cmd.LR),
		RF: protocol.Clamp(cmd.RF),
		RR: protocol.Clamp(cmd.RR),
	}
	s.mu.Lock()
	s.wheels = w
	s.last = time.Now()
	s.mu.Unlock()
	return w
}

// Snapshot returns a coherent copy of the wheel targets and the last
// acceptance time.
func (s *State) Snapshot() (Wheels, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wheels, s.last
}
