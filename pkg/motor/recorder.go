package motor

import "sync"

// Recorder is an Outputs implementation that records every hardware
// write, for tests that assert on the exact write sequence.
type Recorder struct {
	mu     sync.Mutex
	writes []OutputState

	// Err, when set, is returned by every Set call.
	Err error
}

func (r *Recorder) Set(forward, reverse bool, duty uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.writes = append(r.writes, OutputState{Forward: forward, Reverse: reverse, Duty: duty})
	return nil
}

// Writes returns a copy of all recorded writes in order.
func (r *Recorder) Writes() []OutputState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OutputState(nil), r.writes...)
}

// Last returns the most recent write, if any.
func (r *Recorder) Last() (OutputState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.writes) == 0 {
		return OutputState{}, false
	}
	return r.writes[len(r.writes)-1], true
}

// Count returns the number of hardware writes issued so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

// Discard is an Outputs implementation that drops all writes, for
// running the control loop on hardware without motors attached.
type Discard struct{}

func (Discard) Set(forward, reverse bool, duty uint16) error { return nil }
