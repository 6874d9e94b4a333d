// Package motor shapes normalized speed targets into direction and PWM
// duty outputs for a single drive motor.
package motor

import (
	"math"
	"sync"
)

const (
	// Deadzone is the input magnitude below which a target is treated as
	// exactly zero, absorbing analog stick noise near center.
	Deadzone = 0.02
	// MinDuty is the smallest drive-strength fraction that reliably
	// overcomes static friction in the gearbox.
	MinDuty = 0.35
	// DutyMax is the PWM resolution (16-bit, duty_u16 semantics).
	DutyMax = 0xFFFF
)

// Outputs is the hardware capability a Driver writes through: two
// direction lines and a PWM duty. Implementations wrap real GPIO/PWM
// pins; tests use a Recorder.
type Outputs interface {
	Set(forward, reverse bool, duty uint16) error
}

// OutputState is one computed (direction, strength) tuple.
type OutputState struct {
	Forward bool
	Reverse bool
	Duty    uint16
}

// Shape maps a normalized target in [-1, 1] to the output tuple:
// inside the deadzone everything is zero, otherwise the duty is
// MinDuty + (1-MinDuty)*|target| scaled to DutyMax with direction from
// the sign of the target.
func Shape(target float64) OutputState {
	if target > 1 {
		target = 1
	} else if target < -1 {
		target = -1
	}
	if math.Abs(target) < Deadzone {
		return OutputState{}
	}
	duty := uint16((MinDuty + (1-MinDuty)*math.Abs(target)) * DutyMax)
	return OutputState{
		Forward: target > 0,
		Reverse: target < 0,
		Duty:    duty,
	}
}

// Driver owns the output state of one motor and suppresses writes that
// would not change it. The connection service and the safety monitor
// call in from separate goroutines, so the tracked tuple is guarded.
type Driver struct {
	out Outputs

	mu   sync.Mutex
	prev OutputState
}

// NewDriver wraps an Outputs capability. The previous-state tracker
// starts at the zero tuple, matching de-energized hardware at boot.
func NewDriver(out Outputs) *Driver {
	return &Driver{out: out}
}

// SetSpeed applies a normalized target, writing hardware only when the
// shaped tuple differs from the last one written.
func (d *Driver) SetSpeed(target float64) error {
	next := Shape(target)
	d.mu.Lock()
	defer d.mu.Unlock()
	if next == d.prev {
		return nil
	}
	if err := d.out.Set(next.Forward, next.Reverse, next.Duty); err != nil {
		return err
	}
	d.prev = next
	return nil
}

// ImmediateStop forces the zero tuple unconditionally, bypassing the
// unchanged-state suppression. Used by the safety monitor so an
// emergency stop can never be skipped because of stale tracking.
func (d *Driver) ImmediateStop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prev = OutputState{}
	return d.out.Set(false, false, 0)
}

// State reports the last tuple written (or assumed at boot).
func (d *Driver) State() OutputState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prev
}
