package drive

import (
	"fmt"

	"github.com/Deblin-Mallick/RoboApp/pkg/motor"
)

// Bank groups the four wheel drivers. Apply and StopAll touch every
// motor even when one write fails, so a single dead output line cannot
// leave the other wheels running a stale command.
type Bank struct {
	lf *motor.Driver
	lr *motor.Driver
	rf *motor.Driver
	rr *motor.Driver
}

// NewBank builds drivers for the four wheel output channels.
func NewBank(lf, lr, rf, rr motor.Outputs) *Bank {
	return &Bank{
		lf: motor.NewDriver(lf),
		lr: motor.NewDriver(lr),
		rf: motor.NewDriver(rf),
		rr: motor.NewDriver(rr),
	}
}

// Apply sets all four wheel speeds, returning the first error after
// attempting every wheel.
func (b *Bank) Apply(w Wheels) error {
	var first error
	for _, m := range []struct {
		name   string
		driver *motor.Driver
		target float64
	}{
		{"lf", b.lf, w.LF},
		{"lr", b.lr, w.LR},
		{"rf", b.rf, w.RF},
		{"rr", b.rr, w.RR},
	} {
		if err := m.driver.SetSpeed(m.target); err != nil && first == nil {
			first = fmt.Errorf("set %s: %w", m.name, err)
		}
	}
	return first
}

// StopAll forces every motor to the zero tuple, bypassing the drivers'
// unchanged-state suppression.
func (b *Bank) StopAll() error {
	var first error
	for _, m := range []struct {
		name   string
		driver *motor.Driver
	}{
		{"lf", b.lf}, {"lr", b.lr}, {"rf", b.rf}, {"rr", b.rr},
	} {
		if err := m.driver.ImmediateStop(); err != nil && first == nil {
			first = fmt.Errorf("stop %s: %w", m.name, err)
		}
	}
	return first
}
