// Package safety runs the emergency-stop monitor, scheduled
// independently of the connection service so a stalled network loop
// cannot delay loss-of-input handling.
package safety

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Deblin-Mallick/RoboApp/pkg/drive"
	"github.com/Deblin-Mallick/RoboApp/pkg/motor"
	"github.com/Deblin-Mallick/RoboApp/pkg/telemetry"
)

const (
	// PollInterval is the monitor's fixed check period.
	PollInterval = 100 * time.Millisecond
	// StaleAfter is how long command state may go unrefreshed before the
	// monitor engages.
	StaleAfter = 2000 * time.Millisecond
)

// Monitor forces all motors to zero when no qualifying command has
// refreshed the drive state within StaleAfter and every stored wheel
// target is inside the deadzone. An operator actively commanding
// motion, however infrequently, is never fought.
type Monitor struct {
	state *drive.State
	bank  *drive.Bank
	hub   *telemetry.Hub
	log   hclog.Logger

	interval   time.Duration
	staleAfter time.Duration

	engaged atomic.Bool
}

type Option func(*Monitor)

// WithPollInterval overrides the check period; used by tests.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithStaleAfter overrides the staleness threshold; used by tests.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.staleAfter = d
		}
	}
}

func NewMonitor(state *drive.State, bank *drive.Bank, hub *telemetry.Hub, log hclog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		state:      state,
		bank:       bank,
		hub:        hub,
		log:        log,
		interval:   PollInterval,
		staleAfter: StaleAfter,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run checks at the fixed interval until the context ends. There is no
// other way to stop it; the monitor lives as long as the process.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(time.Now())
		}
	}
}

// Engaged reports whether the emergency stop is currently active.
func (m *Monitor) Engaged() bool {
	return m.engaged.Load()
}

func (m *Monitor) check(now time.Time) {
	wheels, last := m.state.Snapshot()
	elapsed := now.Sub(last)
	stale := elapsed > m.staleAfter && allIdle(wheels)

	// Edge-triggered: act on transitions only, not every tick.
	if stale == m.engaged.Load() {
		return
	}
	m.engaged.Store(stale)

	if stale {
		if err := m.bank.StopAll(); err != nil {
			m.log.Error("emergency stop write failed", "error", err)
		}
		m.log.Warn("emergency stop engaged", "stale_for", elapsed)
		m.hub.Publish(telemetry.Event{
			Kind:   telemetry.KindSafetyEngaged,
			Detail: elapsed.String(),
		})
		return
	}

	m.log.Info("emergency stop cleared", "stale_for", elapsed)
	m.hub.Publish(telemetry.Event{Kind: telemetry.KindSafetyCleared})
}

func allIdle(w drive.Wheels) bool {
	for _, v := range []float64{w.LF, w.LR, w.RF, w.RR} {
		if math.Abs(v) >= motor.Deadzone {
			return false
		}
	}
	return true
}
