package safety_test

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Deblin-Mallick/RoboApp/pkg/drive"
	"github.com/Deblin-Mallick/RoboApp/pkg/motor"
	"github.com/Deblin-Mallick/RoboApp/pkg/protocol"
	"github.com/Deblin-Mallick/RoboApp/pkg/safety"
)

type rig struct {
	state   *drive.State
	bank    *drive.Bank
	monitor *safety.Monitor
	wheels  [4]*motor.Recorder
}

func newRig(t *testing.T, opts ...safety.Option) *rig {
	t.Helper()
	lf, lr, rf, rr := &motor.Recorder{}, &motor.Recorder{}, &motor.Recorder{}, &motor.Recorder{}
	state := drive.NewState()
	bank := drive.NewBank(lf, lr, rf, rr)
	mon := safety.NewMonitor(state, bank, nil, hclog.NewNullLogger(), opts...)
	return &rig{
		state:   state,
		bank:    bank,
		monitor: mon,
		wheels:  [4]*motor.Recorder{lf, lr, rf, rr},
	}
}

func (r *rig) totalWrites() int {
	n := 0
	for _, w := range r.wheels {
		n += w.Count()
	}
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestMonitorEngagesOnceOnStaleIdleState(t *testing.T) {
	r := newRig(t,
		safety.WithPollInterval(5*time.Millisecond),
		safety.WithStaleAfter(30*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.monitor.Run(ctx)

	waitFor(t, time.Second, r.monitor.Engaged)

	// One ImmediateStop per wheel, exactly once across many poll ticks.
	writes := r.totalWrites()
	if writes != 4 {
		t.Fatalf("expected 4 stop writes, got %d", writes)
	}
	time.Sleep(50 * time.Millisecond)
	if got := r.totalWrites(); got != writes {
		t.Fatalf("stop re-issued while engaged: %d -> %d writes", writes, got)
	}
	for i, w := range r.wheels {
		last, ok := w.Last()
		if !ok || last != (motor.OutputState{}) {
			t.Fatalf("wheel %d not forced to zero: %+v", i, last)
		}
	}
}

func TestMonitorDoesNotEngageWhileCommandedMoving(t *testing.T) {
	r := newRig(t,
		safety.WithPollInterval(5*time.Millisecond),
		safety.WithStaleAfter(30*time.Millisecond),
	)
	// A stale but nonzero command means the operator asked for motion;
	// the monitor must not fight it.
	r.state.Apply(protocol.MotorCommand{LF: 0.5, LR: 0.5, RF: 0.5, RR: 0.5})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.monitor.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if r.monitor.Engaged() {
		t.Fatalf("monitor engaged despite nonzero commanded motion")
	}
	if r.totalWrites() != 0 {
		t.Fatalf("unexpected motor writes: %d", r.totalWrites())
	}
}

func TestMonitorDoesNotEngageBeforeThreshold(t *testing.T) {
	r := newRig(t,
		safety.WithPollInterval(5*time.Millisecond),
		safety.WithStaleAfter(200*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.monitor.Run(ctx)

	time.Sleep(60 * time.Millisecond)
	if r.monitor.Engaged() {
		t.Fatalf("monitor engaged before the staleness threshold")
	}
}

func TestMonitorClearsOnFreshQualifyingCommand(t *testing.T) {
	r := newRig(t,
		safety.WithPollInterval(5*time.Millisecond),
		safety.WithStaleAfter(30*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.monitor.Run(ctx)

	waitFor(t, time.Second, r.monitor.Engaged)

	r.state.Apply(protocol.MotorCommand{LF: 0.4})
	waitFor(t, time.Second, func() bool { return !r.monitor.Engaged() })
}

func TestMonitorReengagesAfterNextStalePeriod(t *testing.T) {
	r := newRig(t,
		safety.WithPollInterval(5*time.Millisecond),
		safety.WithStaleAfter(30*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.monitor.Run(ctx)

	waitFor(t, time.Second, r.monitor.Engaged)
	first := r.totalWrites()

	// Fresh zero command clears the flag, then goes stale again.
	r.state.Apply(protocol.MotorCommand{})
	waitFor(t, time.Second, func() bool { return !r.monitor.Engaged() })
	waitFor(t, time.Second, r.monitor.Engaged)

	if got := r.totalWrites(); got != first+4 {
		t.Fatalf("expected one more stop round, got %d -> %d writes", first, got)
	}
}
