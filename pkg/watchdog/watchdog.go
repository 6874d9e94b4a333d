// Package watchdog feeds a hardware watchdog timer. The connection
// service kicks it every loop iteration; if the loop stalls for longer
// than the device timeout the hardware resets the board outright. That
// reset is the system's last-resort fault containment and is the only
// termination path besides an explicit shutdown directive.
package watchdog

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Timeout is the hardware timer period the device is provisioned with.
// Feeds must arrive well inside it.
const Timeout = 8 * time.Second

// Feeder is the liveness signal capability.
type Feeder interface {
	Feed() error
	Close() error
}

// Device kicks a kernel watchdog device node (/dev/watchdog style).
// Closing writes the magic character first so an orderly shutdown does
// not trip a reset.
type Device struct {
	f *os.File
}

func OpenDevice(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open watchdog: %w", err)
	}
	return &Device{f: f}, nil
}

func (d *Device) Feed() error {
	if _, err := d.f.Write([]byte{'k'}); err != nil {
		return fmt.Errorf("feed watchdog: %w", err)
	}
	return nil
}

func (d *Device) Close() error {
	// 'V' is the kernel's magic-close byte; without it the timer keeps
	// counting after the fd closes.
	_, _ = d.f.Write([]byte{'V'})
	return d.f.Close()
}

// Noop satisfies Feeder on hosts without a watchdog device.
type Noop struct{}

func (Noop) Feed() error  { return nil }
func (Noop) Close() error { return nil }

// Counter records feeds for tests.
type Counter struct {
	mu sync.Mutex
	n  int

	// Err, when set, is returned by Feed.
	Err error
}

func (c *Counter) Feed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.n++
	return nil
}

func (c *Counter) Close() error { return nil }

func (c *Counter) Feeds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
