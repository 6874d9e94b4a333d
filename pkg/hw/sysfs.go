// Package hw binds motor.Outputs to Linux sysfs GPIO and PWM, the
// host-side equivalent of the firmware's direction-pin/PWM wiring: two
// GPIO lines select direction, one PWM channel carries drive strength.
package hw

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// DefaultGPIORoot and DefaultPWMRoot are the kernel class trees.
	DefaultGPIORoot = "/sys/class/gpio"
	DefaultPWMRoot  = "/sys/class/pwm"
	// DefaultPWMHz matches the firmware's 1 kHz motor PWM.
	DefaultPWMHz = 1000

	dutyMax = 0xFFFF
)

// Pins names the sysfs resources for one motor channel.
type Pins struct {
	In1        int `toml:"in1"`
	In2        int `toml:"in2"`
	PWMChip    int `toml:"pwm_chip"`
	PWMChannel int `toml:"pwm_channel"`
}

// Channel drives one motor through two exported GPIO value files and a
// PWM duty_cycle file. It implements motor.Outputs.
type Channel struct {
	in1      string
	in2      string
	duty     string
	periodNs int64
}

// Config locates the sysfs trees; zero values take the kernel defaults.
type Config struct {
	GPIORoot string
	PWMRoot  string
	PWMHz    int
}

// Open exports the GPIO lines and PWM channel, sets directions and the
// PWM period, and enables the channel at zero duty.
func Open(cfg Config, p Pins) (*Channel, error) {
	if cfg.GPIORoot == "" {
		cfg.GPIORoot = DefaultGPIORoot
	}
	if cfg.PWMRoot == "" {
		cfg.PWMRoot = DefaultPWMRoot
	}
	if cfg.PWMHz <= 0 {
		cfg.PWMHz = DefaultPWMHz
	}

	for _, pin := range []int{p.In1, p.In2} {
		if err := exportIfNeeded(
			filepath.Join(cfg.GPIORoot, "export"),
			filepath.Join(cfg.GPIORoot, fmt.Sprintf("gpio%d", pin)),
			pin,
		); err != nil {
			return nil, err
		}
		if err := writeFile(filepath.Join(cfg.GPIORoot, fmt.Sprintf("gpio%d", pin), "direction"), "out"); err != nil {
			return nil, err
		}
	}

	chipDir := filepath.Join(cfg.PWMRoot, fmt.Sprintf("pwmchip%d", p.PWMChip))
	pwmDir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", p.PWMChannel))
	if err := exportIfNeeded(filepath.Join(chipDir, "export"), pwmDir, p.PWMChannel); err != nil {
		return nil, err
	}

	periodNs := int64(time.Second) / int64(cfg.PWMHz)
	if err := writeFile(filepath.Join(pwmDir, "period"), strconv.FormatInt(periodNs, 10)); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(pwmDir, "duty_cycle"), "0"); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(pwmDir, "enable"), "1"); err != nil {
		return nil, err
	}

	return &Channel{
		in1:      filepath.Join(cfg.GPIORoot, fmt.Sprintf("gpio%d", p.In1), "value"),
		in2:      filepath.Join(cfg.GPIORoot, fmt.Sprintf("gpio%d", p.In2), "value"),
		duty:     filepath.Join(pwmDir, "duty_cycle"),
		periodNs: periodNs,
	}, nil
}

// Set writes direction lines first, then duty, so a direction flip
// never rides on the old drive strength.
func (c *Channel) Set(forward, reverse bool, duty uint16) error {
	if err := writeFile(c.in1, boolValue(forward)); err != nil {
		return fmt.Errorf("set in1: %w", err)
	}
	if err := writeFile(c.in2, boolValue(reverse)); err != nil {
		return fmt.Errorf("set in2: %w", err)
	}
	dutyNs := c.periodNs * int64(duty) / dutyMax
	if err := writeFile(c.duty, strconv.FormatInt(dutyNs, 10)); err != nil {
		return fmt.Errorf("set duty: %w", err)
	}
	return nil
}

func exportIfNeeded(exportPath, nodeDir string, id int) error {
	if _, err := os.Stat(nodeDir); err == nil {
		return nil
	}
	if err := writeFile(exportPath, strconv.Itoa(id)); err != nil {
		return fmt.Errorf("export %d: %w", id, err)
	}
	return nil
}

func writeFile(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
