package hw_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/Deblin-Mallick/RoboApp/pkg/hw"
)

// fakeSysfs lays out the gpio/pwm class trees the way the kernel does,
// with export files that tests can inspect.
func fakeSysfs(t *testing.T, pins hw.Pins) hw.Config {
	t.Helper()
	root := t.TempDir()
	gpioRoot := filepath.Join(root, "gpio")
	pwmRoot := filepath.Join(root, "pwm")

	for _, pin := range []int{pins.In1, pins.In2} {
		dir := filepath.Join(gpioRoot, "gpio"+itoa(pin))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	pwmDir := filepath.Join(pwmRoot, "pwmchip0", "pwm0")
	if err := os.MkdirAll(pwmDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return hw.Config{GPIORoot: gpioRoot, PWMRoot: pwmRoot, PWMHz: 1000}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestOpenConfiguresChannel(t *testing.T) {
	pins := hw.Pins{In1: 1, In2: 2, PWMChip: 0, PWMChannel: 0}
	cfg := fakeSysfs(t, pins)

	ch, err := hw.Open(cfg, pins)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	_ = ch

	pwmDir := filepath.Join(cfg.PWMRoot, "pwmchip0", "pwm0")
	if got := readFile(t, filepath.Join(pwmDir, "period")); got != "1000000" {
		t.Fatalf("period = %s, want 1000000 ns for 1 kHz", got)
	}
	if got := readFile(t, filepath.Join(pwmDir, "enable")); got != "1" {
		t.Fatalf("pwm not enabled: %s", got)
	}
	for _, pin := range []int{1, 2} {
		dir := filepath.Join(cfg.GPIORoot, "gpio"+itoa(pin), "direction")
		if got := readFile(t, dir); got != "out" {
			t.Fatalf("gpio%d direction = %s", pin, got)
		}
	}
}

func TestSetWritesDirectionAndScaledDuty(t *testing.T) {
	pins := hw.Pins{In1: 1, In2: 2, PWMChip: 0, PWMChannel: 0}
	cfg := fakeSysfs(t, pins)

	ch, err := hw.Open(cfg, pins)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := ch.Set(true, false, 0xFFFF); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if got := readFile(t, filepath.Join(cfg.GPIORoot, "gpio1", "value")); got != "1" {
		t.Fatalf("in1 = %s, want 1", got)
	}
	if got := readFile(t, filepath.Join(cfg.GPIORoot, "gpio2", "value")); got != "0" {
		t.Fatalf("in2 = %s, want 0", got)
	}
	pwmDuty := filepath.Join(cfg.PWMRoot, "pwmchip0", "pwm0", "duty_cycle")
	if got := readFile(t, pwmDuty); got != "1000000" {
		t.Fatalf("full duty = %s, want whole period", got)
	}

	if err := ch.Set(false, true, 0x7FFF); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got := readFile(t, pwmDuty); got != "499992" {
		t.Fatalf("half duty = %s", got)
	}
}

func TestSetZeroTuple(t *testing.T) {
	pins := hw.Pins{In1: 1, In2: 2, PWMChip: 0, PWMChannel: 0}
	cfg := fakeSysfs(t, pins)

	ch, err := hw.Open(cfg, pins)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := ch.Set(false, false, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	for _, pin := range []int{1, 2} {
		if got := readFile(t, filepath.Join(cfg.GPIORoot, "gpio"+itoa(pin), "value")); got != "0" {
			t.Fatalf("gpio%d = %s, want 0", pin, got)
		}
	}
	if got := readFile(t, filepath.Join(cfg.PWMRoot, "pwmchip0", "pwm0", "duty_cycle")); got != "0" {
		t.Fatalf("duty = %s, want 0", got)
	}
}

func TestOpenMissingTreeFails(t *testing.T) {
	cfg := hw.Config{
		GPIORoot: filepath.Join(t.TempDir(), "gpio"),
		PWMRoot:  filepath.Join(t.TempDir(), "pwm"),
	}
	if _, err := hw.Open(cfg, hw.Pins{In1: 1, In2: 2}); err == nil {
		t.Fatalf("expected error without sysfs trees")
	}
}
