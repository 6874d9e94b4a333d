// Package config loads the robotd TOML configuration. Only deployment
// concerns live here: addresses, device paths, log output. Behavioral
// constants (deadzone, minimum duty, staleness and inactivity timeouts)
// are fixed in their owning packages to preserve control behavior
// across installs.
package config

import (
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/Deblin-Mallick/RoboApp/pkg/hw"
)

const DefaultConfigPath = "/etc/roboapp/robotd.toml"

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Motors    MotorsConfig    `toml:"motors"`
	Watchdog  WatchdogConfig  `toml:"watchdog"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	// Addr is the command link listen address.
	Addr string `toml:"addr"`
}

type MotorsConfig struct {
	// Driver selects the output binding: "sysfs" for real GPIO/PWM,
	// "none" to run the control loop with discarded writes.
	Driver string  `toml:"driver"`
	PWMHz  int     `toml:"pwm_hz"`
	LF     hw.Pins `toml:"lf"`
	LR     hw.Pins `toml:"lr"`
	RF     hw.Pins `toml:"rf"`
	RR     hw.Pins `toml:"rr"`
}

type WatchdogConfig struct {
	// Device is the watchdog device node. Empty disables hardware
	// watchdog feeding (development hosts).
	Device string `toml:"device"`
}

type TelemetryConfig struct {
	// WSAddr serves the websocket status stream. Empty disables it.
	WSAddr string `toml:"ws_addr"`
	// LogPath appends JSONL status events to a file. Empty disables it.
	LogPath string `toml:"log_path"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":65432",
		},
		Motors: MotorsConfig{
			Driver: "none",
			PWMHz:  hw.DefaultPWMHz,
			// Pin map carried over from the reference wiring.
			LF: hw.Pins{In1: 16, In2: 17, PWMChannel: 0},
			LR: hw.Pins{In1: 19, In2: 20, PWMChannel: 1},
			RF: hw.Pins{In1: 13, In2: 14, PWMChannel: 2},
			RR: hw.Pins{In1: 10, In2: 11, PWMChannel: 3},
		},
		Telemetry: TelemetryConfig{
			WSAddr: "",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadOrDefault reads the config at path, falling back to defaults when
// the file does not exist. The second result reports whether a file was
// found.
func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, false, nil
		}
		return Config{}, false, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, true, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

func (cfg *Config) Validate() error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	switch cfg.Motors.Driver {
	case "none", "sysfs":
	default:
		return fmt.Errorf("unknown motors.driver %q", cfg.Motors.Driver)
	}
	if cfg.Motors.PWMHz <= 0 {
		return fmt.Errorf("motors.pwm_hz must be positive")
	}
	switch cfg.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", cfg.Log.Level)
	}
	return nil
}

func (cfg *Config) normalize() {
	def := Default()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Motors.Driver == "" {
		cfg.Motors.Driver = def.Motors.Driver
	}
	if cfg.Motors.PWMHz <= 0 {
		cfg.Motors.PWMHz = def.Motors.PWMHz
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
}
