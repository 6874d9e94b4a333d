// robotd is the onboard controller daemon: it owns the command link,
// the four wheel motors, the safety monitor, and the hardware watchdog
// feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/hashicorp/go-hclog"

	"github.com/Deblin-Mallick/RoboApp/pkg/config"
	"github.com/Deblin-Mallick/RoboApp/pkg/drive"
	"github.com/Deblin-Mallick/RoboApp/pkg/hw"
	"github.com/Deblin-Mallick/RoboApp/pkg/motor"
	"github.com/Deblin-Mallick/RoboApp/pkg/safety"
	"github.com/Deblin-Mallick/RoboApp/pkg/server"
	"github.com/Deblin-Mallick/RoboApp/pkg/telemetry"
	"github.com/Deblin-Mallick/RoboApp/pkg/watchdog"
)

// resetExitCode tells the process supervisor that a shutdown directive
// asked for a device reset, as opposed to an orderly stop.
const resetExitCode = 86

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("robotd", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", config.DefaultConfigPath, "TOML config path")
	addr := fs.String("addr", "", "command link listen address (overrides config)")
	wsAddr := fs.String("ws", "", "telemetry websocket address (overrides config)")
	logLevel := fs.String("log-level", "", "trace|debug|info|warn|error (overrides config)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, exists, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "config error:", err)
		return 1
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *wsAddr != "" {
		cfg.Telemetry.WSAddr = *wsAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "config error:", err)
		return 1
	}

	log := hclog.New(&hclog.LoggerOptions{
		Name:   "robotd",
		Level:  hclog.LevelFromString(cfg.Log.Level),
		Output: stdout,
	})
	if !exists {
		log.Info("no config file, using defaults", "path", *configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var dog watchdog.Feeder = watchdog.Noop{}
	if cfg.Watchdog.Device != "" {
		dev, err := watchdog.OpenDevice(cfg.Watchdog.Device)
		if err != nil {
			fmt.Fprintln(stderr, "watchdog error:", err)
			return 1
		}
		defer dev.Close()
		dog = dev
		log.Info("hardware watchdog armed", "device", cfg.Watchdog.Device, "timeout", watchdog.Timeout)
	} else {
		log.Warn("no watchdog device configured, loop-stall containment disabled")
	}

	outputs, err := wheelOutputs(cfg.Motors, log)
	if err != nil {
		fmt.Fprintln(stderr, "motor setup error:", err)
		return 1
	}

	state := drive.NewState()
	bank := drive.NewBank(outputs[0], outputs[1], outputs[2], outputs[3])

	hub := telemetry.NewHub()
	go hub.Run(ctx)

	if cfg.Telemetry.WSAddr != "" {
		ws := telemetry.NewServer(cfg.Telemetry.WSAddr, hub, log.Named("telemetry"))
		go func() {
			if err := ws.Run(ctx); err != nil {
				log.Error("telemetry server failed", "error", err)
			}
		}()
	}
	if cfg.Telemetry.LogPath != "" {
		file, err := os.OpenFile(cfg.Telemetry.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintln(stderr, "telemetry log error:", err)
			return 1
		}
		defer file.Close()
		go telemetry.NewJSONLWriter(file).Consume(ctx, hub.Subscribe())
	}

	monitor := safety.NewMonitor(state, bank, hub, log.Named("safety"))
	go monitor.Run(ctx)

	srv := server.New(cfg.Server.Addr, state, bank, dog, hub, log.Named("server"),
		server.WithResetter(server.ResetFunc(func() error {
			log.Warn("device reset requested by shutdown directive")
			os.Exit(resetExitCode)
			return nil
		})),
	)

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("server stopped", "error", err)
		return 1
	}
	log.Info("robotd stopped")
	return 0
}

// wheelOutputs builds the lf, lr, rf, rr output channels per the
// configured driver.
func wheelOutputs(cfg config.MotorsConfig, log hclog.Logger) ([4]motor.Outputs, error) {
	if cfg.Driver != "sysfs" {
		log.Warn("motor driver disabled, hardware writes discarded", "driver", cfg.Driver)
		return [4]motor.Outputs{
			motor.Discard{}, motor.Discard{}, motor.Discard{}, motor.Discard{},
		}, nil
	}

	hwCfg := hw.Config{PWMHz: cfg.PWMHz}
	var outs [4]motor.Outputs
	for i, wheel := range []struct {
		name string
		pins hw.Pins
	}{
		{"lf", cfg.LF}, {"lr", cfg.LR}, {"rf", cfg.RF}, {"rr", cfg.RR},
	} {
		ch, err := hw.Open(hwCfg, wheel.pins)
		if err != nil {
			return outs, fmt.Errorf("open %s channel: %w", wheel.name, err)
		}
		outs[i] = ch
	}
	return outs, nil
}
