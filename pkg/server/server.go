// Package server owns the command link: a TCP service that accepts one
// operator client at a time, reassembles command frames, dispatches
// them to the motors, and feeds the hardware watchdog. Faults at the
// client level drop the client; faults at the listener level rebuild
// the listener; nothing here exits the process.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Deblin-Mallick/RoboApp/pkg/drive"
	"github.com/Deblin-Mallick/RoboApp/pkg/protocol"
	"github.com/Deblin-Mallick/RoboApp/pkg/telemetry"
	"github.com/Deblin-Mallick/RoboApp/pkg/watchdog"
)

const (
	// DefaultAddr is the fixed command port the robot listens on.
	DefaultAddr = ":65432"
	// PollInterval bounds every accept and read wait, which keeps the
	// loop cadence (and therefore the watchdog feed rate) near the
	// original firmware's 10 ms tick.
	PollInterval = 10 * time.Millisecond
	// InactivityTimeout drops a client that has sent nothing at all.
	InactivityTimeout = 30 * time.Second
	// ShutdownAckDelay gives the acknowledgement a chance to flush
	// before a shutdown directive resets the device.
	ShutdownAckDelay = 250 * time.Millisecond

	relistenInterval = 1 * time.Second
	relistenMax      = 30 * time.Second
	ackWriteTimeout  = 1 * time.Second
)

// errRestart propagates a restart directive up to Run, which tears the
// listener down and re-enters the listening state.
var errRestart = errors.New("restart directive")

// Resetter performs the full device reset a shutdown directive asks
// for. On embedded targets this pokes the reset controller; the robotd
// default exits with a distinct code for the supervisor to act on.
type Resetter interface {
	Reset() error
}

// ResetFunc adapts a function to the Resetter interface.
type ResetFunc func() error

func (f ResetFunc) Reset() error { return f() }

// Server is the connection service. It is single-client: while an
// operator is attached the listener is not polled, so further
// connection attempts wait in the backlog until the active client
// drops; they are refused service, never multiplexed.
type Server struct {
	addr  string
	state *drive.State
	bank  *drive.Bank
	dog   watchdog.Feeder
	hub   *telemetry.Hub
	log   hclog.Logger
	reset Resetter

	poll       time.Duration
	inactivity time.Duration
	relisten   time.Duration
	ackDelay   time.Duration

	deframer  protocol.Deframer
	dogFailed bool

	mu    sync.Mutex
	bound net.Addr
}

type Option func(*Server)

// WithPollInterval overrides the accept/read poll bound; used by tests.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithInactivityTimeout overrides the silent-client timeout; used by tests.
func WithInactivityTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.inactivity = d
		}
	}
}

// WithRelistenInterval overrides the base delay before rebuilding a
// failed listener.
func WithRelistenInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.relisten = d
		}
	}
}

// WithResetter installs the device-reset capability invoked by the
// shutdown directive.
func WithResetter(r Resetter) Option {
	return func(s *Server) {
		s.reset = r
	}
}

// WithShutdownAckDelay overrides the pre-reset flush delay; used by tests.
func WithShutdownAckDelay(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.ackDelay = d
		}
	}
}

func New(addr string, state *drive.State, bank *drive.Bank, dog watchdog.Feeder, hub *telemetry.Hub, log hclog.Logger, opts ...Option) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:       addr,
		state:      state,
		bank:       bank,
		dog:        dog,
		hub:        hub,
		log:        log,
		poll:       PollInterval,
		inactivity: InactivityTimeout,
		relisten:   relistenInterval,
		ackDelay:   ShutdownAckDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BoundAddr reports the listener's actual address once Run has bound
// it, or nil before then.
func (s *Server) BoundAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Run is the outer supervisory loop: (re)build the listener, serve it
// until a fault or restart directive, repeat. It returns only when the
// context ends.
func (s *Server) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ln, err := net.Listen("tcp", s.addr)
		if err != nil {
			s.log.Error("listen failed", "addr", s.addr, "error", err)
			attempt++
			s.sleepBackoff(ctx, attempt)
			continue
		}
		s.setBound(ln.Addr())
		s.log.Info("command link listening", "addr", ln.Addr().String())
		attempt = 0

		err = s.serve(ctx, ln.(*net.TCPListener))
		_ = ln.Close()
		s.setBound(nil)

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, errRestart):
			s.log.Info("restarting connection subsystem on operator directive")
			s.hub.Publish(telemetry.Event{Kind: telemetry.KindLinkRestart, Detail: "restart directive"})
		default:
			s.log.Error("server loop fault, re-establishing link", "error", err)
			s.hub.Publish(telemetry.Event{Kind: telemetry.KindLinkRestart, Detail: err.Error()})
			s.sleepBackoff(ctx, 1)
		}
	}
}

func (s *Server) setBound(addr net.Addr) {
	s.mu.Lock()
	s.bound = addr
	s.mu.Unlock()
}

// serve runs the per-client poll loop. Every iteration feeds the
// watchdog, then either polls the listener (no client) or drains the
// client socket and runs the frame state machine.
func (s *Server) serve(ctx context.Context, ln *net.TCPListener) error {
	var client net.Conn
	var lastData time.Time
	defer func() {
		if client != nil {
			_ = client.Close()
		}
	}()

	s.deframer.Reset()
	readBuf := make([]byte, 4096)

	for ctx.Err() == nil {
		s.feedDog()

		if client == nil {
			_ = ln.SetDeadline(time.Now().Add(s.poll))
			conn, err := ln.Accept()
			if err != nil {
				if isTimeout(err) {
					continue
				}
				return fmt.Errorf("accept: %w", err)
			}
			client = conn
			lastData = time.Now()
			s.deframer.Reset()
			s.log.Info("client connected", "remote", conn.RemoteAddr().String())
			s.hub.Publish(telemetry.Event{
				Kind:   telemetry.KindClientConnected,
				Detail: conn.RemoteAddr().String(),
			})
			continue
		}

		_ = client.SetReadDeadline(time.Now().Add(s.poll))
		n, err := client.Read(readBuf)
		if n > 0 {
			lastData = time.Now()
			s.deframer.Push(readBuf[:n])
			if derr := s.dispatch(client); derr != nil {
				_ = client.Close()
				return derr
			}
		}
		if err != nil && !isTimeout(err) {
			if errors.Is(err, io.EOF) {
				s.dropClient(&client, "client disconnected", false)
			} else {
				s.dropClient(&client, fmt.Sprintf("client fault: %v", err), true)
			}
			continue
		}

		if time.Since(lastData) > s.inactivity {
			s.dropClient(&client, "inactivity timeout", true)
		}
	}
	return ctx.Err()
}

// dispatch runs the frame state machine over everything buffered so
// far. Malformed frames are dropped and the stream continues; only a
// directive stops dispatch by design.
func (s *Server) dispatch(client net.Conn) error {
	for {
		payload, err := s.deframer.Next()
		if err != nil {
			// Invalid declared length: the deframer already discarded the
			// buffer, the connection stays up.
			s.log.Warn("dropping invalid frame", "error", err)
			continue
		}
		if payload == nil {
			return nil
		}

		cmd, err := protocol.DecodeCommand(payload)
		if err != nil {
			s.log.Warn("discarding malformed command", "error", err)
			continue
		}

		if cmd.Directive != "" {
			switch cmd.Directive {
			case protocol.DirectiveRestart:
				s.log.Info("restart directive received")
				return errRestart
			case protocol.DirectiveShutdown:
				return s.handleShutdown(client, cmd)
			default:
				s.log.Warn("ignoring unknown directive", "directive", cmd.Directive)
				continue
			}
		}

		wheels := s.state.Apply(cmd)
		if err := s.bank.Apply(wheels); err != nil {
			s.log.Error("motor write failed", "error", err)
		}
		if cmd.HasCmdID {
			if err := s.writeAck(client, cmd.CmdID); err != nil {
				// Outputs are already applied; a lost ack only costs the
				// operator one latency sample.
				s.log.Debug("ack send failed", "cmd_id", cmd.CmdID, "error", err)
			}
		}

		ev := telemetry.Event{
			Kind:   telemetry.KindCommand,
			Wheels: &telemetry.WheelValues{LF: wheels.LF, LR: wheels.LR, RF: wheels.RF, RR: wheels.RR},
		}
		if cmd.HasCmdID {
			id := cmd.CmdID
			ev.CmdID = &id
		}
		s.hub.Publish(ev)
	}
}

func (s *Server) handleShutdown(client net.Conn, cmd protocol.MotorCommand) error {
	s.log.Warn("shutdown directive received, resetting device")
	if cmd.HasCmdID {
		if err := s.writeAck(client, cmd.CmdID); err != nil {
			s.log.Debug("shutdown ack send failed", "error", err)
		}
	}
	time.Sleep(s.ackDelay)
	if s.reset != nil {
		if err := s.reset.Reset(); err != nil {
			s.log.Error("device reset failed", "error", err)
		}
	}
	// A real reset never returns; if it did (or none is installed),
	// fall back to restarting the connection subsystem.
	return errRestart
}

func (s *Server) writeAck(client net.Conn, id int64) error {
	frame, err := protocol.FrameAck(id)
	if err != nil {
		return err
	}
	_ = client.SetWriteDeadline(time.Now().Add(ackWriteTimeout))
	if _, err := client.Write(frame); err != nil {
		return fmt.Errorf("write ack: %w", err)
	}
	return nil
}

func (s *Server) dropClient(client *net.Conn, reason string, warn bool) {
	if *client == nil {
		return
	}
	remote := (*client).RemoteAddr().String()
	_ = (*client).Close()
	*client = nil
	s.deframer.Reset()

	if warn {
		s.log.Warn("dropping client", "remote", remote, "reason", reason)
	} else {
		s.log.Info(reason, "remote", remote)
	}
	s.hub.Publish(telemetry.Event{
		Kind:   telemetry.KindClientDisconnected,
		Detail: reason,
	})
}

func (s *Server) feedDog() {
	err := s.dog.Feed()
	if err != nil && !s.dogFailed {
		s.dogFailed = true
		s.log.Error("watchdog feed failed", "error", err)
		return
	}
	if err == nil {
		s.dogFailed = false
	}
}

func (s *Server) sleepBackoff(ctx context.Context, attempt int) {
	wait := s.relisten * time.Duration(attempt)
	if wait > relistenMax {
		wait = relistenMax
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// A deadline expiring on a non-blocking poll is the normal idle case,
// never an error worth logging.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
