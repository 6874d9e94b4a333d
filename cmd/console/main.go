// console is the thin operator client: keyboard driving over the
// command link, with round-trip latency measured from command
// acknowledgements.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Deblin-Mallick/RoboApp/pkg/protocol"
)

const (
	sendInterval = 50 * time.Millisecond
	controlStep  = 0.1
)

func main() {
	addr := flag.String("addr", "127.0.0.1:65432", "robot command address")
	flag.Parse()

	link, err := dialRobot(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect failed:", err)
		os.Exit(1)
	}
	defer link.close()

	p := tea.NewProgram(newModel(*addr, link))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "console error:", err)
		os.Exit(1)
	}
}

type model struct {
	addr string
	link *robotLink

	throttle float64
	steering float64

	nextID   int64
	inflight map[int64]time.Time
	latency  time.Duration

	packets    int
	rate       float64
	rateWindow time.Time

	sendErr error
	done    bool
}

type tickMsg time.Time

type ackReceived ackMsg

type linkClosed struct{}

func newModel(addr string, link *robotLink) *model {
	return &model{
		addr:       addr,
		link:       link,
		nextID:     1,
		inflight:   make(map[int64]time.Time),
		rateWindow: time.Now(),
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(tick(), m.waitAck())
}

func tick() tea.Cmd {
	return tea.Tick(sendInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *model) waitAck() tea.Cmd {
	return func() tea.Msg {
		ack, ok := <-m.link.acks
		if !ok {
			return linkClosed{}
		}
		return ackReceived(ack)
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.sendCurrent()
		return m, tick()

	case ackReceived:
		if sent, ok := m.inflight[msg.id]; ok {
			m.latency = msg.at.Sub(sent)
			delete(m.inflight, msg.id)
		}
		return m, m.waitAck()

	case linkClosed:
		m.sendErr = fmt.Errorf("link closed, reconnect required")
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "w", "up":
		m.throttle = clampAxis(m.throttle + controlStep)
	case "s", "down":
		m.throttle = clampAxis(m.throttle - controlStep)
	case "a", "left":
		m.steering = clampAxis(m.steering - controlStep)
	case "d", "right":
		m.steering = clampAxis(m.steering + controlStep)
	case " ":
		// Operator stop: zero everything now rather than on next tick.
		m.throttle = 0
		m.steering = 0
		m.sendCurrent()
	case "r":
		m.sendErr = m.link.send(protocol.MotorCommand{Directive: protocol.DirectiveRestart})
	case "x":
		m.sendErr = m.link.send(protocol.MotorCommand{Directive: protocol.DirectiveShutdown})
	case "q", "ctrl+c":
		m.throttle = 0
		m.steering = 0
		m.sendCurrent()
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) sendCurrent() {
	cmd := mixWheels(m.throttle, m.steering)
	cmd.CmdID = m.nextID
	cmd.HasCmdID = true
	m.inflight[m.nextID] = time.Now()
	m.nextID++

	// Cap the inflight table; unanswered ids just lose their sample.
	if len(m.inflight) > 64 {
		oldest := int64(0)
		for id := range m.inflight {
			if oldest == 0 || id < oldest {
				oldest = id
			}
		}
		delete(m.inflight, oldest)
	}

	if err := m.link.send(cmd); err != nil {
		m.sendErr = err
		return
	}
	m.sendErr = nil
	m.packets++
	if since := time.Since(m.rateWindow); since >= time.Second {
		m.rate = float64(m.packets) / since.Seconds()
		m.packets = 0
		m.rateWindow = time.Now()
	}
}

func (m *model) View() string {
	cmd := mixWheels(m.throttle, m.steering)
	status := "ok"
	if m.sendErr != nil {
		status = m.sendErr.Error()
	}
	return fmt.Sprintf(
		"RoboApp console - %s\n\n"+
			"  throttle %+0.2f   steering %+0.2f\n"+
			"  wheels   lf %+0.2f  lr %+0.2f  rf %+0.2f  rr %+0.2f\n\n"+
			"  latency  %s\n"+
			"  rate     %.1f pkt/s\n"+
			"  status   %s\n\n"+
			"w/s throttle  a/d steering  space stop  r restart  x shutdown  q quit\n",
		m.addr,
		m.throttle, m.steering,
		cmd.LF, cmd.LR, cmd.RF, cmd.RR,
		m.latency, m.rate, status,
	)
}

func clampAxis(v float64) float64 {
	return protocol.Clamp(v)
}
