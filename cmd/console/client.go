package main

import (
	"net"
	"sync"
	"time"

	"github.com/Deblin-Mallick/RoboApp/pkg/protocol"
)

// robotLink is the console's half of the command protocol: it frames
// outgoing commands and deframes incoming acknowledgements. Connection
// loss requires a full reconnect; there is no session to resume.
type robotLink struct {
	mu   sync.Mutex
	conn net.Conn
	acks chan ackMsg
}

type ackMsg struct {
	id int64
	at time.Time
}

func dialRobot(addr string) (*robotLink, error) {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return nil, err
	}
	l := &robotLink{
		conn: conn,
		acks: make(chan ackMsg, 16),
	}
	go l.readAcks()
	return l, nil
}

func (l *robotLink) send(cmd protocol.MotorCommand) error {
	frame, err := protocol.FrameCommand(cmd)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err = l.conn.Write(frame)
	return err
}

func (l *robotLink) readAcks() {
	defer close(l.acks)
	var d protocol.Deframer
	buf := make([]byte, 256)
	for {
		n, err := l.conn.Read(buf)
		if n > 0 {
			d.Push(buf[:n])
			for {
				payload, derr := d.Next()
				if derr != nil || payload == nil {
					break
				}
				id, aerr := protocol.DecodeAck(payload)
				if aerr != nil {
					continue
				}
				select {
				case l.acks <- ackMsg{id: id, at: time.Now()}:
				default:
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (l *robotLink) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.Close()
}

// mixWheels converts throttle/steering into the four wheel targets
// using tank-drive differential mixing, normalized so neither side
// exceeds full scale.
func mixWheels(throttle, steering float64) protocol.MotorCommand {
	left := throttle + steering
	right := throttle - steering

	max := 1.0
	if v := abs(left); v > max {
		max = v
	}
	if v := abs(right); v > max {
		max = v
	}
	left /= max
	right /= max

	return protocol.MotorCommand{LF: left, LR: left, RF: right, RR: right}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
