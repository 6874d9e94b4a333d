// Package telemetry fans out controller status events to debug sinks:
// a websocket stream for the operator console and a JSONL log.
package telemetry

import (
	"context"
	"time"
)

// Kind labels a status event.
type Kind string

const (
	KindCommand            Kind = "command"
	KindSafetyEngaged      Kind = "safety_engaged"
	KindSafetyCleared      Kind = "safety_cleared"
	KindClientConnected    Kind = "client_connected"
	KindClientDisconnected Kind = "client_disconnected"
	KindLinkRestart        Kind = "link_restart"
)

// WheelValues mirrors drive.Wheels for serialization without importing it.
type WheelValues struct {
	LF float64 `json:"lf"`
	LR float64 `json:"lr"`
	RF float64 `json:"rf"`
	RR float64 `json:"rr"`
}

// Event is one controller status update.
type Event struct {
	Kind      Kind         `json:"kind"`
	Timestamp time.Time    `json:"ts"`
	Wheels    *WheelValues `json:"wheels,omitempty"`
	CmdID     *int64       `json:"cmd_id,omitempty"`
	Detail    string       `json:"detail,omitempty"`
}

// Hub distributes events to subscribers. A slow subscriber drops
// events rather than stalling the control path.
type Hub struct {
	broadcast  chan Event
	register   chan chan Event
	unregister chan chan Event
	clients    map[chan Event]struct{}
	clientBuf  int
}

type Option func(*Hub)

func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan Event, size)
		}
	}
}

func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan Event, 256),
		register:   make(chan chan Event),
		unregister: make(chan chan Event),
		clients:    make(map[chan Event]struct{}),
		clientBuf:  64,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case ev := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}
}

func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, h.clientBuf)
	h.register <- ch
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.unregister <- ch
}

// Publish queues an event, dropping it if the hub itself is saturated.
// The control loop must never block on telemetry.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- ev:
	default:
	}
}
