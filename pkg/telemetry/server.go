package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

// Server streams hub events as JSON text frames over a websocket, one
// event per message. It is a debug surface: any number of viewers may
// attach, and a stalled viewer is dropped rather than buffered.
type Server struct {
	addr    string
	hub     *Hub
	log     hclog.Logger
	sendBuf int

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewServer(addr string, hub *Hub, log hclog.Logger) *Server {
	return &Server{
		addr:    addr,
		hub:     hub,
		log:     log,
		sendBuf: 64,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run serves until the context ends. The listen error is returned so
// the caller can log a misconfigured address; viewer-level errors are
// handled per connection.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)

	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	sub := s.hub.Subscribe()
	go s.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, s.sendBuf)}
	s.addClient(c)
	s.log.Debug("telemetry viewer attached", "remote", conn.RemoteAddr())

	go c.writeLoop()
	// Viewers send nothing meaningful; the read loop only notices close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.removeClient(c)
	s.log.Debug("telemetry viewer detached", "remote", conn.RemoteAddr())
}

func (s *Server) broadcastLoop(ctx context.Context, in <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			s.broadcast(ev)
		}
	}
}

func (s *Server) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Viewer is not keeping up; it will catch the next event.
		}
	}
}

func (s *Server) addClient(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

// removeClient takes the client out of the broadcast set and closes its
// send channel in the same critical section. broadcast holds the same
// lock, so it can never reach a closed channel.
func (s *Server) removeClient(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	c.once.Do(func() { close(c.send) })
	_ = c.conn.Close()
}

func (c *wsClient) writeLoop() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}
