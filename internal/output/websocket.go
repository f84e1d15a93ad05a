package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultWebSocketAddr is the listen address of the WebSocket sink.
	DefaultWebSocketAddr = ":8080"

	// WebSocketPath is the endpoint clients connect to.
	WebSocketPath = "/ws"

	writeWait = 200 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketSink broadcasts JSON readings to every connected client.
type WebSocketSink struct {
	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	server  *http.Server
	logger  *logrus.Logger
	serveWg sync.WaitGroup
}

// NewWebSocketSink creates a sink without starting a listener; see Listen and Handler.
func NewWebSocketSink(logger *logrus.Logger) *WebSocketSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &WebSocketSink{
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger,
	}
}

// Listen serves the sink's handler on addr in the background.
func (s *WebSocketSink) Listen(addr string) error {
	if addr == "" {
		addr = DefaultWebSocketAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(WebSocketPath, s.Handler())
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.serveWg.Add(1)
	go func() {
		defer s.serveWg.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("WebSocket server stopped")
		}
	}()

	s.logger.WithField("addr", ln.Addr().String()).Info("WebSocket output listening")
	return nil
}

// Handler upgrades requests and registers the connection until the client goes away.
func (s *WebSocketSink) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.WithError(err).Debug("WebSocket upgrade failed")
			return
		}
		s.add(conn)
		defer func() {
			s.remove(conn)
			_ = conn.Close()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

// ClientCount returns the number of connected clients.
func (s *WebSocketSink) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Send writes r to every client; clients failing the write are dropped.
func (s *WebSocketSink) Send(_ context.Context, r Reading) error {
	b, err := json.Marshal(newPayload(r))
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	for _, c := range s.snapshot() {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			s.logger.WithError(err).Debug("Dropping WebSocket client")
			_ = c.Close()
			s.remove(c)
		}
	}
	return nil
}

// Close stops the listener and disconnects all clients.
func (s *WebSocketSink) Close() error {
	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = s.server.Shutdown(ctx)
		cancel()
	}
	for _, c := range s.snapshot() {
		_ = c.Close()
		s.remove(c)
	}
	s.serveWg.Wait()
	return err
}

func (s *WebSocketSink) add(c *websocket.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *WebSocketSink) remove(c *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *WebSocketSink) snapshot() []*websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	clients := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		clients = append(clients, c)
	}
	return clients
}
