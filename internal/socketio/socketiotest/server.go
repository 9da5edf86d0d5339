// Package socketiotest provides an in-process Socket.IO server for tests.
package socketiotest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/stemsi/intervue/internal/socketio"
)

// Event is an event received from a client.
type Event struct {
	Name    string
	Payload json.RawMessage
	Auth    json.RawMessage
}

// EventFunc reacts to a received event, typically by emitting a reply on conn.
type EventFunc func(conn *Conn, ev Event)

// Server speaks just enough Engine.IO v4 / Socket.IO v5 over WebSocket to
// exercise a client.
type Server struct {
	*httptest.Server

	// RejectConnect, when non-empty, answers namespace connects with a
	// CONNECT_ERROR carrying this message.
	RejectConnect atomic.Value

	onEvent  EventFunc
	upgrader websocket.Upgrader
	events   chan Event
	dials    atomic.Int32

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// Conn is one connected client.
type Conn struct {
	ws   *websocket.Conn
	auth json.RawMessage
	mu   sync.Mutex
}

// Emit sends an event to this client.
func (c *Conn) Emit(name string, payload any) error {
	frame, err := socketio.EncodeEvent("/", name, payload)
	if err != nil {
		return err
	}
	return c.send(frame)
}

// Auth returns the auth payload sent with the namespace connect.
func (c *Conn) Auth() json.RawMessage { return c.auth }

func (c *Conn) send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// NewServer starts a server. onEvent may be nil.
func NewServer(onEvent EventFunc) *Server {
	s := &Server{
		onEvent: onEvent,
		events:  make(chan Event, 64),
		conns:   make(map[*Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.RejectConnect.Store("")
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// WebSocketURL is the base URL a client should dial.
func (s *Server) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// Events yields every event received, in arrival order.
func (s *Server) Events() <-chan Event { return s.events }

// Dials counts websocket upgrades, including failed handshakes.
func (s *Server) Dials() int { return int(s.dials.Load()) }

// Connections returns the number of clients past the namespace connect.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Emit broadcasts an event to every connected client.
func (s *Server) Emit(name string, payload any) {
	for _, c := range s.snapshot() {
		_ = c.Emit(name, payload)
	}
}

// Ping sends an Engine.IO ping to every client.
func (s *Server) Ping() {
	for _, c := range s.snapshot() {
		_ = c.send([]byte{byte(socketio.EnginePing)})
	}
}

// Drop closes every connection without a close handshake, like a network
// failure.
func (s *Server) Drop() {
	for _, c := range s.snapshot() {
		c.ws.NetConn().Close()
	}
}

// Kick sends a namespace disconnect to every client.
func (s *Server) Kick() {
	for _, c := range s.snapshot() {
		_ = c.send(socketio.EncodeDisconnect("/"))
	}
}

func (s *Server) snapshot() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "unsupported transport", http.StatusBadRequest)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	n := s.dials.Add(1)
	conn := &Conn{ws: ws}
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		ws.Close()
	}()

	open := fmt.Sprintf(`0{"sid":"sid-%d","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`, n)
	if err := conn.send([]byte(open)); err != nil {
		return
	}

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		typ, body, err := socketio.Frame(raw)
		if err != nil || typ != socketio.EngineMessage {
			continue
		}
		p, err := socketio.DecodePacket(body)
		if err != nil {
			continue
		}

		switch p.Type {
		case socketio.PacketConnect:
			if msg, _ := s.RejectConnect.Load().(string); msg != "" {
				reply, _ := json.Marshal(map[string]string{"message": msg})
				_ = conn.send(append([]byte("44"), reply...))
				continue
			}
			conn.auth = p.Data
			s.mu.Lock()
			s.conns[conn] = struct{}{}
			s.mu.Unlock()
			_ = conn.send([]byte(fmt.Sprintf(`40{"sid":"ns-%d"}`, n)))
		case socketio.PacketDisconnect:
			return
		case socketio.PacketEvent:
			name, payload, err := p.Event()
			if err != nil {
				continue
			}
			ev := Event{Name: name, Payload: payload, Auth: conn.auth}
			select {
			case s.events <- ev:
			default:
			}
			if s.onEvent != nil {
				s.onEvent(conn, ev)
			}
		}
	}
}
