package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrNoSubscriber is returned when no UI is attached to the stream.
var ErrNoSubscriber = errors.New("no ui stream connected")

// Stream is the single agent → UI channel. The newest connection wins; the
// previous one is closed.
type Stream struct {
	log zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex
}

// NewStream creates an empty Stream.
func NewStream(log zerolog.Logger) *Stream {
	return &Stream{log: log.With().Str("component", "ui_stream").Logger()}
}

// Attach makes conn the subscriber and reports whether one was replaced.
func (s *Stream) Attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()

	if prev == nil {
		return false
	}

	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "replaced by a newer connection")
	_ = prev.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()
	prev.Close()

	s.log.Info().Msg("UI stream replaced by a newer connection")
	return true
}

// Detach forgets conn if it is still the subscriber.
func (s *Stream) Detach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
}

// Connected reports whether a UI is attached.
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send writes v to the subscriber.
func (s *Stream) Send(v any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNoSubscriber
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return WriteTyped(conn, v)
}

// Publish is Send for notifications nobody waits on: failures are logged.
func (s *Stream) Publish(v any) {
	if err := s.Send(v); err != nil && !errors.Is(err, ErrNoSubscriber) {
		s.log.Debug().Err(err).Msg("UI stream write failed")
	}
}
