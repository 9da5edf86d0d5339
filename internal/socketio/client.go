package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrNotConnected       = errors.New("socketio: not connected")
	ErrClosed             = errors.New("socketio: client closed")
	ErrReconnectExhausted = errors.New("socketio: reconnect attempts exhausted")
	ErrServerDisconnect   = errors.New("socketio: disconnected by server")
)

// State is the connection state reported to the Handler.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Handler receives inbound events and connection state changes. Calls are
// made from a single goroutine, in the order frames were received.
type Handler interface {
	HandleEvent(name string, payload json.RawMessage)
	HandleState(state State, err error)
}

// Options configures a Client.
type Options struct {
	URL       string
	Path      string
	Namespace string
	// Auth is sent with the namespace connect packet. Re-evaluated on every
	// (re)connection attempt.
	Auth   func() any
	Header http.Header

	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
}

func (o *Options) defaults() {
	if o.Path == "" {
		o.Path = "/socket.io/"
	}
	if o.Namespace == "" {
		o.Namespace = "/"
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 5
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
}

// Client is a single Socket.IO connection with bounded, fixed-delay
// reconnection. Application-level errors are never retried here.
type Client struct {
	opts    Options
	handler Handler
	log     zerolog.Logger
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	open   OpenInfo
	state  State
	closed bool
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
}

// New creates a Client. Nothing is dialled until Connect.
func New(opts Options, handler Handler, log zerolog.Logger) *Client {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:    opts,
		handler: handler,
		log:     log.With().Str("component", "socketio").Logger(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SID returns the Engine.IO session id of the live connection.
func (c *Client) SID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open.SID
}

// Connect dials the server, retrying transport failures with the configured
// policy. A connect error from the server is not retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setState(StateConnecting, nil)
	conn, info, err := c.dialWithRetry(ctx)
	if err != nil {
		c.setState(StateDisconnected, err)
		return err
	}
	c.attach(conn, info)
	return nil
}

// Emit sends an event with a single payload argument.
func (c *Client) Emit(name string, payload any) error {
	frame, err := EncodeEvent(c.opts.Namespace, name, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, frame)
}

// Close disconnects from the namespace and stops reconnection. It is safe to
// call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if conn == nil {
		return nil
	}
	_ = c.write(conn, EncodeDisconnect(c.opts.Namespace))
	return conn.Close()
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.handler.HandleState(state, err)
}

func (c *Client) attach(conn *websocket.Conn, info OpenInfo) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.open = info
	c.mu.Unlock()

	c.setState(StateConnected, nil)
	go c.readLoop(conn, info)
}

func (c *Client) write(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("socketio write: %w", err)
	}
	return nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.ReconnectDelay), uint64(c.opts.ReconnectAttempts-1))
	return backoff.WithContext(b, ctx)
}

func (c *Client) dialWithRetry(ctx context.Context) (*websocket.Conn, OpenInfo, error) {
	var (
		conn    *websocket.Conn
		info    OpenInfo
		attempt int
	)
	op := func() error {
		attempt++
		var err error
		conn, info, err = c.dial(ctx)
		if err == nil {
			return nil
		}
		var rejected *ConnectError
		if errors.As(err, &rejected) {
			return backoff.Permanent(err)
		}
		c.log.Debug().Err(err).Int("attempt", attempt).Msg("Dial attempt failed")
		return err
	}

	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		var rejected *ConnectError
		if errors.As(err, &rejected) || ctx.Err() != nil {
			return nil, OpenInfo{}, err
		}
		return nil, OpenInfo{}, fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
	}
	return conn, info, nil
}

// endpoint builds <url><path>?EIO=4&transport=websocket.
func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("socketio url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(c.opts.Path, "/")
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dial performs one full handshake: websocket upgrade, Engine.IO open and
// namespace connect.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, OpenInfo, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, OpenInfo{}, backoff.Permanent(err)
	}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, c.opts.Header)
	if err != nil {
		return nil, OpenInfo{}, err
	}

	info, err := c.handshake(conn)
	if err != nil {
		conn.Close()
		return nil, OpenInfo{}, err
	}
	return conn, info, nil
}

func (c *Client) handshake(conn *websocket.Conn) (OpenInfo, error) {
	_ = conn.SetReadDeadline(time.Now().Add(c.opts.HandshakeTimeout))

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return OpenInfo{}, fmt.Errorf("read open packet: %w", err)
	}
	typ, body, err := Frame(raw)
	if err != nil {
		return OpenInfo{}, err
	}
	if typ != EngineOpen {
		return OpenInfo{}, fmt.Errorf("%w: expected open, got %q", ErrMalformedPacket, typ)
	}
	info, err := DecodeOpen(body)
	if err != nil {
		return OpenInfo{}, err
	}

	var auth any
	if c.opts.Auth != nil {
		auth = c.opts.Auth()
	}
	connect, err := EncodeConnect(c.opts.Namespace, auth)
	if err != nil {
		return OpenInfo{}, backoff.Permanent(err)
	}
	if err := c.write(conn, connect); err != nil {
		return OpenInfo{}, err
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return OpenInfo{}, fmt.Errorf("await connect ack: %w", err)
		}
		typ, body, err := Frame(raw)
		if err != nil {
			continue
		}
		switch typ {
		case EnginePing:
			if err := c.write(conn, []byte{byte(EnginePong)}); err != nil {
				return OpenInfo{}, err
			}
		case EngineMessage:
			p, err := DecodePacket(body)
			if err != nil {
				return OpenInfo{}, err
			}
			switch p.Type {
			case PacketConnect:
				return info, nil
			case PacketConnectError:
				ce := &ConnectError{}
				if len(p.Data) > 0 {
					_ = json.Unmarshal(p.Data, ce)
				}
				return OpenInfo{}, ce
			}
		case EngineClose:
			return OpenInfo{}, ErrServerDisconnect
		}
	}
}

func (c *Client) readDeadline(info OpenInfo) time.Time {
	window := time.Duration(info.PingInterval+info.PingTimeout) * time.Millisecond
	if window <= 0 {
		window = 45 * time.Second
	}
	return time.Now().Add(window)
}

func (c *Client) readLoop(conn *websocket.Conn, info OpenInfo) {
	for {
		_ = conn.SetReadDeadline(c.readDeadline(info))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, err)
			return
		}

		typ, body, err := Frame(raw)
		if err != nil {
			continue
		}

		switch typ {
		case EnginePing:
			if err := c.write(conn, []byte{byte(EnginePong)}); err != nil {
				c.log.Debug().Err(err).Msg("Pong failed")
			}
		case EngineClose:
			c.handleDrop(conn, ErrServerDisconnect)
			return
		case EngineMessage:
			if stop := c.dispatch(conn, body); stop {
				return
			}
		}
	}
}

// dispatch handles one Socket.IO packet and reports whether the read loop
// must stop.
func (c *Client) dispatch(conn *websocket.Conn, body []byte) bool {
	p, err := DecodePacket(body)
	if err != nil {
		c.log.Warn().Err(err).Msg("Dropping undecodable packet")
		return false
	}
	if p.Namespace != c.opts.Namespace {
		return false
	}

	switch p.Type {
	case PacketEvent:
		name, payload, err := p.Event()
		if err != nil {
			c.log.Warn().Err(err).Msg("Dropping malformed event")
			return false
		}
		c.handler.HandleEvent(name, payload)
	case PacketDisconnect:
		c.detach(conn)
		conn.Close()
		c.setState(StateDisconnected, ErrServerDisconnect)
		return true
	}
	return false
}

// detach forgets conn if it is still the live connection. It reports whether
// the client is closed.
func (c *Client) detach(conn *websocket.Conn) (closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	return c.closed
}

func (c *Client) handleDrop(conn *websocket.Conn, cause error) {
	if closed := c.detach(conn); closed {
		c.setState(StateDisconnected, nil)
		return
	}
	conn.Close()

	c.log.Warn().Err(cause).Msg("Connection lost, reconnecting")
	c.setState(StateReconnecting, cause)

	next, info, err := c.dialWithRetry(c.ctx)
	if err != nil {
		if c.ctx.Err() != nil {
			c.setState(StateDisconnected, nil)
			return
		}
		c.log.Error().Err(err).Msg("Reconnect failed")
		c.setState(StateDisconnected, err)
		return
	}
	c.attach(next, info)
}
