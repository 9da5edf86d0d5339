// Package realtime speaks the interview protocol with the AI interview server.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/identity"
	"github.com/stemsi/intervue/internal/metrics"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/socketio"
)

// Guard errors. None of them emit anything to the server.
var (
	ErrNotJoined         = errors.New("interview room not joined")
	ErrStaleQuestion     = errors.New("answer does not match the current question")
	ErrAnswerInFlight    = errors.New("an answer is already being analyzed")
	ErrSessionOver       = errors.New("interview session is over")
	ErrSessionTerminated = errors.New("interview session was terminated")
)

// Phase is the per-connection protocol state.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseJoined
	PhaseAwaitingQuestion
	PhaseAwaitingAnswer
	PhaseAwaitingAnswerAnalysis
	PhaseCompleted
	PhaseTerminated
)

var phaseNames = [...]string{
	PhaseDisconnected:           "disconnected",
	PhaseConnecting:             "connecting",
	PhaseConnected:              "connected",
	PhaseJoined:                 "joined",
	PhaseAwaitingQuestion:       "awaiting_question",
	PhaseAwaitingAnswer:         "awaiting_answer",
	PhaseAwaitingAnswerAnalysis: "awaiting_answer_analysis",
	PhaseCompleted:              "completed",
	PhaseTerminated:             "terminated",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Absorbing reports whether no further transition is possible.
func (p Phase) Absorbing() bool {
	return p == PhaseCompleted || p == PhaseTerminated
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Handler receives every inbound event, in arrival order, from one goroutine.
type Handler interface {
	HandleRealtime(ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event)

func (f HandlerFunc) HandleRealtime(ev Event) { f(ev) }

// Options configures a Client.
type Options struct {
	Transport socketio.Options
	// Token returns the current access token. It is read on every connection
	// attempt.
	Token func() string
}

// Client owns the single realtime connection of one interview session.
type Client struct {
	opts    Options
	handler Handler
	log     zerolog.Logger
	sio     *socketio.Client

	mu           sync.Mutex
	interviewID  string
	identity     identity.Identity
	phase        Phase
	generating   bool
	analyzing    bool
	questionID   string
	terminated   bool
	reconnecting bool
}

// NewClient creates a Client for one interview. Nothing is dialled until
// Connect.
func NewClient(opts Options, handler Handler, log zerolog.Logger) *Client {
	c := &Client{
		opts:    opts,
		handler: handler,
		log:     log.With().Str("component", "realtime").Logger(),
	}

	transport := opts.Transport
	transport.Auth = func() any {
		if tok := c.token(); tok != "" {
			return map[string]string{"token": tok}
		}
		return nil
	}
	c.sio = socketio.New(transport, c, log)
	return c
}

func (c *Client) token() string {
	if c.opts.Token == nil {
		return ""
	}
	return c.opts.Token()
}

// Connect opens the transport and joins the room for interviewID.
func (c *Client) Connect(ctx context.Context, interviewID string) error {
	c.mu.Lock()
	if c.phase.Absorbing() {
		c.mu.Unlock()
		return ErrSessionOver
	}
	c.interviewID = interviewID
	c.mu.Unlock()

	if err := c.sio.Connect(ctx); err != nil {
		return err
	}
	return c.join()
}

// join resolves the identity for this connection attempt and enters the room.
func (c *Client) join() error {
	c.mu.Lock()
	interviewID := c.interviewID
	c.mu.Unlock()

	id := identity.Resolve(c.log, c.token(), interviewID)
	if err := c.sio.Emit(EmitJoin, joinPayload{InterviewID: interviewID, UserID: id.UserID}); err != nil {
		return err
	}

	c.mu.Lock()
	c.identity = id
	if !c.phase.Absorbing() {
		c.phase = PhaseJoined
	}
	c.mu.Unlock()

	c.log.Info().
		Str("interview_id", interviewID).
		Stringer("user", id).
		Msg("Joined interview room")
	return nil
}

// RequestFirstQuestion asks the server for the first question. While a
// request is outstanding further calls are no-ops.
func (c *Client) RequestFirstQuestion() error {
	c.mu.Lock()
	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.generating {
		c.mu.Unlock()
		return nil
	}
	c.generating = true
	c.phase = PhaseAwaitingQuestion
	interviewID := c.interviewID
	c.mu.Unlock()

	if err := c.sio.Emit(EmitGenerateFirst, interviewPayload{InterviewID: interviewID}); err != nil {
		c.mu.Lock()
		c.generating = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// SubmitAnswer sends the answer to the current question. Nothing is emitted
// when questionID is stale, an answer is in flight or the session is over.
func (c *Client) SubmitAnswer(questionID, answer string, proctoring model.ProctoringViolations) error {
	c.mu.Lock()
	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.questionID == "" || c.questionID != questionID {
		c.mu.Unlock()
		return ErrStaleQuestion
	}
	if c.analyzing {
		c.mu.Unlock()
		return ErrAnswerInFlight
	}
	c.analyzing = true
	c.phase = PhaseAwaitingAnswerAnalysis
	interviewID := c.interviewID
	c.mu.Unlock()

	err := c.sio.Emit(EmitAnswerSubmit, answerPayload{
		InterviewID: interviewID,
		QuestionID:  questionID,
		Answer:      answer,
		Proctoring:  proctoring,
	})
	if err != nil {
		c.mu.Lock()
		c.analyzing = false
		c.phase = PhaseAwaitingAnswer
		c.mu.Unlock()
		return err
	}
	return nil
}

// Reconnect re-joins the room and asks for the full session state, which
// arrives as a Reconnected event.
func (c *Client) Reconnect() error {
	if c.Phase() < PhaseJoined {
		if err := c.join(); err != nil {
			return err
		}
	}
	c.mu.Lock()
	interviewID := c.interviewID
	userID := c.identity.UserID
	c.mu.Unlock()
	return c.sio.Emit(EmitReconnect, joinPayload{InterviewID: interviewID, UserID: userID})
}

// UpdateProctoringData pushes the local counters. Fire and forget.
func (c *Client) UpdateProctoringData(v model.ProctoringViolations) error {
	c.mu.Lock()
	interviewID := c.interviewID
	c.mu.Unlock()
	return c.sio.Emit(EmitProctoringUpdate, proctoringPayload{InterviewID: interviewID, Proctoring: v})
}

// GetProctoringData asks for the server's counters, answered by a
// ProctoringData event.
func (c *Client) GetProctoringData() error {
	c.mu.Lock()
	interviewID := c.interviewID
	c.mu.Unlock()
	return c.sio.Emit(EmitProctoringGet, interviewPayload{InterviewID: interviewID})
}

// Leave tells the server to persist its state, then closes the transport.
func (c *Client) Leave() error {
	c.mu.Lock()
	interviewID := c.interviewID
	userID := c.identity.UserID
	c.mu.Unlock()

	err := c.sio.Emit(EmitLeave, joinPayload{InterviewID: interviewID, UserID: userID})
	if err != nil && !errors.Is(err, socketio.ErrNotConnected) {
		c.log.Warn().Err(err).Msg("Leave notification failed")
	}
	return c.sio.Close()
}

// Phase returns the current protocol state.
func (c *Client) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Flags reports whether a question is being generated or an answer analyzed.
func (c *Client) Flags() (generating, analyzing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating, c.analyzing
}

// Identity returns the identity used by the current connection.
func (c *Client) Identity() identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Client) guardLocked() error {
	switch {
	case c.terminated:
		return ErrSessionTerminated
	case c.phase == PhaseCompleted:
		return ErrSessionOver
	case c.phase < PhaseJoined:
		return ErrNotJoined
	}
	return nil
}

// HandleState implements socketio.Handler.
func (c *Client) HandleState(state socketio.State, err error) {
	c.mu.Lock()
	absorbing := c.phase.Absorbing()
	reconnected := false

	switch state {
	case socketio.StateConnecting:
		if !absorbing {
			c.phase = PhaseConnecting
		}
	case socketio.StateConnected:
		reconnected = c.reconnecting
		c.reconnecting = false
		if !absorbing && c.phase < PhaseConnected {
			c.phase = PhaseConnected
		}
	case socketio.StateReconnecting:
		c.reconnecting = true
		c.generating, c.analyzing = false, false
		if !absorbing {
			c.phase = PhaseDisconnected
		}
	case socketio.StateDisconnected:
		c.reconnecting = false
		c.generating, c.analyzing = false, false
		if !absorbing {
			c.phase = PhaseDisconnected
		}
	}
	phase := c.phase
	c.mu.Unlock()

	switch {
	case state == socketio.StateReconnecting:
		metrics.SocketReconnect("attempt")
	case reconnected:
		metrics.SocketReconnect("success")
	case state == socketio.StateDisconnected && err != nil:
		metrics.SocketReconnect("exhausted")
	}

	if reconnected && !absorbing {
		if rerr := c.Reconnect(); rerr != nil {
			c.log.Warn().Err(rerr).Msg("Re-joining after reconnect failed")
		}
		phase = c.Phase()
	}

	c.handler.HandleRealtime(ConnectionChanged{Phase: phase, Reconnected: reconnected, Err: err})
}

// HandleEvent implements socketio.Handler.
func (c *Client) HandleEvent(name string, payload json.RawMessage) {
	ev, err := Decode(name, payload)
	if err != nil {
		c.log.Warn().Err(err).Str("event", name).Msg("Dropping inbound event")
		return
	}
	if !c.transition(ev) {
		c.log.Debug().Str("event", name).Msg("Ignoring event after session end")
		return
	}
	c.handler.HandleRealtime(ev)
}

// transition applies ev to the protocol state. It reports false when ev
// arrives after the session reached an absorbing state.
func (c *Client) transition(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase.Absorbing() {
		return false
	}

	switch e := ev.(type) {
	case QuestionGenerating:
		c.generating = true
		c.phase = PhaseAwaitingQuestion
	case QuestionReceived:
		c.generating, c.analyzing = false, false
		c.questionID = e.Question.ID
		c.phase = PhaseAwaitingAnswer
	case AnswerAnalyzing:
		c.analyzing = true
		c.phase = PhaseAwaitingAnswerAnalysis
	case Warning:
		c.analyzing = false
		if e.IsTerminated {
			c.terminated = true
			c.phase = PhaseTerminated
		} else {
			c.phase = PhaseAwaitingAnswer
		}
	case Completed:
		c.generating, c.analyzing = false, false
		c.questionID = ""
		c.phase = PhaseCompleted
	case Terminated:
		c.generating, c.analyzing = false, false
		c.terminated = true
		c.phase = PhaseTerminated
	case Reconnected:
		c.generating, c.analyzing = false, false
		c.questionID = ""
		if e.CurrentQuestion != nil {
			c.questionID = e.CurrentQuestion.ID
			c.phase = PhaseAwaitingAnswer
		} else {
			c.phase = PhaseAwaitingQuestion
		}
		if e.WarningStatus.IsTerminated {
			c.terminated = true
			c.phase = PhaseTerminated
		}
	case *ErrorEvent:
		switch e.Family() {
		case "question":
			c.generating = false
		case "answer":
			c.analyzing = false
			if c.phase == PhaseAwaitingAnswerAnalysis {
				c.phase = PhaseAwaitingAnswer
			}
		}
	}
	return true
}
