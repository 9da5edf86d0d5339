package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/audio"
	"github.com/stemsi/intervue/internal/backend"
	"github.com/stemsi/intervue/internal/metrics"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/proctor"
	"github.com/stemsi/intervue/internal/realtime"
	"github.com/stemsi/intervue/internal/repository"
	"github.com/stemsi/intervue/internal/socketio"
	"github.com/stemsi/intervue/internal/timer"
	ws "github.com/stemsi/intervue/internal/websocket"
)

// Session errors.
var (
	ErrSessionInProgress = errors.New("an interview is already running")
	ErrSessionRunning    = errors.New("interview has not finished yet")
	ErrRealtimeDown      = errors.New("interview server unreachable")
)

// Actions offered to the UI.
const (
	ActionAnswer      = "answer"
	ActionEnd         = "end"
	ActionAcknowledge = "acknowledge"
)

const (
	tickInterval   = time.Second
	cleanupTimeout = 5 * time.Second
)

// SessionConfig configures the realtime side of a session.
type SessionConfig struct {
	Transport socketio.Options
	Duration  time.Duration
}

// Snapshot is the UI's view of the active session.
type Snapshot struct {
	InterviewID string                       `json:"interview_id,omitempty"`
	Phase       realtime.Phase               `json:"phase"`
	Generating  bool                         `json:"generating"`
	Analyzing   bool                         `json:"analyzing"`
	UserID      string                       `json:"user_id,omitempty"`
	Guest       bool                         `json:"guest"`
	Outcome     model.SessionOutcome         `json:"outcome,omitempty"`
	Reason      string                       `json:"reason,omitempty"`
	Message     string                       `json:"message,omitempty"`
	Actions     []string                     `json:"actions"`
	State       *model.InterviewSessionState `json:"state"`
	UIConnected bool                         `json:"ui_connected"`
}

type activeSession struct {
	interviewID   string
	interviewType model.InterviewType
	total         int

	rt      *realtime.Client
	tracker *proctor.Tracker
	timer   *timer.Reconciler
	state   *model.InterviewSessionState
	answers map[string]string

	outcome model.SessionOutcome
	reason  string
	message string

	// storeMu serializes store writes with the Clear in finish.
	storeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// ending is a terminal transition decided by the reducer.
type ending struct {
	outcome model.SessionOutcome
	reason  string
	message string
}

// effects are the side effects of one reduced event, run outside the lock.
type effects struct {
	out     []any
	patch   *model.SessionPatch
	replace *model.InterviewSessionState
	play    *model.AudioPayload
	end     *ending
	warned  bool
}

// SessionService orchestrates the active interview: realtime protocol,
// persistence, timer, proctoring, audio and the UI stream.
type SessionService struct {
	cfg      SessionConfig
	api      *backend.Client
	auth     *AuthService
	recovery *RecoveryService
	store    *repository.SessionStateRepository
	archive  *repository.ArchiveQueue
	stream   *ws.Stream
	audio    *audio.Coordinator
	clock    timer.Clock
	log      zerolog.Logger

	mu     sync.Mutex
	active *activeSession
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	cfg SessionConfig,
	api *backend.Client,
	auth *AuthService,
	recovery *RecoveryService,
	store *repository.SessionStateRepository,
	archive *repository.ArchiveQueue,
	stream *ws.Stream,
	coordinator *audio.Coordinator,
	clock timer.Clock,
	log zerolog.Logger,
) *SessionService {
	if clock == nil {
		clock = timer.SystemClock{}
	}
	if cfg.Duration <= 0 {
		cfg.Duration = timer.DefaultDuration
	}
	return &SessionService{
		cfg:      cfg,
		api:      api,
		auth:     auth,
		recovery: recovery,
		store:    store,
		archive:  archive,
		stream:   stream,
		audio:    coordinator,
		clock:    clock,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────

// Start begins a new interview. While another session is active it returns
// an *ActiveSessionError and the start waits for the recovery decision.
func (s *SessionService) Start(ctx context.Context, req model.StartInterviewRequest) error {
	if s.running() {
		return ErrSessionInProgress
	}
	return s.recovery.BeginNewSession(ctx, func(ctx context.Context) error {
		return s.start(ctx, req)
	})
}

func (s *SessionService) start(ctx context.Context, req model.StartInterviewRequest) error {
	if s.running() {
		return ErrSessionInProgress
	}

	created, err := s.api.CreateInterview(ctx, req)
	if err != nil {
		return fmt.Errorf("create interview: %w", err)
	}
	total := created.TotalQuestions
	if total == 0 {
		total = req.TotalQuestions
	}

	sess := s.open(created.InterviewID, req.InterviewType, total, nil)
	if err := sess.rt.Connect(ctx, sess.interviewID); err != nil {
		s.abort(sess, true)
		return fmt.Errorf("%w: %w", ErrRealtimeDown, err)
	}
	if err := sess.rt.RequestFirstQuestion(); err != nil {
		s.abort(sess, true)
		return fmt.Errorf("request first question: %w", err)
	}

	metrics.SessionStarted("new")
	s.log.Info().
		Str("interview_id", sess.interviewID).
		Str("type", string(req.InterviewType)).
		Int("total_questions", total).
		Msg("Interview started")
	s.publishSnapshot()
	return nil
}

// ResumeActive resumes the session found by recovery and asks the server
// for its full state.
func (s *SessionService) ResumeActive(ctx context.Context) (*Snapshot, error) {
	if s.running() {
		return nil, ErrSessionInProgress
	}

	state, err := s.recovery.Resume(ctx)
	if err != nil {
		return nil, err
	}

	sess := s.open(state.InterviewID, state.InterviewType, state.TotalQuestions, state)
	if err := sess.rt.Connect(ctx, sess.interviewID); err != nil {
		s.abort(sess, false)
		return nil, fmt.Errorf("%w: %w", ErrRealtimeDown, err)
	}
	if err := sess.rt.Reconnect(); err != nil {
		s.abort(sess, false)
		return nil, fmt.Errorf("request session state: %w", err)
	}

	metrics.SessionStarted("resume")
	s.log.Info().Str("interview_id", sess.interviewID).Msg("Interview resumed")

	snap := s.Snapshot()
	s.stream.Publish(ws.StateResponse{Event: ws.EventState, State: snap})
	return &snap, nil
}

// EndRecovered ends the session offered by recovery. A start held back by
// Start runs afterwards.
func (s *SessionService) EndRecovered(ctx context.Context) (bool, error) {
	ran, err := s.recovery.End(ctx)
	if ran && err == nil {
		s.publishSnapshot()
	}
	return ran, err
}

// End abandons the running session on the server.
func (s *SessionService) End(ctx context.Context) error {
	sess, err := s.current()
	if err != nil {
		return err
	}
	if err := s.api.EndInterview(ctx, sess.interviewID); err != nil && !backend.IsNotFound(err) {
		return fmt.Errorf("end interview: %w", err)
	}

	s.finish(sess, ending{outcome: model.OutcomeEnded, reason: "user", message: "Interview ended."})

	s.mu.Lock()
	if s.active == sess {
		s.active = nil
	}
	s.mu.Unlock()
	s.publishSnapshot()
	return nil
}

// Acknowledge dismisses a finished session.
func (s *SessionService) Acknowledge(ctx context.Context) error {
	s.mu.Lock()
	sess := s.active
	switch {
	case sess == nil:
		s.mu.Unlock()
		return ErrNoActiveSession
	case sess.outcome == "":
		s.mu.Unlock()
		return ErrSessionRunning
	}
	s.active = nil
	s.mu.Unlock()

	s.log.Debug().Str("interview_id", sess.interviewID).Msg("Outcome acknowledged")
	s.publishSnapshot()
	return nil
}

// Shutdown leaves the running session without ending it, so it can be
// resumed later.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	sess := s.active
	s.active = nil
	s.mu.Unlock()
	if sess == nil {
		return
	}
	sess.cancel()
	if err := sess.rt.Leave(); err != nil {
		s.log.Debug().Err(err).Msg("Leave on shutdown failed")
	}
}

// ─── Commands ───────────────────────────────────────────────────────

// SubmitAnswer sends the answer to the current question.
func (s *SessionService) SubmitAnswer(ctx context.Context, req model.SubmitAnswerRequest) error {
	sess, err := s.current()
	if err != nil {
		return err
	}

	s.mu.Lock()
	sess.answers[req.QuestionID] = req.Answer
	s.mu.Unlock()

	if err := sess.rt.SubmitAnswer(req.QuestionID, req.Answer, sess.tracker.Snapshot()); err != nil {
		s.mu.Lock()
		delete(sess.answers, req.QuestionID)
		s.mu.Unlock()
		return err
	}
	return nil
}

// RecordProctoring counts a locally observed violation.
func (s *SessionService) RecordProctoring(ctx context.Context, kind string) (model.ProctoringViolations, error) {
	sess, err := s.current()
	if err != nil {
		return model.ProctoringViolations{}, err
	}

	counts, err := sess.tracker.Record(proctor.Kind(kind))
	if err != nil {
		return model.ProctoringViolations{}, err
	}

	s.mu.Lock()
	hasState := sess.state != nil
	if hasState {
		sess.state.ProctoringViolations = counts
	}
	s.mu.Unlock()

	if hasState {
		s.save(ctx, sess, model.SessionPatch{InterviewID: sess.interviewID, ProctoringViolations: &counts})
	}
	return counts, nil
}

// Snapshot returns the UI view of the session.
func (s *SessionService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ─── Internals ──────────────────────────────────────────────────────

func (s *SessionService) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.outcome == ""
}

// current returns the running session or the error matching its end.
func (s *SessionService) current() (*activeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.active
	if sess == nil {
		return nil, ErrNoActiveSession
	}
	switch sess.outcome {
	case "":
		return sess, nil
	case model.OutcomeCompleted:
		return nil, realtime.ErrSessionOver
	case model.OutcomeTerminated:
		return nil, realtime.ErrSessionTerminated
	case model.OutcomeExpired:
		return nil, ErrSessionExpired
	}
	return nil, ErrNoActiveSession
}

// open registers a new active session. state is nil for a new interview; it
// is created by the first question.
func (s *SessionService) open(interviewID string, interviewType model.InterviewType, total int, state *model.InterviewSessionState) *activeSession {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &activeSession{
		interviewID:   interviewID,
		interviewType: interviewType,
		total:         total,
		answers:       make(map[string]string),
		ctx:           ctx,
		cancel:        cancel,
	}

	sess.rt = realtime.NewClient(realtime.Options{
		Transport: s.cfg.Transport,
		Token:     s.auth.Token,
	}, realtime.HandlerFunc(func(ev realtime.Event) { s.apply(sess, ev) }), s.log)

	initial := model.ProctoringViolations{}
	if state != nil {
		initial = state.ProctoringViolations
		sess.state = state
		sess.timer = timer.NewReconciler(s.clock, state.StartTime, s.cfg.Duration)
		if state.TimeRemaining > 0 && state.TimeRemaining != sess.timer.Remaining() {
			sess.timer.Push(state.TimeRemaining)
		}
	}
	sess.tracker = proctor.NewTracker(initial, sess.rt, s.clock, s.log)

	s.mu.Lock()
	s.active = sess
	s.mu.Unlock()

	go s.tick(sess)
	return sess
}

// abort drops a session that never got going.
func (s *SessionService) abort(sess *activeSession, endOnServer bool) {
	sess.cancel()
	if err := sess.rt.Leave(); err != nil {
		s.log.Debug().Err(err).Msg("Closing aborted session failed")
	}
	s.mu.Lock()
	if s.active == sess {
		s.active = nil
	}
	s.mu.Unlock()

	if endOnServer {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := s.api.EndInterview(ctx, sess.interviewID); err != nil && !backend.IsNotFound(err) {
			s.log.Warn().Err(err).Str("interview_id", sess.interviewID).Msg("Failed to end aborted interview")
		}
	}
}

func (s *SessionService) tick(sess *activeSession) {
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-t.C:
			s.onTick(sess)
		}
	}
}

func (s *SessionService) onTick(sess *activeSession) {
	s.mu.Lock()
	if s.active != sess || sess.outcome != "" || sess.state == nil {
		s.mu.Unlock()
		return
	}
	elapsed, remaining := sess.timer.Elapsed(), sess.timer.Remaining()
	sess.state.TimeElapsed = elapsed
	sess.state.TimeRemaining = remaining
	expired := sess.timer.Expired()
	s.mu.Unlock()

	s.save(sess.ctx, sess, model.SessionPatch{
		InterviewID:   sess.interviewID,
		TimeElapsed:   &elapsed,
		TimeRemaining: &remaining,
	})
	s.stream.Publish(ws.TimerResponse{Event: ws.EventTimer, Elapsed: elapsed, Remaining: remaining})
	sess.tracker.Flush()

	if expired {
		s.expire(sess)
	}
}

// expire ends a session whose time ran out, also on the server.
func (s *SessionService) expire(sess *activeSession) {
	s.finish(sess, ending{outcome: model.OutcomeExpired, reason: "time_limit", message: "Time is up."})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := s.api.EndInterview(ctx, sess.interviewID); err != nil && !backend.IsNotFound(err) {
			s.log.Warn().Err(err).Str("interview_id", sess.interviewID).Msg("Failed to end expired interview")
		}
	}()
}

// apply is the reducer for inbound realtime events. It runs on the
// transport's read goroutine, one event at a time.
func (s *SessionService) apply(sess *activeSession, ev realtime.Event) {
	s.mu.Lock()
	if s.active != sess || sess.outcome != "" {
		s.mu.Unlock()
		return
	}
	fx := s.reduceLocked(sess, ev)
	s.mu.Unlock()

	s.run(sess, fx)
}

func (s *SessionService) reduceLocked(sess *activeSession, ev realtime.Event) effects {
	var fx effects
	st := sess.state

	switch e := ev.(type) {
	case realtime.ConnectionChanged:
		if e.Phase == realtime.PhaseDisconnected && sess.timer != nil {
			sess.timer.PushChannelLost()
		}
		status := ws.ConnectionResponse{Event: ws.EventConnection, Status: e.Phase.String()}
		if e.Err != nil {
			status.Error = e.Err.Error()
		}
		fx.out = append(fx.out, status)

	case realtime.QuestionGenerating, realtime.AnswerAnalyzing:
		fx.out = append(fx.out, ws.StateResponse{Event: ws.EventState, State: s.snapshotLocked()})

	case realtime.QuestionReceived:
		now := s.clock.Now()
		if st == nil {
			start := now
			if e.StartTime != nil && !e.StartTime.IsZero() {
				start = *e.StartTime
			}
			st = &model.InterviewSessionState{
				InterviewID:    sess.interviewID,
				InterviewType:  sess.interviewType,
				StartTime:      start,
				TotalQuestions: sess.total,
				ChatHistory:    model.ChatHistory{},
			}
			sess.state = st
			sess.timer = timer.NewReconciler(s.clock, start, s.cfg.Duration)
		}

		q := e.Question
		st.CurrentQuestion = &q
		st.AdvanceQuestion(e.QuestionNumber, e.TotalQuestions)

		ts := e.Timestamp
		if ts.IsZero() {
			ts = now
		}
		msgID := e.MessageID
		if msgID == "" {
			msgID = "q-" + q.ID
		}
		st.ChatHistory.Append(model.ChatMessage{
			ID:         msgID,
			Role:       model.ChatRoleAI,
			Text:       q.Text,
			Timestamp:  ts,
			QuestionID: q.ID,
		})
		st.TimeElapsed = sess.timer.Elapsed()
		st.TimeRemaining = sess.timer.Remaining()

		patch := model.PatchFromState(st)
		fx.patch = &patch
		fx.out = append(fx.out, ws.QuestionResponse{
			Event:          ws.EventQuestion,
			Question:       q,
			QuestionNumber: st.QuestionNumber,
			TotalQuestions: st.TotalQuestions,
		})
		if q.Audio != nil {
			payload := *q.Audio
			fx.play = &payload
		}

	case realtime.AnswerSubmitted:
		answer := e.Answer
		if answer == "" {
			answer = sess.answers[e.QuestionID]
		}
		delete(sess.answers, e.QuestionID)

		if st != nil {
			ts := e.Timestamp
			if ts.IsZero() {
				ts = s.clock.Now()
			}
			msgID := e.MessageID
			if msgID == "" {
				msgID = "a-" + e.QuestionID
			}
			st.ChatHistory.Append(model.ChatMessage{
				ID:             msgID,
				Role:           model.ChatRoleUser,
				Text:           answer,
				Timestamp:      ts,
				QuestionID:     e.QuestionID,
				AnswerAnalysis: e.Analysis,
			})
			fx.patch = &model.SessionPatch{InterviewID: st.InterviewID, ChatHistory: st.ChatHistory}
		}
		fx.out = append(fx.out, ws.AnalysisResponse{Event: ws.EventAnalysis, QuestionID: e.QuestionID, Analysis: e.Analysis})

	case realtime.Warning:
		status := e.Status()
		if st != nil {
			st.WarningStatus = st.WarningStatus.Apply(status)
			status = st.WarningStatus
			fx.patch = &model.SessionPatch{InterviewID: st.InterviewID, WarningStatus: &status}
		}
		fx.warned = true
		fx.out = append(fx.out, ws.WarningResponse{Event: ws.EventWarning, Message: e.Message, Status: status})
		if e.IsTerminated {
			fx.end = &ending{outcome: model.OutcomeTerminated, reason: "warnings", message: e.Message}
		}

	case realtime.Completed:
		fx.end = &ending{outcome: model.OutcomeCompleted, reason: "completed", message: e.Message}

	case realtime.Terminated:
		fx.end = &ending{outcome: model.OutcomeTerminated, reason: e.Reason, message: e.Message}

	case realtime.Reconnected:
		next := e.State()
		if next.InterviewID == "" {
			next.InterviewID = sess.interviewID
		}
		if next.InterviewType == "" {
			next.InterviewType = sess.interviewType
		}
		if next.TotalQuestions == 0 {
			next.TotalQuestions = sess.total
		}
		if next.StartTime.IsZero() {
			if st != nil {
				next.StartTime = st.StartTime
			} else {
				next.StartTime = s.clock.Now()
			}
		}

		sess.tracker.Overwrite(next.ProctoringViolations)
		sess.timer = timer.NewReconciler(s.clock, next.StartTime, s.cfg.Duration)
		if e.TimeRemaining != nil {
			sess.timer.Push(*e.TimeRemaining)
		}
		next.TimeElapsed = sess.timer.Elapsed()
		next.TimeRemaining = sess.timer.Remaining()
		sess.state = next

		copied := *next
		fx.replace = &copied
		fx.out = append(fx.out, ws.StateResponse{Event: ws.EventState, State: s.snapshotLocked()})
		if next.WarningStatus.IsTerminated {
			fx.end = &ending{outcome: model.OutcomeTerminated, reason: "warnings", message: "Interview terminated after repeated warnings."}
		}

	case realtime.ProctoringData:
		merged := sess.tracker.Merge(e.Violations)
		if st != nil {
			st.ProctoringViolations = merged
			fx.patch = &model.SessionPatch{InterviewID: st.InterviewID, ProctoringViolations: &merged}
		}

	case realtime.TimerUpdate:
		if sess.timer == nil {
			break
		}
		sess.timer.Push(e.TimeRemaining)
		elapsed, remaining := sess.timer.Elapsed(), sess.timer.Remaining()
		if st != nil {
			st.TimeElapsed, st.TimeRemaining = elapsed, remaining
		}
		fx.out = append(fx.out, ws.TimerResponse{Event: ws.EventTimer, Elapsed: elapsed, Remaining: remaining})
		if sess.timer.Expired() {
			fx.end = &ending{outcome: model.OutcomeExpired, reason: "time_limit", message: "Time is up."}
		}

	case *realtime.ErrorEvent:
		s.log.Warn().Str("source", e.Source).Str("code", e.Code).Msg(e.Message)
		code := e.Code
		if code == "" {
			code = e.Source
		}
		fx.out = append(fx.out, ws.ErrorResponse{Event: ws.EventError, Error: e.Message, Code: code})

	default:
		s.log.Debug().Str("event", ev.EventName()).Msg("Unhandled realtime event")
	}
	return fx
}

func (s *SessionService) run(sess *activeSession, fx effects) {
	switch {
	case fx.replace != nil:
		err := s.persist(sess, func() error { return s.store.Replace(sess.ctx, fx.replace) })
		if err != nil {
			s.log.Warn().Err(err).Msg("Session replace failed")
		}
	case fx.patch != nil:
		s.save(sess.ctx, sess, *fx.patch)
	}

	if fx.warned {
		metrics.WarningIssued()
	}
	for _, msg := range fx.out {
		s.stream.Publish(msg)
	}

	if fx.play != nil && s.audio != nil {
		payload := *fx.play
		go func() {
			if err := s.audio.LoadAndPlay(sess.ctx, payload); err != nil {
				s.log.Debug().Err(err).Str("audio_id", audio.AudioID(payload)).Msg("Question audio not played")
			}
		}()
	}

	if fx.end != nil {
		if fx.end.outcome == model.OutcomeExpired {
			s.expire(sess)
		} else {
			s.finish(sess, *fx.end)
		}
	}
}

// finish moves the session to a terminal outcome: the local store is
// cleared, the transcript queued for archiving and the transport closed.
func (s *SessionService) finish(sess *activeSession, end ending) {
	s.mu.Lock()
	if s.active != sess || sess.outcome != "" {
		s.mu.Unlock()
		return
	}
	sess.outcome, sess.reason, sess.message = end.outcome, end.reason, end.message

	var record *model.ArchiveRecord
	if sess.state != nil {
		rec := model.NewArchiveRecord(sess.state, sess.rt.Identity().UserID, end.outcome, end.reason, s.clock.Now())
		record = &rec
	}
	terminal := terminalResponse(end)
	s.mu.Unlock()

	sess.cancel()
	metrics.SessionEnded(string(end.outcome))

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	sess.storeMu.Lock()
	if err := s.store.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear finished session")
	}
	sess.storeMu.Unlock()
	if record != nil && s.archive != nil {
		if err := s.archive.Push(ctx, *record); err != nil {
			s.log.Error().Err(err).Str("interview_id", sess.interviewID).Msg("Failed to queue transcript for archive")
		}
	}
	if s.audio != nil {
		if err := s.audio.Stop(); err != nil {
			s.log.Debug().Err(err).Msg("Stopping audio failed")
		}
	}

	// Leave closes the transport, which must not happen on its own read
	// goroutine.
	go func() {
		if err := sess.rt.Leave(); err != nil {
			s.log.Debug().Err(err).Msg("Leave after finish failed")
		}
	}()

	s.stream.Publish(terminal)
	s.log.Info().
		Str("interview_id", sess.interviewID).
		Str("outcome", string(end.outcome)).
		Str("reason", end.reason).
		Msg("Interview finished")
}

func terminalResponse(end ending) ws.TerminalResponse {
	event := ws.EventTerminated
	if end.outcome == model.OutcomeCompleted {
		event = ws.EventCompleted
	}
	return ws.TerminalResponse{
		Event:   event,
		Reason:  end.reason,
		Message: end.message,
		Actions: []string{ActionAcknowledge},
	}
}

func (s *SessionService) save(ctx context.Context, sess *activeSession, patch model.SessionPatch) {
	if err := s.persist(sess, func() error { return s.store.Save(ctx, patch) }); err != nil {
		s.log.Warn().Err(err).Msg("Session save rejected")
	}
}

// persist runs write unless sess has already finished, so a write racing
// finish cannot bring back a cleared session.
func (s *SessionService) persist(sess *activeSession, write func() error) error {
	sess.storeMu.Lock()
	defer sess.storeMu.Unlock()

	s.mu.Lock()
	done := sess.outcome != ""
	s.mu.Unlock()
	if done {
		return nil
	}
	return write()
}

func (s *SessionService) publishSnapshot() {
	s.stream.Publish(ws.StateResponse{Event: ws.EventState, State: s.Snapshot()})
}

func (s *SessionService) snapshotLocked() Snapshot {
	snap := Snapshot{Actions: []string{}, UIConnected: s.stream.Connected()}
	sess := s.active
	if sess == nil {
		return snap
	}

	snap.InterviewID = sess.interviewID
	snap.Phase = sess.rt.Phase()
	snap.Generating, snap.Analyzing = sess.rt.Flags()
	id := sess.rt.Identity()
	snap.UserID, snap.Guest = id.UserID, id.Fallback
	snap.Outcome, snap.Reason, snap.Message = sess.outcome, sess.reason, sess.message

	if sess.state != nil {
		st := *sess.state
		if sess.timer != nil && sess.outcome == "" {
			st.TimeElapsed = sess.timer.Elapsed()
			st.TimeRemaining = sess.timer.Remaining()
		}
		snap.State = &st
	}

	switch {
	case sess.outcome != "":
		snap.Actions = append(snap.Actions, ActionAcknowledge)
	case snap.Phase == realtime.PhaseAwaitingAnswer && !snap.Analyzing:
		snap.Actions = append(snap.Actions, ActionAnswer, ActionEnd)
	default:
		snap.Actions = append(snap.Actions, ActionEnd)
	}
	return snap
}
