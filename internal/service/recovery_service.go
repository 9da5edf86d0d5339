package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/backend"
	"github.com/stemsi/intervue/internal/metrics"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/repository"
	"github.com/stemsi/intervue/internal/timer"
)

// Recovery errors.
var (
	ErrNoActiveSession = errors.New("no active interview")
	ErrSessionExpired  = errors.New("interview time has run out")
)

// ActiveSessionError blocks a new start while another session is active.
type ActiveSessionError struct {
	Descriptor model.RecoveryDescriptor
}

func (e *ActiveSessionError) Error() string {
	return fmt.Sprintf("interview %s is still active", e.Descriptor.InterviewID)
}

// StartFunc starts a new session. It is held back while a recovery decision
// is pending.
type StartFunc func(ctx context.Context) error

// RecoveryService decides whether an interrupted session exists and lets the
// user resume or end it. The server's view wins; the local store is only
// consulted when the server cannot be reached.
type RecoveryService struct {
	api      *backend.Client
	store    *repository.SessionStateRepository
	clock    timer.Clock
	duration time.Duration
	log      zerolog.Logger

	mu         sync.Mutex
	descriptor *model.RecoveryDescriptor
	pending    StartFunc
}

// NewRecoveryService creates a new RecoveryService.
func NewRecoveryService(api *backend.Client, store *repository.SessionStateRepository, clock timer.Clock, duration time.Duration, log zerolog.Logger) *RecoveryService {
	if clock == nil {
		clock = timer.SystemClock{}
	}
	if duration <= 0 {
		duration = timer.DefaultDuration
	}
	return &RecoveryService{
		api:      api,
		store:    store,
		clock:    clock,
		duration: duration,
		log:      log.With().Str("component", "recovery").Logger(),
	}
}

// Check looks for an active session. It returns nil when there is none.
func (s *RecoveryService) Check(ctx context.Context) (*model.RecoveryDescriptor, error) {
	active, err := s.api.ActiveInterview(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Active session check failed, consulting local store")
		d, lerr := s.localDescriptor(ctx)
		if lerr != nil {
			return nil, fmt.Errorf("check active session: %w", errors.Join(err, lerr))
		}
		s.remember(d)
		return d, nil
	}

	if !active.HasActiveInterview || active.Interview == nil {
		s.dropStale(ctx)
		s.remember(nil)
		return nil, nil
	}

	d := *active.Interview
	d.Source = model.RecoverySourceServer
	s.mirror(ctx, d)
	s.remember(&d)
	return &d, nil
}

// Descriptor returns the result of the last Check.
func (s *RecoveryService) Descriptor() *model.RecoveryDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.descriptor == nil {
		return nil
	}
	d := s.descriptor.At(s.clock.Now())
	return &d
}

// HasPending reports whether a start is waiting on the recovery decision.
func (s *RecoveryService) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// CancelPending drops a held-back start.
func (s *RecoveryService) CancelPending() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// BeginNewSession runs start unless a session is active. In that case start
// is kept as the pending action and an *ActiveSessionError is returned.
// A failed check blocks the start.
func (s *RecoveryService) BeginNewSession(ctx context.Context, start StartFunc) error {
	d, err := s.Check(ctx)
	if err != nil {
		return err
	}
	if d != nil {
		s.mu.Lock()
		s.pending = start
		s.mu.Unlock()
		return &ActiveSessionError{Descriptor: *d}
	}
	return start(ctx)
}

// Resume fetches the authoritative state of the active session and
// overwrites the local store with it.
func (s *RecoveryService) Resume(ctx context.Context) (*model.InterviewSessionState, error) {
	d := s.Descriptor()
	if d == nil {
		var err error
		if d, err = s.Check(ctx); err != nil {
			return nil, err
		}
		if d == nil {
			return nil, ErrNoActiveSession
		}
	}
	if !d.CanResume() {
		return nil, ErrSessionExpired
	}

	var (
		state    *model.InterviewSessionState
		reported *int
	)
	reply, err := s.api.ResumeInterview(ctx, d.InterviewID)
	if err == nil {
		state, reported = &reply.InterviewSessionState, reply.ReportedRemaining
	} else {
		if backend.IsNotFound(err) {
			s.dropStale(ctx)
			s.remember(nil)
			return nil, ErrNoActiveSession
		}
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}

		local, lerr := s.store.Restore(ctx)
		if lerr != nil || local == nil || local.InterviewID != d.InterviewID {
			return nil, fmt.Errorf("resume %s: %w", d.InterviewID, err)
		}
		s.log.Warn().Err(err).Str("interview_id", d.InterviewID).Msg("Server unreachable, resuming from local store")
		state = local
	}

	if reported != nil && *reported <= 0 {
		return nil, ErrSessionExpired
	}
	s.normalize(state, d, reported)
	if state.TimeRemaining <= 0 {
		return nil, ErrSessionExpired
	}

	if err := s.store.Replace(ctx, state); err != nil {
		return nil, err
	}
	s.CancelPending()

	s.log.Info().
		Str("interview_id", state.InterviewID).
		Int("question", state.QuestionNumber).
		Int("remaining", state.TimeRemaining).
		Msg("Session resumed")
	return state, nil
}

// End ends the active session on the server and clears the local store. A
// pending start runs afterwards; ranPending reports whether it did.
func (s *RecoveryService) End(ctx context.Context) (ranPending bool, err error) {
	id := ""
	if d := s.Descriptor(); d != nil {
		id = d.InterviewID
	} else if local, lerr := s.store.Restore(ctx); lerr == nil && local != nil {
		id = local.InterviewID
	}

	if id != "" {
		if err := s.api.EndInterview(ctx, id); err != nil && !backend.IsNotFound(err) {
			return false, fmt.Errorf("end interview %s: %w", id, err)
		}
		metrics.SessionEnded(string(model.OutcomeEnded))
		s.log.Info().Str("interview_id", id).Msg("Session ended from recovery")
	}

	if err := s.store.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear local session")
	}

	s.mu.Lock()
	start := s.pending
	s.pending = nil
	s.descriptor = nil
	s.mu.Unlock()

	if start == nil {
		return false, nil
	}
	return true, start(ctx)
}

func (s *RecoveryService) remember(d *model.RecoveryDescriptor) {
	if d != nil && d.ObservedAt.IsZero() {
		d.ObservedAt = s.clock.Now()
	}
	s.mu.Lock()
	s.descriptor = d
	s.mu.Unlock()
}

// localDescriptor builds a descriptor from the local store. A record without
// a start time cannot prove time is left, so it is offered as expired.
func (s *RecoveryService) localDescriptor(ctx context.Context) (*model.RecoveryDescriptor, error) {
	state, err := s.store.Restore(ctx)
	if err != nil || state == nil {
		return nil, err
	}
	return &model.RecoveryDescriptor{
		InterviewID:    state.InterviewID,
		InterviewType:  state.InterviewType,
		QuestionNumber: state.QuestionNumber,
		TotalQuestions: state.TotalQuestions,
		TimeRemaining:  state.TimeRemaining,
		StartTime:      state.StartTime,
		Source:         model.RecoverySourceLocal,
	}, nil
}

// mirror stores the server's descriptor so later checks work offline.
func (s *RecoveryService) mirror(ctx context.Context, d model.RecoveryDescriptor) {
	if local, err := s.store.Restore(ctx); err == nil && local != nil && local.InterviewID != d.InterviewID {
		s.log.Info().Str("stale_id", local.InterviewID).Msg("Replacing local session with the server's")
		if err := s.store.Clear(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Failed to clear stale local session")
		}
	}

	patch := model.SessionPatch{
		InterviewID:    d.InterviewID,
		QuestionNumber: &d.QuestionNumber,
		TotalQuestions: &d.TotalQuestions,
		TimeRemaining:  &d.TimeRemaining,
	}
	if d.InterviewType != "" {
		patch.InterviewType = &d.InterviewType
	}
	if !d.StartTime.IsZero() {
		patch.StartTime = &d.StartTime
	}
	if err := s.store.Save(ctx, patch); err != nil {
		s.log.Warn().Err(err).Msg("Failed to mirror active session")
	}
}

// dropStale clears a local record the server no longer knows about.
func (s *RecoveryService) dropStale(ctx context.Context) {
	local, err := s.store.Restore(ctx)
	if err != nil || local == nil {
		return
	}
	s.log.Info().Str("interview_id", local.InterviewID).Msg("Dropping stale local session")
	if err := s.store.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear stale local session")
	}
}

// normalize fills what the resume reply left out and recomputes the timer
// from the start time. A remaining value reported by the server wins.
func (s *RecoveryService) normalize(state *model.InterviewSessionState, d *model.RecoveryDescriptor, reported *int) {
	if state.InterviewID == "" {
		state.InterviewID = d.InterviewID
	}
	if state.InterviewType == "" {
		state.InterviewType = d.InterviewType
	}
	if state.QuestionNumber == 0 {
		state.QuestionNumber = d.QuestionNumber
	}
	if state.TotalQuestions == 0 {
		state.TotalQuestions = d.TotalQuestions
	}
	if state.ChatHistory == nil {
		state.ChatHistory = model.ChatHistory{}
	}

	now := s.clock.Now()
	if state.StartTime.IsZero() {
		state.StartTime = d.StartTime
	}
	if state.StartTime.IsZero() {
		// Only the remaining seconds are known; place the start so the local
		// timer agrees with them.
		remaining := d.TimeRemaining
		if reported != nil {
			remaining = *reported
		}
		used := s.duration - time.Duration(remaining)*time.Second
		state.StartTime = now.Add(-used)
	}
	state.TimeElapsed = timer.Elapsed(state.StartTime, now, s.duration)
	state.TimeRemaining = timer.Remaining(state.StartTime, now, s.duration)
	if reported != nil {
		state.TimeRemaining = *reported
	}
}
