package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/config"
	"github.com/stemsi/intervue/internal/metrics"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/timer"
)

// ErrMissingInterviewID rejects a save that cannot be tied to a session.
var ErrMissingInterviewID = errors.New("session patch has no interview id")

// SessionStateRepository mirrors the active InterviewSessionState in Redis,
// one key per field.
type SessionStateRepository struct {
	rdb      *redis.Client
	keys     *config.StoreKeyStruct
	clock    timer.Clock
	duration time.Duration
	log      zerolog.Logger
}

// NewSessionStateRepository creates a new SessionStateRepository.
func NewSessionStateRepository(rdb *redis.Client, keys *config.StoreKeyStruct, clock timer.Clock, duration time.Duration, log zerolog.Logger) *SessionStateRepository {
	if clock == nil {
		clock = timer.SystemClock{}
	}
	if duration <= 0 {
		duration = timer.DefaultDuration
	}
	return &SessionStateRepository{
		rdb:      rdb,
		keys:     keys,
		clock:    clock,
		duration: duration,
		log:      log.With().Str("component", "session_store").Logger(),
	}
}

type field struct {
	key   string
	value string
}

// Save writes the fields present in patch and refreshes last_update. Storage
// failures are logged, never returned: on quota exhaustion it falls back to a
// minimal record so "a session exists" survives.
func (r *SessionStateRepository) Save(ctx context.Context, patch model.SessionPatch) error {
	if patch.InterviewID == "" {
		return ErrMissingInterviewID
	}

	now := r.clock.Now()
	fields := r.encode(patch, now)

	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, f := range fields {
			pipe.Set(ctx, f.key, f.value, 0)
		}
		return nil
	})
	if err == nil {
		return nil
	}

	if !isQuotaError(err) {
		r.log.Warn().Err(err).Str("interview_id", patch.InterviewID).Msg("Session save failed")
		return nil
	}

	r.log.Warn().Err(err).Str("interview_id", patch.InterviewID).Msg("Storage quota exhausted, writing minimal session record")
	metrics.StoreFallback()
	r.saveMinimal(ctx, patch.InterviewID, now)
	return nil
}

// saveMinimal drops auxiliary keys and retries with only the identifying
// field, the active flag and last_update.
func (r *SessionStateRepository) saveMinimal(ctx context.Context, interviewID string, now time.Time) {
	if err := r.rdb.Del(ctx, r.keys.AuxiliaryKeys()...).Err(); err != nil {
		r.log.Warn().Err(err).Msg("Dropping auxiliary keys failed")
	}

	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.keys.InterviewIDKey(), interviewID, 0)
		pipe.Set(ctx, r.keys.LastUpdateKey(), formatMillis(now), 0)
		pipe.Set(ctx, r.keys.SessionActiveKey(), "true", 0)
		return nil
	})
	if err != nil {
		r.log.Error().Err(err).Str("interview_id", interviewID).Msg("Minimal session record could not be written")
	}
}

// encode orders writes so the active flag lands last: an interrupted save
// leaves either the previous record or an inactive one, never a half-active one.
func (r *SessionStateRepository) encode(p model.SessionPatch, now time.Time) []field {
	fields := []field{{r.keys.InterviewIDKey(), p.InterviewID}}

	if p.InterviewType != nil {
		fields = append(fields, field{r.keys.InterviewTypeKey(), string(*p.InterviewType)})
	}
	if p.StartTime != nil {
		fields = append(fields, field{r.keys.StartTimeKey(), formatMillis(*p.StartTime)})
	}
	if p.QuestionNumber != nil {
		fields = append(fields, field{r.keys.QuestionNumberKey(), strconv.Itoa(*p.QuestionNumber)})
	}
	if p.TotalQuestions != nil {
		fields = append(fields, field{r.keys.TotalQuestionsKey(), strconv.Itoa(*p.TotalQuestions)})
	}
	if p.CurrentQuestion != nil {
		fields = append(fields, field{r.keys.CurrentQuestionKey(), mustJSON(p.CurrentQuestion)})
	}
	if p.ChatHistory != nil {
		fields = append(fields, field{r.keys.ChatHistoryKey(), mustJSON(p.ChatHistory)})
	}
	if p.WarningStatus != nil {
		fields = append(fields, field{r.keys.WarningStatusKey(), mustJSON(p.WarningStatus)})
	}
	if p.ProctoringViolations != nil {
		fields = append(fields, field{r.keys.ProctoringKey(), mustJSON(p.ProctoringViolations)})
	}
	if p.TimeElapsed != nil {
		fields = append(fields, field{r.keys.TimeElapsedKey(), strconv.Itoa(*p.TimeElapsed)})
	}
	if p.TimeRemaining != nil {
		fields = append(fields, field{r.keys.TimeRemainingKey(), strconv.Itoa(*p.TimeRemaining)})
	}

	return append(fields,
		field{r.keys.LastUpdateKey(), formatMillis(now)},
		field{r.keys.SessionActiveKey(), "true"},
	)
}

// Restore rebuilds the stored session. It returns nil, nil when no session is
// marked active. Time fields are recomputed from the start time.
func (r *SessionStateRepository) Restore(ctx context.Context) (*model.InterviewSessionState, error) {
	keys := []string{
		r.keys.SessionActiveKey(),
		r.keys.InterviewIDKey(),
		r.keys.InterviewTypeKey(),
		r.keys.StartTimeKey(),
		r.keys.QuestionNumberKey(),
		r.keys.TotalQuestionsKey(),
		r.keys.CurrentQuestionKey(),
		r.keys.ChatHistoryKey(),
		r.keys.WarningStatusKey(),
		r.keys.ProctoringKey(),
	}

	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	str := func(i int) string {
		s, _ := vals[i].(string)
		return s
	}

	if str(0) != "true" || str(1) == "" {
		return nil, nil
	}

	state := &model.InterviewSessionState{
		InterviewID:   str(1),
		InterviewType: model.InterviewType(str(2)),
		ChatHistory:   model.ChatHistory{},
	}

	if ms, err := strconv.ParseInt(str(3), 10, 64); err == nil {
		state.StartTime = time.UnixMilli(ms)
	}
	state.QuestionNumber, _ = strconv.Atoi(str(4))
	state.TotalQuestions, _ = strconv.Atoi(str(5))

	r.decodeField(str(6), &state.CurrentQuestion, "current_question")
	r.decodeField(str(7), &state.ChatHistory, "chat_history")
	r.decodeField(str(8), &state.WarningStatus, "warning_status")
	r.decodeField(str(9), &state.ProctoringViolations, "proctoring")

	if !state.StartTime.IsZero() {
		now := r.clock.Now()
		state.TimeElapsed = timer.Elapsed(state.StartTime, now, r.duration)
		state.TimeRemaining = timer.Remaining(state.StartTime, now, r.duration)
	}

	return state, nil
}

// decodeField leaves dst untouched when raw is empty or unreadable.
func (r *SessionStateRepository) decodeField(raw string, dst any, name string) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		r.log.Warn().Err(err).Str("field", name).Msg("Skipping unreadable stored field")
	}
}

// LastUpdate returns the time of the last save, or the zero time.
func (r *SessionStateRepository) LastUpdate(ctx context.Context) (time.Time, error) {
	val, err := r.rdb.Get(ctx, r.keys.LastUpdateKey()).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// Clear removes every key owned by the session store and nothing else.
func (r *SessionStateRepository) Clear(ctx context.Context) error {
	return r.rdb.Del(ctx, r.keys.AllKeys()...).Err()
}

// Replace clears the stored session and writes state in full.
func (r *SessionStateRepository) Replace(ctx context.Context, state *model.InterviewSessionState) error {
	if err := r.Clear(ctx); err != nil {
		r.log.Warn().Err(err).Msg("Clearing session before replace failed")
	}
	return r.Save(ctx, model.PatchFromState(state))
}

// isQuotaError matches Redis' maxmemory rejection, the storage-quota signal.
func isQuotaError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM")
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
