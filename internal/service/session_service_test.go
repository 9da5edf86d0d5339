package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/config"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/realtime"
	"github.com/stemsi/intervue/internal/repository"
	"github.com/stemsi/intervue/internal/socketio"
	"github.com/stemsi/intervue/internal/socketio/socketiotest"
	ws "github.com/stemsi/intervue/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitTimeout = 3 * time.Second
	waitTick    = 20 * time.Millisecond
)

type sessionFixture struct {
	*fixture
	rt      *socketiotest.Server
	archive *repository.ArchiveQueue
	stream  *ws.Stream
	svc     *SessionService
}

func newSessionFixture(t *testing.T, onEvent socketiotest.EventFunc) *sessionFixture {
	t.Helper()
	return newSessionFixtureArchive(t, onEvent, true)
}

// newSessionFixtureArchive builds the service with or without an archive queue.
func newSessionFixtureArchive(t *testing.T, onEvent socketiotest.EventFunc, archived bool) *sessionFixture {
	t.Helper()
	f := newFixture(t)

	srv := socketiotest.NewServer(onEvent)
	t.Cleanup(srv.Close)

	var archive *repository.ArchiveQueue
	if archived {
		archive = repository.NewArchiveQueue(f.rdb)
	}
	stream := ws.NewStream(zerolog.Nop())
	auth := NewAuthService(f.rest, repository.NewAuthRepository(f.rdb, f.keys), zerolog.Nop())

	svc := NewSessionService(SessionConfig{
		Transport: socketio.Options{
			URL:               srv.WebSocketURL(),
			ReconnectAttempts: 2,
			ReconnectDelay:    20 * time.Millisecond,
		},
		Duration: 45 * time.Minute,
	}, f.rest, auth, f.recovery(), f.store, archive, stream, nil, f.clock, zerolog.Nop())
	t.Cleanup(svc.Shutdown)

	return &sessionFixture{fixture: f, rt: srv, archive: archive, stream: stream, svc: svc}
}

// observe attaches a UI connection to the stream and returns the decoded
// messages it receives.
func (sf *sessionFixture) observe(t *testing.T) <-chan map[string]any {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ui := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sf.stream.Attach(conn)
	}))
	t.Cleanup(ui.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ui.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, sf.stream.Connected, waitTimeout, waitTick)

	out := make(chan map[string]any, 256)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if json.Unmarshal(raw, &msg) == nil {
				out <- msg
			}
		}
	}()
	return out
}

// waitEvent returns the next UI message with the given event name.
func waitEvent(t *testing.T, msgs <-chan map[string]any, event ws.Event) map[string]any {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case msg := <-msgs:
			if msg["event"] == string(event) {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for ui event %s", event)
			return nil
		}
	}
}

func envelope(data map[string]any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

func question(id string, number int) map[string]any {
	return envelope(map[string]any{
		"question":       map[string]any{"id": id, "text": "Question " + id},
		"questionNumber": number,
		"totalQuestions": 3,
		"messageId":      "msg-" + id,
	})
}

// interviewer answers the first-question request and every answer with an
// analysis followed by the next question.
func interviewer(conn *socketiotest.Conn, ev socketiotest.Event) {
	switch ev.Name {
	case realtime.EmitGenerateFirst:
		_ = conn.Emit(realtime.OnQuestionFirst, question("q1", 1))
	case realtime.EmitAnswerSubmit:
		var body struct {
			QuestionID string `json:"questionId"`
		}
		_ = json.Unmarshal(ev.Payload, &body)
		_ = conn.Emit(realtime.OnAnswerSubmitted, envelope(map[string]any{
			"questionId": body.QuestionID,
			"messageId":  "ans-" + body.QuestionID,
			"analysis":   map[string]any{"score": 8, "feedback": "Clear and correct"},
		}))
		_ = conn.Emit(realtime.OnQuestionNext, question("q2", 2))
	}
}

func topicRequest() model.StartInterviewRequest {
	return model.StartInterviewRequest{InterviewType: model.InterviewTypeTopic, Topic: "Go concurrency", TotalQuestions: 3}
}

func awaitingQuestion(sf *sessionFixture, id string) func() bool {
	return func() bool {
		snap := sf.svc.Snapshot()
		return snap.Phase == realtime.PhaseAwaitingAnswer &&
			snap.State != nil && snap.State.CurrentQuestion != nil &&
			snap.State.CurrentQuestion.ID == id
	}
}

func TestStartPersistsFirstQuestion(t *testing.T) {
	sf := newSessionFixture(t, interviewer)
	ctx := context.Background()

	require.NoError(t, sf.svc.Start(ctx, topicRequest()))
	require.Eventually(t, awaitingQuestion(sf, "q1"), waitTimeout, waitTick)
	assert.Equal(t, 1, sf.api.createdCount())

	snap := sf.svc.Snapshot()
	assert.Equal(t, "iv-1", snap.InterviewID)
	assert.Equal(t, []string{ActionAnswer, ActionEnd}, snap.Actions)
	assert.True(t, snap.Guest, "no signed-in user falls back to a guest identity")

	require.Eventually(t, func() bool {
		local, err := sf.store.Restore(ctx)
		return err == nil && local != nil && local.CurrentQuestion != nil && local.CurrentQuestion.ID == "q1"
	}, waitTimeout, waitTick)

	local, err := sf.store.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "iv-1", local.InterviewID)
	assert.Equal(t, model.InterviewTypeTopic, local.InterviewType)
	assert.Equal(t, 1, local.QuestionNumber)
	assert.Equal(t, 3, local.TotalQuestions)
	require.Len(t, local.ChatHistory, 1)
	assert.Equal(t, model.ChatRoleAI, local.ChatHistory[0].Role)

	assert.ErrorIs(t, sf.svc.Start(ctx, topicRequest()), ErrSessionInProgress)
}

func TestSubmitAnswerAppendsTranscript(t *testing.T) {
	sf := newSessionFixture(t, interviewer)
	ctx := context.Background()
	ui := sf.observe(t)

	require.NoError(t, sf.svc.Start(ctx, topicRequest()))
	require.Eventually(t, awaitingQuestion(sf, "q1"), waitTimeout, waitTick)

	err := sf.svc.SubmitAnswer(ctx, model.SubmitAnswerRequest{QuestionID: "q9", Answer: "wrong question"})
	assert.ErrorIs(t, err, realtime.ErrStaleQuestion)

	require.NoError(t, sf.svc.SubmitAnswer(ctx, model.SubmitAnswerRequest{QuestionID: "q1", Answer: "Channels and goroutines"}))

	analysis := waitEvent(t, ui, ws.EventAnalysis)
	assert.Equal(t, "q1", analysis["question_id"])
	next := waitEvent(t, ui, ws.EventQuestion)
	assert.EqualValues(t, 2, next["question_number"])

	require.Eventually(t, awaitingQuestion(sf, "q2"), waitTimeout, waitTick)
	history := sf.svc.Snapshot().State.ChatHistory
	require.Len(t, history, 3)
	assert.Equal(t, model.ChatRoleUser, history[1].Role)
	assert.Equal(t, "Channels and goroutines", history[1].Text)
	require.NotNil(t, history[1].AnswerAnalysis)
	assert.Equal(t, 8.0, history[1].AnswerAnalysis.Score)

	require.Eventually(t, func() bool {
		local, err := sf.store.Restore(ctx)
		return err == nil && local != nil && len(local.ChatHistory) == 3 && local.QuestionNumber == 2
	}, waitTimeout, waitTick)
}

func TestRedeliveredQuestionKeepsTranscript(t *testing.T) {
	sf := newSessionFixture(t, interviewer)
	ctx := context.Background()
	ui := sf.observe(t)

	require.NoError(t, sf.svc.Start(ctx, topicRequest()))
	require.Eventually(t, awaitingQuestion(sf, "q1"), waitTimeout, waitTick)
	require.NoError(t, sf.svc.SubmitAnswer(ctx, model.SubmitAnswerRequest{QuestionID: "q1", Answer: "Channels"}))
	require.Eventually(t, awaitingQuestion(sf, "q2"), waitTimeout, waitTick)

	before := append(model.ChatHistory(nil), sf.svc.Snapshot().State.ChatHistory...)
	require.Len(t, before, 3)
	assert.Equal(t, "q1", waitEvent(t, ui, ws.EventQuestion)["question"].(map[string]any)["id"])
	assert.Equal(t, "q2", waitEvent(t, ui, ws.EventQuestion)["question"].(map[string]any)["id"])

	// Same event twice, then the same question under another message id.
	sf.rt.Emit(realtime.OnQuestionNext, question("q2", 2))
	waitEvent(t, ui, ws.EventQuestion)
	redelivered := question("q2", 2)
	redelivered["data"].(map[string]any)["messageId"] = "msg-q2-retry"
	sf.rt.Emit(realtime.OnQuestionNext, redelivered)
	waitEvent(t, ui, ws.EventQuestion)

	snap := sf.svc.Snapshot()
	assert.Equal(t, before, snap.State.ChatHistory)
	assert.Equal(t, 2, snap.State.QuestionNumber)

	local, err := sf.store.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Len(t, local.ChatHistory, 3)
}

func TestTerminatingWarningEndsSession(t *testing.T) {
	sf := newSessionFixture(t, func(conn *socketiotest.Conn, ev socketiotest.Event) {
		switch ev.Name {
		case realtime.EmitGenerateFirst:
			_ = conn.Emit(realtime.OnQuestionFirst, question("q1", 1))
		case realtime.EmitAnswerSubmit:
			_ = conn.Emit(realtime.OnWarning, envelope(map[string]any{
				"message":      "Interview terminated due to inappropriate language.",
				"warningCount": 3,
				"isTerminated": true,
				"canContinue":  false,
			}))
		}
	})
	ctx := context.Background()
	ui := sf.observe(t)

	require.NoError(t, sf.svc.Start(ctx, topicRequest()))
	require.Eventually(t, awaitingQuestion(sf, "q1"), waitTimeout, waitTick)
	require.NoError(t, sf.svc.SubmitAnswer(ctx, model.SubmitAnswerRequest{QuestionID: "q1", Answer: "..."}))

	warning := waitEvent(t, ui, ws.EventWarning)
	status, _ := warning["status"].(map[string]any)
	assert.Equal(t, true, status["isTerminated"])

	terminal := waitEvent(t, ui, ws.EventTerminated)
	assert.Equal(t, "warnings", terminal["reason"])
	assert.Equal(t, []any{ActionAcknowledge}, terminal["actions"])

	snap := sf.svc.Snapshot()
	assert.Equal(t, model.OutcomeTerminated, snap.Outcome)
	assert.Equal(t, []string{ActionAcknowledge}, snap.Actions)

	local, err := sf.store.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, local, "terminated sessions are not resumable")

	n, err := sf.archive.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	err = sf.svc.SubmitAnswer(ctx, model.SubmitAnswerRequest{QuestionID: "q1", Answer: "again"})
	assert.ErrorIs(t, err, realtime.ErrSessionTerminated)

	require.NoError(t, sf.svc.Acknowledge(ctx))
	assert.Empty(t, sf.svc.Snapshot().InterviewID)
	assert.ErrorIs(t, sf.svc.Acknowledge(ctx), ErrNoActiveSession)
}

func TestCompletionArchivesTranscript(t *testing.T) {
	sf := newSessionFixture(t, interviewer)
	ctx := context.Background()
	ui := sf.observe(t)

	require.NoError(t, sf.svc.Start(ctx, topicRequest()))
	require.Eventually(t, awaitingQuestion(sf, "q1"), waitTimeout, waitTick)

	sf.rt.Emit(realtime.OnComplete, envelope(map[string]any{"message": "Well done"}))

	done := waitEvent(t, ui, ws.EventCompleted)
	assert.Equal(t, "Well done", done["message"])
	assert.Equal(t, model.OutcomeCompleted, sf.svc.Snapshot().Outcome)

	raw, err := sf.rdb.LPop(ctx, config.WorkerKey.ArchiveQueue).Result()
	require.NoError(t, err)
	var rec model.ArchiveRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, "iv-1", rec.InterviewID)
	assert.Equal(t, model.OutcomeCompleted, rec.Outcome)
	assert.Equal(t, "completed", rec.Reason)
	assert.Len(t, rec.Messages, 1)
}

func TestSaveAfterFinishKeepsStoreCleared(t *testing.T) {
	sf := newSessionFixture(t, interviewer)
	ctx := context.Background()
	ui := sf.observe(t)

	require.NoError(t, sf.svc.Start(ctx, topicRequest()))
	require.Eventually(t, awaitingQuestion(sf, "q1"), waitTimeout, waitTick)

	sf.svc.mu.Lock()
	sess := sf.svc.active
	sf.svc.mu.Unlock()
	require.NotNil(t, sess)

	sf.rt.Emit(realtime.OnComplete, envelope(map[string]any{"message": "Well done"}))
	waitEvent(t, ui, ws.EventCompleted)

	// A timer write that passed its check just before the session finished.
	remaining := 1200
	sf.svc.save(ctx, sess, model.SessionPatch{InterviewID: sess.interviewID, TimeRemaining: &remaining})

	local, err := sf.store.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, local)
}

func TestCompletionWithoutArchiveQueuesNothing(t *testing.T) {
	sf := newSessionFixtureArchive(t, interviewer, false)
	ctx := context.Background()
	ui := sf.observe(t)

	require.NoError(t, sf.svc.Start(ctx, topicRequest()))
	require.Eventually(t, awaitingQuestion(sf, "q1"), waitTimeout, waitTick)

	sf.rt.Emit(realtime.OnComplete, envelope(map[string]any{"message": "Well done"}))
	waitEvent(t, ui, ws.EventCompleted)
	assert.Equal(t, model.OutcomeCompleted, sf.svc.Snapshot().Outcome)

	assert.False(t, sf.mr.Exists(config.WorkerKey.ArchiveQueue))
}

func TestStartBlockedByActiveSessionRunsAfterEnd(t *testing.T) {
	sf := newSessionFixture(t, interviewer)
	ctx := context.Background()
	sf.api.setActive(http.StatusOK, activeBody(t, map[string]any{
		"interviewId": "abc123", "interviewType": "topic", "timeRemaining": 600, "questionNumber": 4, "totalQuestions": 10,
	}))

	err := sf.svc.Start(ctx, topicRequest())
	var active *ActiveSessionError
	require.ErrorAs(t, err, &active)
	assert.Equal(t, "Question 4 of 10", active.Descriptor.Progress())
	assert.Zero(t, sf.api.createdCount())

	sf.api.setActive(http.StatusOK, `{"success":true,"data":{"hasActiveInterview":false}}`)
	ran, err := sf.svc.EndRecovered(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"abc123"}, sf.api.endedIDs())
	assert.Equal(t, 1, sf.api.createdCount())

	require.Eventually(t, awaitingQuestion(sf, "q1"), waitTimeout, waitTick)
}

func TestResumeActiveAppliesServerState(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 50, 0, 0, time.UTC)
	sf := newSessionFixture(t, func(conn *socketiotest.Conn, ev socketiotest.Event) {
		if ev.Name != realtime.EmitReconnect {
			return
		}
		_ = conn.Emit(realtime.OnReconnectionSuccess, envelope(map[string]any{
			"interviewId":     "abc123",
			"interviewType":   "topic",
			"startTime":       start.Format(time.RFC3339),
			"questionNumber":  2,
			"totalQuestions":  10,
			"currentQuestion": map[string]any{"id": "q2", "text": "Explain interfaces"},
			"chatHistory": []map[string]any{
				{"id": "m1", "role": "ai", "text": "Explain goroutines", "questionId": "q1", "timestamp": "2026-03-01T08:51:00Z"},
				{"id": "m2", "role": "user", "text": "Lightweight threads", "questionId": "q1", "timestamp": "2026-03-01T08:52:00Z"},
				{"id": "m3", "role": "ai", "text": "Explain interfaces", "questionId": "q2", "timestamp": "2026-03-01T08:53:00Z"},
			},
			"warningStatus":  map[string]any{"count": 1, "isTerminated": false, "canContinue": true},
			"proctoringData": map[string]any{"tabSwitches": 2, "copyPasteCount": 1, "faceDetectionIssues": 0},
			"timeRemaining":  1800,
		}))
	})
	ctx := context.Background()

	sf.api.setActive(http.StatusOK, activeBody(t, map[string]any{
		"interviewId": "abc123", "interviewType": "topic", "timeRemaining": 2100, "questionNumber": 2, "totalQuestions": 10,
		"startTime": start.Format(time.RFC3339),
	}))
	sf.api.setResume(http.StatusOK, `{"success":true,"data":{"interviewId":"abc123","interviewType":"topic",
		"startTime":"`+start.Format(time.RFC3339)+`","questionNumber":2,"totalQuestions":10,
		"currentQuestion":{"id":"q2","text":"Explain interfaces"},"chatHistory":[]}}`)

	_, err := sf.svc.recovery.Check(ctx)
	require.NoError(t, err)

	snap, err := sf.svc.ResumeActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", snap.InterviewID)

	require.Eventually(t, func() bool {
		s := sf.svc.Snapshot()
		return s.State != nil && len(s.State.ChatHistory) == 3 && s.Phase == realtime.PhaseAwaitingAnswer
	}, waitTimeout, waitTick)

	s := sf.svc.Snapshot()
	assert.Equal(t, 1800, s.State.TimeRemaining)
	assert.Equal(t, 2, s.State.ProctoringViolations.TabSwitches)
	assert.Equal(t, 1, s.State.WarningStatus.Count)

	counts, err := sf.svc.RecordProctoring(ctx, "tab_switch")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.TabSwitches, "counters continue from the server's values")

	require.Eventually(t, func() bool {
		local, err := sf.store.Restore(ctx)
		return err == nil && local != nil && len(local.ChatHistory) == 3 && local.ProctoringViolations.TabSwitches == 3
	}, waitTimeout, waitTick)
}

func TestEndAbandonsRunningSession(t *testing.T) {
	sf := newSessionFixture(t, interviewer)
	ctx := context.Background()

	require.NoError(t, sf.svc.Start(ctx, topicRequest()))
	require.Eventually(t, awaitingQuestion(sf, "q1"), waitTimeout, waitTick)

	require.NoError(t, sf.svc.End(ctx))
	assert.Equal(t, []string{"iv-1"}, sf.api.endedIDs())
	assert.Empty(t, sf.svc.Snapshot().InterviewID)

	local, err := sf.store.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, local)

	n, err := sf.archive.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.ErrorIs(t, sf.svc.End(ctx), ErrNoActiveSession)
}

func TestTimeLimitExpiresSession(t *testing.T) {
	sf := newSessionFixture(t, interviewer)
	ctx := context.Background()
	ui := sf.observe(t)

	require.NoError(t, sf.svc.Start(ctx, topicRequest()))
	require.Eventually(t, awaitingQuestion(sf, "q1"), waitTimeout, waitTick)

	sf.clock.Advance(46 * time.Minute)

	terminal := waitEvent(t, ui, ws.EventTerminated)
	assert.Equal(t, "time_limit", terminal["reason"])
	assert.Equal(t, model.OutcomeExpired, sf.svc.Snapshot().Outcome)

	require.Eventually(t, func() bool {
		return len(sf.api.endedIDs()) == 1
	}, waitTimeout, waitTick)

	err := sf.svc.SubmitAnswer(ctx, model.SubmitAnswerRequest{QuestionID: "q1", Answer: "late"})
	assert.ErrorIs(t, err, ErrSessionExpired)
}
