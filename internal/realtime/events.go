package realtime

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/stemsi/intervue/internal/model"
)

// ─── Outbound (Agent → Interview Server) ────────────────────────────

const (
	EmitJoin             = "interview:join"
	EmitGenerateFirst    = "question:generate-first"
	EmitAnswerSubmit     = "answer:submit"
	EmitReconnect        = "interview:reconnect"
	EmitProctoringUpdate = "proctoring:update"
	EmitProctoringGet    = "proctoring:get"
	EmitLeave            = "interview:leave"
)

type joinPayload struct {
	InterviewID string `json:"interviewId"`
	UserID      string `json:"userId"`
}

type interviewPayload struct {
	InterviewID string `json:"interviewId"`
}

type answerPayload struct {
	InterviewID string                     `json:"interviewId"`
	QuestionID  string                     `json:"questionId"`
	Answer      string                     `json:"answer"`
	Proctoring  model.ProctoringViolations `json:"proctoringData"`
}

type proctoringPayload struct {
	InterviewID string                     `json:"interviewId"`
	Proctoring  model.ProctoringViolations `json:"proctoringData"`
}

// ─── Inbound (Interview Server → Agent) ─────────────────────────────

const (
	OnQuestionFirst       = "question:first"
	OnQuestionNext        = "question:next"
	OnQuestionGenerating  = "question:generating"
	OnQuestionError       = "question:error"
	OnAnswerAnalyzing     = "answer:analyzing"
	OnAnswerSubmitted     = "answer:submitted"
	OnAnswerError         = "answer:error"
	OnWarning             = "interview:warning"
	OnComplete            = "interview:complete"
	OnTerminated          = "interview:terminated"
	OnReconnectionSuccess = "reconnection:success"
	OnReconnectionError   = "reconnection:error"
	OnProctoringData      = "proctoring:data"
	OnProctoringUpdated   = "proctoring:updated"
	OnProctoringError     = "proctoring:error"
	OnTimerUpdate         = "timer:update"
)

// Envelope wraps every inbound payload.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// Event is the closed set of inbound notifications delivered to a Handler.
// Handlers switch on the concrete type.
type Event interface {
	EventName() string
}

// QuestionGenerating reports that the server started generating a question.
type QuestionGenerating struct{}

// QuestionReceived carries question:first or question:next.
type QuestionReceived struct {
	First          bool           `json:"-"`
	Question       model.Question `json:"question"`
	QuestionNumber int            `json:"questionNumber"`
	TotalQuestions int            `json:"totalQuestions"`
	MessageID      string         `json:"messageId"`
	StartTime      *time.Time     `json:"startTime,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// AnswerAnalyzing reports that the submitted answer is being analyzed.
type AnswerAnalyzing struct {
	QuestionID string `json:"questionId"`
}

// AnswerSubmitted is the server's acknowledgement of an answer, with analysis.
type AnswerSubmitted struct {
	QuestionID     string                `json:"questionId"`
	Answer         string                `json:"answer"`
	MessageID      string                `json:"messageId"`
	Analysis       *model.AnswerAnalysis `json:"analysis,omitempty"`
	IsLastQuestion bool                  `json:"isLastQuestion"`
	Timestamp      time.Time             `json:"timestamp"`
}

// Warning is a content warning. A terminating warning ends the session.
type Warning struct {
	Message      string     `json:"message"`
	WarningCount int        `json:"warningCount"`
	IsTerminated bool       `json:"isTerminated"`
	CanContinue  bool       `json:"canContinue"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// Status converts the warning into the session's warning status.
func (w Warning) Status() model.WarningStatus {
	return model.WarningStatus{
		Count:         w.WarningCount,
		IsTerminated:  w.IsTerminated,
		CanContinue:   w.CanContinue && !w.IsTerminated,
		LastWarningAt: w.Timestamp,
	}
}

// Completed ends the session normally.
type Completed struct {
	Message string          `json:"message"`
	Summary json.RawMessage `json:"summary,omitempty"`
}

// Terminated ends the session by server decision.
type Terminated struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Reconnected is the authoritative state sent after interview:reconnect. It
// overwrites local state.
type Reconnected struct {
	InterviewID          string                     `json:"interviewId"`
	InterviewType        model.InterviewType        `json:"interviewType"`
	StartTime            time.Time                  `json:"startTime"`
	QuestionNumber       int                        `json:"questionNumber"`
	TotalQuestions       int                        `json:"totalQuestions"`
	CurrentQuestion      *model.Question            `json:"currentQuestion"`
	ChatHistory          model.ChatHistory          `json:"chatHistory"`
	WarningStatus        model.WarningStatus        `json:"warningStatus"`
	ProctoringViolations model.ProctoringViolations `json:"proctoringData"`
	TimeRemaining        *int                       `json:"timeRemaining,omitempty"`
}

// State builds the session state described by r. Time fields are left for
// the caller to derive from StartTime.
func (r Reconnected) State() *model.InterviewSessionState {
	history := r.ChatHistory
	if history == nil {
		history = model.ChatHistory{}
	}
	return &model.InterviewSessionState{
		InterviewID:          r.InterviewID,
		InterviewType:        r.InterviewType,
		StartTime:            r.StartTime,
		QuestionNumber:       r.QuestionNumber,
		TotalQuestions:       r.TotalQuestions,
		CurrentQuestion:      r.CurrentQuestion,
		ChatHistory:          history,
		WarningStatus:        r.WarningStatus,
		ProctoringViolations: r.ProctoringViolations,
	}
}

// ProctoringData is the server's view of the violation counters.
type ProctoringData struct {
	Updated    bool                       `json:"-"`
	Violations model.ProctoringViolations `json:"proctoringData"`
}

// TimerUpdate is a server-pushed remaining time, in seconds.
type TimerUpdate struct {
	TimeRemaining int `json:"timeRemaining"`
}

// ErrorEvent is an application error reported by the server. It is never
// retried by the client.
type ErrorEvent struct {
	Source  string `json:"-"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Family returns the event namespace the failure belongs to, for example
// "question" for both question:error and a failed question:first.
func (e *ErrorEvent) Family() string {
	family, _, _ := strings.Cut(e.Source, ":")
	return family
}

func (e *ErrorEvent) Error() string {
	if e.Code != "" {
		return e.Source + ": " + e.Message + " (" + e.Code + ")"
	}
	return e.Source + ": " + e.Message
}

// ConnectionChanged reports a transport state change. Err is set when the
// transport gave up.
type ConnectionChanged struct {
	Phase       Phase
	Reconnected bool
	Err         error
}

func (QuestionGenerating) EventName() string { return OnQuestionGenerating }
func (AnswerAnalyzing) EventName() string    { return OnAnswerAnalyzing }
func (AnswerSubmitted) EventName() string    { return OnAnswerSubmitted }
func (Warning) EventName() string            { return OnWarning }
func (Completed) EventName() string          { return OnComplete }
func (Terminated) EventName() string         { return OnTerminated }
func (Reconnected) EventName() string        { return OnReconnectionSuccess }
func (TimerUpdate) EventName() string        { return OnTimerUpdate }
func (e *ErrorEvent) EventName() string      { return e.Source }
func (ConnectionChanged) EventName() string  { return "connection" }

func (e QuestionReceived) EventName() string {
	if e.First {
		return OnQuestionFirst
	}
	return OnQuestionNext
}

func (e ProctoringData) EventName() string {
	if e.Updated {
		return OnProctoringUpdated
	}
	return OnProctoringData
}
