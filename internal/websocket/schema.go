package websocket

import (
	"github.com/stemsi/intervue/internal/model"
)

// ─── Actions (UI → Agent) ───────────────────────────────────────────

type Action string

const (
	ActionAnswer     Action = "answer"
	ActionProctoring Action = "proctoring"
	ActionAudioEvent Action = "audio_event"
	ActionPing       Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest submits the transcript of a spoken or typed answer.
type AnswerRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// ProctoringRequest reports one locally detected violation.
type ProctoringRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind"`
}

// AudioEventRequest relays an event of the UI's audio element.
type AudioEventRequest struct {
	Action   Action  `json:"action"`
	Type     string  `json:"type"`
	AudioID  string  `json:"audio_id"`
	Duration float64 `json:"duration,omitempty"`
	Code     int     `json:"code,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// ─── Events (Agent → UI) ────────────────────────────────────────────

type Event string

const (
	EventState      Event = "state"
	EventConnection Event = "connection"
	EventQuestion   Event = "question"
	EventAnalysis   Event = "analysis"
	EventWarning    Event = "warning"
	EventTerminated Event = "terminated"
	EventCompleted  Event = "completed"
	EventTimer      Event = "timer"
	EventError      Event = "error"
	EventAudio      Event = "audio"
	EventPong       Event = "pong"
)

// Audio command operations.
const (
	AudioOpLoad   = "load"
	AudioOpPlay   = "play"
	AudioOpPause  = "pause"
	AudioOpSeek   = "seek"
	AudioOpUnload = "unload"
)

type StateResponse struct {
	Event Event `json:"event"`
	State any   `json:"state"`
}

type ConnectionResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type QuestionResponse struct {
	Event          Event          `json:"event"`
	Question       model.Question `json:"question"`
	QuestionNumber int            `json:"question_number"`
	TotalQuestions int            `json:"total_questions"`
}

type AnalysisResponse struct {
	Event      Event                 `json:"event"`
	QuestionID string                `json:"question_id"`
	Analysis   *model.AnswerAnalysis `json:"analysis"`
}

type WarningResponse struct {
	Event   Event               `json:"event"`
	Message string              `json:"message"`
	Status  model.WarningStatus `json:"status"`
}

// TerminalResponse announces a final state and the only actions left.
type TerminalResponse struct {
	Event   Event    `json:"event"`
	Reason  string   `json:"reason"`
	Message string   `json:"message"`
	Actions []string `json:"actions"`
}

type TimerResponse struct {
	Event     Event `json:"event"`
	Elapsed   int   `json:"elapsed"`
	Remaining int   `json:"remaining"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// AudioCommand drives the UI's audio element.
type AudioCommand struct {
	Event    Event   `json:"event"`
	Op       string  `json:"op"`
	AudioID  string  `json:"audio_id,omitempty"`
	URL      string  `json:"url,omitempty"`
	Data     string  `json:"data,omitempty"`
	MimeType string  `json:"mime_type,omitempty"`
	Position float64 `json:"position,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
