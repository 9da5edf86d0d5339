package model

import (
	"time"
)

// SessionOutcome is how an interview session ended.
type SessionOutcome string

const (
	OutcomeCompleted  SessionOutcome = "completed"
	OutcomeTerminated SessionOutcome = "terminated"
	OutcomeExpired    SessionOutcome = "expired"
	OutcomeEnded      SessionOutcome = "ended"
)

// ArchiveRecord is the transcript of a finished session, queued for the
// Postgres archive.
type ArchiveRecord struct {
	InterviewID    string               `json:"interview_id"`
	InterviewType  InterviewType        `json:"interview_type"`
	UserID         string               `json:"user_id"`
	Outcome        SessionOutcome       `json:"outcome"`
	Reason         string               `json:"reason,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	EndedAt        time.Time            `json:"ended_at"`
	QuestionNumber int                  `json:"question_number"`
	TotalQuestions int                  `json:"total_questions"`
	WarningCount   int                  `json:"warning_count"`
	Proctoring     ProctoringViolations `json:"proctoring"`
	Messages       ChatHistory          `json:"messages"`
}

// NewArchiveRecord snapshots state at the end of a session.
func NewArchiveRecord(state *InterviewSessionState, userID string, outcome SessionOutcome, reason string, endedAt time.Time) ArchiveRecord {
	messages := make(ChatHistory, len(state.ChatHistory))
	copy(messages, state.ChatHistory)
	return ArchiveRecord{
		InterviewID:    state.InterviewID,
		InterviewType:  state.InterviewType,
		UserID:         userID,
		Outcome:        outcome,
		Reason:         reason,
		StartedAt:      state.StartTime,
		EndedAt:        endedAt,
		QuestionNumber: state.QuestionNumber,
		TotalQuestions: state.TotalQuestions,
		WarningCount:   state.WarningStatus.Count,
		Proctoring:     state.ProctoringViolations,
		Messages:       messages,
	}
}
