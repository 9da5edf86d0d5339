package model

import (
	"fmt"
	"time"
)

// RecoverySource tells where a recovery descriptor came from.
type RecoverySource string

const (
	RecoverySourceServer RecoverySource = "server"
	RecoverySourceLocal  RecoverySource = "local"
)

// RecoveryDescriptor is the minimal summary of an active session shown in the
// resume-or-end decision.
type RecoveryDescriptor struct {
	InterviewID    string         `json:"interviewId"`
	InterviewType  InterviewType  `json:"interviewType"`
	QuestionNumber int            `json:"questionNumber"`
	TotalQuestions int            `json:"totalQuestions"`
	TimeRemaining  int            `json:"timeRemaining"`
	StartTime      time.Time      `json:"startTime"`
	Source         RecoverySource `json:"source"`

	// ObservedAt is when TimeRemaining was reported.
	ObservedAt time.Time `json:"-"`
}

// At returns d with TimeRemaining counted down to now.
func (d RecoveryDescriptor) At(now time.Time) RecoveryDescriptor {
	if d.ObservedAt.IsZero() || !now.After(d.ObservedAt) {
		return d
	}
	passed := int(now.Sub(d.ObservedAt) / time.Second)
	d.TimeRemaining = max(0, d.TimeRemaining-passed)
	d.ObservedAt = d.ObservedAt.Add(time.Duration(passed) * time.Second)
	return d
}

// CanResume is false once the session's timer has run out.
func (d RecoveryDescriptor) CanResume() bool {
	return d.TimeRemaining > 0
}

// RecoveryAction names a choice offered to the user.
type RecoveryAction string

const (
	RecoveryActionResume     RecoveryAction = "resume"
	RecoveryActionEnd        RecoveryAction = "end"
	RecoveryActionEndExpired RecoveryAction = "end_expired"
)

// Actions lists the choices the UI may offer for d.
func (d RecoveryDescriptor) Actions() []RecoveryAction {
	if !d.CanResume() {
		return []RecoveryAction{RecoveryActionEndExpired}
	}
	return []RecoveryAction{RecoveryActionResume, RecoveryActionEnd}
}

// Progress renders the "Question N of M" label.
func (d RecoveryDescriptor) Progress() string {
	return fmt.Sprintf("Question %d of %d", d.QuestionNumber, d.TotalQuestions)
}

// ActiveInterview is the server's answer to "does this user have an active
// session".
type ActiveInterview struct {
	HasActiveInterview bool                `json:"hasActiveInterview"`
	Interview          *RecoveryDescriptor `json:"interview,omitempty"`
}

// ResumedInterview is the server's resume reply. ReportedRemaining is nil
// when the reply carried no timeRemaining.
type ResumedInterview struct {
	InterviewSessionState
	ReportedRemaining *int `json:"timeRemaining"`
}
