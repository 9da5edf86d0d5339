package model

import (
	"time"
)

// InterviewType enumerates the kinds of mock interview a session can run.
type InterviewType string

const (
	InterviewTypeResume         InterviewType = "resume"
	InterviewTypeJobDescription InterviewType = "job-description"
	InterviewTypeTopic          InterviewType = "topic"
	InterviewTypeCompany        InterviewType = "company"
)

// Valid reports whether t is one of the known interview types.
func (t InterviewType) Valid() bool {
	switch t {
	case InterviewTypeResume, InterviewTypeJobDescription, InterviewTypeTopic, InterviewTypeCompany:
		return true
	}
	return false
}

// AudioPayload is synthesized speech attached to a question. Either URL or
// Data (base64) is set.
type AudioPayload struct {
	ID       string `json:"id"`
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Question is the prompt currently awaiting an answer.
type Question struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	Category   string        `json:"category,omitempty"`
	Difficulty string        `json:"difficulty,omitempty"`
	Audio      *AudioPayload `json:"audio,omitempty"`
}

// AnswerAnalysis is the server's assessment of a submitted answer.
type AnswerAnalysis struct {
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
}

// ChatRole identifies the author of a transcript entry.
type ChatRole string

const (
	ChatRoleAI   ChatRole = "ai"
	ChatRoleUser ChatRole = "user"
)

// ChatMessage is one transcript entry.
type ChatMessage struct {
	ID             string          `json:"id"`
	Role           ChatRole        `json:"role"`
	Text           string          `json:"text"`
	Timestamp      time.Time       `json:"timestamp"`
	QuestionID     string          `json:"questionId,omitempty"`
	AnswerAnalysis *AnswerAnalysis `json:"answerAnalysis,omitempty"`
}

// ChatHistory is the append-only transcript. Render order is insertion order.
type ChatHistory []ChatMessage

// Append adds msg unless an equivalent entry was already received: the same
// message id, or a second AI prompt (or user answer) for the same question.
// It reports whether the history grew.
func (h *ChatHistory) Append(msg ChatMessage) bool {
	for _, existing := range *h {
		if msg.ID != "" && existing.ID == msg.ID {
			return false
		}
		if msg.QuestionID != "" && existing.QuestionID == msg.QuestionID && existing.Role == msg.Role {
			return false
		}
	}
	*h = append(*h, msg)
	return true
}

// WarningStatus tracks content warnings issued by the server.
type WarningStatus struct {
	Count         int        `json:"count"`
	IsTerminated  bool       `json:"isTerminated"`
	CanContinue   bool       `json:"canContinue"`
	LastWarningAt *time.Time `json:"lastWarningAt"`
}

// Apply folds a newer server report into w. The count never decreases and
// termination is sticky.
func (w WarningStatus) Apply(next WarningStatus) WarningStatus {
	out := w
	if next.Count > out.Count {
		out.Count = next.Count
	}
	if next.LastWarningAt != nil {
		out.LastWarningAt = next.LastWarningAt
	}
	out.IsTerminated = w.IsTerminated || next.IsTerminated
	out.CanContinue = next.CanContinue && !out.IsTerminated
	return out
}

// ProctoringViolations are monotonically increasing violation counters.
type ProctoringViolations struct {
	TabSwitches         int `json:"tabSwitches"`
	CopyPasteCount      int `json:"copyPasteCount"`
	FaceDetectionIssues int `json:"faceDetectionIssues"`
}

// Merge returns the per-counter maximum of p and other.
func (p ProctoringViolations) Merge(other ProctoringViolations) ProctoringViolations {
	return ProctoringViolations{
		TabSwitches:         max(p.TabSwitches, other.TabSwitches),
		CopyPasteCount:      max(p.CopyPasteCount, other.CopyPasteCount),
		FaceDetectionIssues: max(p.FaceDetectionIssues, other.FaceDetectionIssues),
	}
}

// Total is the sum of all counters.
func (p ProctoringViolations) Total() int {
	return p.TabSwitches + p.CopyPasteCount + p.FaceDetectionIssues
}

// InterviewSessionState is the single mutable aggregate persisted and
// reconciled for an active session. TimeElapsed and TimeRemaining are derived
// from StartTime and are never read back as a source of truth.
type InterviewSessionState struct {
	InterviewID          string               `json:"interviewId"`
	InterviewType        InterviewType        `json:"interviewType"`
	StartTime            time.Time            `json:"startTime"`
	QuestionNumber       int                  `json:"questionNumber"`
	TotalQuestions       int                  `json:"totalQuestions"`
	CurrentQuestion      *Question            `json:"currentQuestion"`
	ChatHistory          ChatHistory          `json:"chatHistory"`
	WarningStatus        WarningStatus        `json:"warningStatus"`
	ProctoringViolations ProctoringViolations `json:"proctoringViolations"`
	TimeElapsed          int                  `json:"timeElapsed"`
	TimeRemaining        int                  `json:"timeRemaining"`
}

// AdvanceQuestion moves the question cursor forward; it never moves back.
func (s *InterviewSessionState) AdvanceQuestion(number, total int) {
	if number > s.QuestionNumber {
		s.QuestionNumber = number
	}
	if total > 0 {
		s.TotalQuestions = total
	}
}

// SessionPatch is a partial update for the persistence store. Nil fields are
// left untouched. InterviewID is required.
type SessionPatch struct {
	InterviewID          string
	InterviewType        *InterviewType
	StartTime            *time.Time
	QuestionNumber       *int
	TotalQuestions       *int
	CurrentQuestion      *Question
	ChatHistory          ChatHistory
	WarningStatus        *WarningStatus
	ProctoringViolations *ProctoringViolations
	TimeElapsed          *int
	TimeRemaining        *int
}

// PatchFromState builds a patch carrying every field of s.
func PatchFromState(s *InterviewSessionState) SessionPatch {
	st := *s
	history := st.ChatHistory
	if history == nil {
		history = ChatHistory{}
	}
	return SessionPatch{
		InterviewID:          st.InterviewID,
		InterviewType:        &st.InterviewType,
		StartTime:            &st.StartTime,
		QuestionNumber:       &st.QuestionNumber,
		TotalQuestions:       &st.TotalQuestions,
		CurrentQuestion:      st.CurrentQuestion,
		ChatHistory:          history,
		WarningStatus:        &st.WarningStatus,
		ProctoringViolations: &st.ProctoringViolations,
		TimeElapsed:          &st.TimeElapsed,
		TimeRemaining:        &st.TimeRemaining,
	}
}

// StartInterviewRequest is the payload for starting a new mock interview.
type StartInterviewRequest struct {
	InterviewType  InterviewType `json:"interviewType" binding:"required,interview_type"`
	Topic          string        `json:"topic" binding:"required_if=InterviewType topic,max=200"`
	Technology     string        `json:"technology" binding:"max=200"`
	Company        string        `json:"company" binding:"required_if=InterviewType company,max=200"`
	JobDescription string        `json:"jobDescription" binding:"required_if=InterviewType job-description,max=20000"`
	ResumeText     string        `json:"resumeText" binding:"required_if=InterviewType resume,max=50000"`
	TotalQuestions int           `json:"totalQuestions" binding:"omitempty,min=1,max=50"`
}

// CreatedInterview is the server's reply to an interview creation.
type CreatedInterview struct {
	InterviewID    string `json:"interviewId"`
	TotalQuestions int    `json:"totalQuestions"`
}

// SubmitAnswerRequest is the payload for answering the current question.
type SubmitAnswerRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	Answer     string `json:"answer" binding:"required,max=20000"`
}

// ProctoringSignalRequest reports one locally observed violation.
type ProctoringSignalRequest struct {
	Kind string `json:"kind" binding:"required,oneof=tab_switch copy_paste face_detection"`
}
