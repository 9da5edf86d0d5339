package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/middleware"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/response"
	"github.com/stemsi/intervue/internal/service"
	"github.com/stemsi/intervue/internal/validator"
)

// SessionHandler drives the active interview.
type SessionHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// Start godoc
// POST /api/v1/session
// Starts a new interview. 409 with the blocking session when one is active.
func (h *SessionHandler) Start(c *gin.Context) {
	var req model.StartInterviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessions.Start(c.Request.Context(), req); err != nil {
		failWith(c, h.log, err)
		return
	}
	if profile := middleware.GetProfile(c); profile != nil {
		h.log.Info().Str("user", profile.Username).Str("type", string(req.InterviewType)).Msg("Interview started")
	}
	response.Success(c, http.StatusCreated, gin.H{"session": h.sessions.Snapshot()})
}

// Get godoc
// GET /api/v1/session
func (h *SessionHandler) Get(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"session": h.sessions.Snapshot()})
}

// Answer godoc
// POST /api/v1/session/answer
// Accepted means the answer was sent; the analysis arrives on the stream.
func (h *SessionHandler) Answer(c *gin.Context) {
	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessions.SubmitAnswer(c.Request.Context(), req); err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"question_id": req.QuestionID})
}

// Proctoring godoc
// POST /api/v1/session/proctoring
func (h *SessionHandler) Proctoring(c *gin.Context) {
	var req model.ProctoringSignalRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	counts, err := h.sessions.RecordProctoring(c.Request.Context(), req.Kind)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"proctoring": counts})
}

// Acknowledge godoc
// POST /api/v1/session/acknowledge
func (h *SessionHandler) Acknowledge(c *gin.Context) {
	if err := h.sessions.Acknowledge(c.Request.Context()); err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": h.sessions.Snapshot()})
}

// End godoc
// DELETE /api/v1/session
func (h *SessionHandler) End(c *gin.Context) {
	if err := h.sessions.End(c.Request.Context()); err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "interview ended"})
}
