package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/response"
	"github.com/stemsi/intervue/internal/service"
)

// RecoveryHandler exposes the interrupted-session prompt.
type RecoveryHandler struct {
	recovery *service.RecoveryService
	sessions *service.SessionService
	log      zerolog.Logger
}

// NewRecoveryHandler creates a new RecoveryHandler.
func NewRecoveryHandler(recovery *service.RecoveryService, sessions *service.SessionService, log zerolog.Logger) *RecoveryHandler {
	return &RecoveryHandler{
		recovery: recovery,
		sessions: sessions,
		log:      log.With().Str("component", "recovery_handler").Logger(),
	}
}

// recoveryView is what the UI renders in the recovery prompt.
type recoveryView struct {
	model.RecoveryDescriptor
	Progress   string                 `json:"progress"`
	CanResume  bool                   `json:"can_resume"`
	Actions    []model.RecoveryAction `json:"actions"`
	HasPending bool                   `json:"has_pending_start"`
}

func newRecoveryView(d *model.RecoveryDescriptor) *recoveryView {
	if d == nil {
		return nil
	}
	return &recoveryView{
		RecoveryDescriptor: *d,
		Progress:           d.Progress(),
		CanResume:          d.CanResume(),
		Actions:            d.Actions(),
	}
}

// Get godoc
// GET /api/v1/recovery
// Returns the interrupted session, or null when there is none.
func (h *RecoveryHandler) Get(c *gin.Context) {
	d, err := h.recovery.Check(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	view := newRecoveryView(d)
	if view != nil {
		view.HasPending = h.recovery.HasPending()
	}
	response.Success(c, http.StatusOK, gin.H{"recovery": view})
}

// Resume godoc
// POST /api/v1/recovery/resume
func (h *RecoveryHandler) Resume(c *gin.Context) {
	snap, err := h.sessions.ResumeActive(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": snap})
}

// End godoc
// POST /api/v1/recovery/end
// Ends the interrupted session. A start that was blocked by it runs now.
func (h *RecoveryHandler) End(c *gin.Context) {
	started, err := h.sessions.EndRecovered(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"started_pending": started,
		"session":         h.sessions.Snapshot(),
	})
}
