package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/response"
	"github.com/stemsi/intervue/internal/service"
	"github.com/stemsi/intervue/internal/validator"
)

// AuthHandler handles the auth context of the agent.
type AuthHandler struct {
	auth *service.AuthService
	log  zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth: auth,
		log:  log.With().Str("component", "auth_handler").Logger(),
	}
}

// Login godoc
// POST /api/v1/auth/login
// Exchanges credentials with the REST API and stores the token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": session.User})
}

// Logout godoc
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context()); err != nil {
		failWith(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the signed-in user. The cached profile is served while the REST
// API is unreachable.
func (h *AuthHandler) Me(c *gin.Context) {
	profile, err := h.auth.Refresh(c.Request.Context())
	if err != nil {
		var urlErr *url.Error
		if !errors.As(err, &urlErr) {
			failWith(c, h.log, err)
			return
		}
		h.log.Warn().Err(err).Msg("Profile refresh failed, serving cached profile")
		if profile, err = h.auth.Profile(); err != nil {
			failWith(c, h.log, err)
			return
		}
	}

	response.Success(c, http.StatusOK, gin.H{"user": profile})
}
