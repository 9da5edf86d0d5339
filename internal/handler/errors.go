package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/backend"
	"github.com/stemsi/intervue/internal/proctor"
	"github.com/stemsi/intervue/internal/realtime"
	"github.com/stemsi/intervue/internal/response"
	"github.com/stemsi/intervue/internal/service"
)

// sessionErrors maps sentinel errors of the session layer to HTTP replies.
var sessionErrors = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrNoActiveSession, http.StatusNotFound, response.ErrNoActiveSession},
	{service.ErrSessionExpired, http.StatusGone, response.ErrSessionExpired},
	{service.ErrSessionInProgress, http.StatusConflict, response.ErrConflict},
	{service.ErrSessionRunning, http.StatusConflict, response.ErrConflict},
	{service.ErrRealtimeDown, http.StatusServiceUnavailable, response.ErrRealtimeUnavailable},
	{service.ErrNotAuthenticated, http.StatusUnauthorized, response.ErrTokenRequired},
	{service.ErrTokenRejected, http.StatusUnauthorized, response.ErrTokenInvalid},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrEmptyUpload, http.StatusBadRequest, response.ErrInvalidPayload},
	{realtime.ErrSessionTerminated, http.StatusConflict, response.ErrSessionTerminated},
	{realtime.ErrSessionOver, http.StatusConflict, response.ErrSessionCompleted},
	{realtime.ErrStaleQuestion, http.StatusConflict, response.ErrStaleQuestion},
	{realtime.ErrAnswerInFlight, http.StatusConflict, response.ErrAnswerInFlight},
	{realtime.ErrNotJoined, http.StatusConflict, response.ErrNotJoined},
	{proctor.ErrUnknownKind, http.StatusBadRequest, response.ErrInvalidPayload},
}

// failWith writes the reply matching err. Unknown errors are logged and
// reported as internal.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	var active *service.ActiveSessionError
	if errors.As(err, &active) {
		response.FailWithData(c, http.StatusConflict, response.ErrActiveSession, newRecoveryView(&active.Descriptor))
		return
	}

	for _, m := range sessionErrors {
		if errors.Is(err, m.err) {
			response.Fail(c, m.status, m.code)
			return
		}
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized:
			response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		case http.StatusNotFound:
			response.FailWithMessage(c, http.StatusNotFound, response.ErrNotFound, apiErr.Message)
		default:
			response.FailWithMessage(c, http.StatusBadGateway, response.ErrUpstream, apiErr.Message)
		}
		return
	}

	var rtErr *realtime.ErrorEvent
	if errors.As(err, &rtErr) {
		response.FailWithMessage(c, http.StatusBadGateway, response.ErrUpstream, rtErr.Message)
		return
	}

	if c.Request.Context().Err() != nil {
		// Client went away.
		return
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		log.Warn().Err(err).Str("path", c.FullPath()).Msg("REST API unreachable")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrUpstreamUnavailable)
		return
	}

	log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}

// codeFor returns the error code reported for err on the UI stream.
func codeFor(err error) response.ErrCode {
	for _, m := range sessionErrors {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	var apiErr *backend.APIError
	var rtErr *realtime.ErrorEvent
	if errors.As(err, &apiErr) || errors.As(err, &rtErr) {
		return response.ErrUpstream
	}
	return response.ErrInternal
}
