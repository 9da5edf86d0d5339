package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Interview session ─────────────────────────────────────────────
	ErrActiveSession       ErrCode = "ACTIVE_SESSION_EXISTS"
	ErrNoActiveSession     ErrCode = "NO_ACTIVE_SESSION"
	ErrSessionExpired      ErrCode = "SESSION_EXPIRED"
	ErrSessionTerminated   ErrCode = "SESSION_TERMINATED"
	ErrSessionCompleted    ErrCode = "SESSION_COMPLETED"
	ErrStaleQuestion       ErrCode = "STALE_QUESTION"
	ErrAnswerInFlight      ErrCode = "ANSWER_IN_FLIGHT"
	ErrNotJoined           ErrCode = "NOT_JOINED"
	ErrRealtimeUnavailable ErrCode = "REALTIME_UNAVAILABLE"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrUpstream            ErrCode = "UPSTREAM_ERROR"
	ErrUpstreamUnavailable ErrCode = "UPSTREAM_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrTokenRequired:
		return "Sign in to continue."
	case ErrTokenInvalid:
		return "Your sign-in is no longer valid."
	case ErrTokenExpired:
		return "Your sign-in has expired. Please sign in again."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Interview session ─────────────────────────────────────────────
	case ErrActiveSession:
		return "You already have an interview in progress. Resume it or end it first."
	case ErrNoActiveSession:
		return "There is no interview in progress."
	case ErrSessionExpired:
		return "This interview has run out of time and can only be ended."
	case ErrSessionTerminated:
		return "This interview was terminated."
	case ErrSessionCompleted:
		return "This interview is already complete."
	case ErrStaleQuestion:
		return "That question is no longer current."
	case ErrAnswerInFlight:
		return "Your previous answer is still being analyzed."
	case ErrNotJoined:
		return "Still connecting to the interview. Try again in a moment."
	case ErrRealtimeUnavailable:
		return "Lost connection to the interview server."

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrUpstream:
		return "The interview service rejected the request."
	case ErrUpstreamUnavailable:
		return "The interview service is unreachable."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
