// Package identity resolves which user a realtime connection joins as.
package identity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GuestPrefix marks a fallback identity derived from the interview id.
const GuestPrefix = "guest-"

var guestNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("intervue:guest"))

// userClaims are checked in order.
var userClaims = []string{"id", "user_id", "sub"}

// Identity is the user a connection joins as. Fallback identities are
// degraded: the server sees a guest rather than the signed-in user.
type Identity struct {
	UserID   string
	Fallback bool
}

func (i Identity) String() string {
	if i.Fallback {
		return i.UserID + " (fallback)"
	}
	return i.UserID
}

// Resolve takes the user id from the access token's claims. The token is not
// verified: the agent never holds the signing secret and the servers verify it
// themselves. Without a usable claim the id is derived from interviewID, so
// the same interview always joins as the same guest.
func Resolve(log zerolog.Logger, token, interviewID string) Identity {
	id, err := userIDFromToken(token)
	if err == nil {
		return Identity{UserID: id}
	}

	log.Warn().
		Err(err).
		Str("interview_id", interviewID).
		Msg("No user id in access token, joining with fallback identity")
	return Identity{UserID: Guest(interviewID), Fallback: true}
}

// Guest returns the deterministic fallback user id for interviewID.
func Guest(interviewID string) string {
	return GuestPrefix + uuid.NewSHA1(guestNamespace, []byte(interviewID)).String()
}

func userIDFromToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("no access token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	for _, name := range userClaims {
		switch v := claims[name].(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	}
	return "", fmt.Errorf("token has no user claim")
}

// ExpiresAt returns the exp claim of token. ok is false for tokens that
// cannot be parsed or carry no expiry.
func ExpiresAt(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	nd, err := claims.GetExpirationTime()
	if err != nil || nd == nil {
		return time.Time{}, false
	}
	return nd.Time, true
}
