package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/intervue/internal/identity"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/response"
	"github.com/stemsi/intervue/internal/service"
)

const (
	// ContextKeyProfile is the Gin context key for the signed-in user's profile.
	ContextKeyProfile = "profile"
)

// RequireAuth rejects requests while no auth context is available. A signed
// out agent re-reads the store first so a login made through the CLI is picked
// up. The token itself is verified by the REST API; only its expiry is checked
// here so an expired login fails fast.
func RequireAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.Token()
		if token == "" {
			if err := auth.Hydrate(c.Request.Context()); err == nil {
				token = auth.Token()
			}
		}
		if token == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if exp, ok := identity.ExpiresAt(token); ok && time.Now().After(exp) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		}

		profile, err := auth.Profile()
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		c.Set(ContextKeyProfile, profile)
		c.Next()
	}
}

// GetProfile retrieves the profile stored by RequireAuth.
func GetProfile(c *gin.Context) *model.UserProfile {
	val, exists := c.Get(ContextKeyProfile)
	if !exists {
		return nil
	}
	profile, ok := val.(*model.UserProfile)
	if !ok {
		return nil
	}
	return profile
}
