package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/backend"
	"github.com/stemsi/intervue/internal/config"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/repository"
	"github.com/stemsi/intervue/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth(t *testing.T, session *model.AuthSession) *service.AuthService {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	repo := repository.NewAuthRepository(rdb, config.NewStoreKeyStruct("intervue:test"))
	if session != nil {
		require.NoError(t, repo.Save(context.Background(), session))
	}

	api, err := backend.New(backend.Config{BaseURL: "http://127.0.0.1:1"}, nil, zerolog.Nop())
	require.NoError(t, err)
	auth := service.NewAuthService(api, repo, zerolog.Nop())
	require.NoError(t, auth.Hydrate(context.Background()))
	return auth
}

func token(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": 7, "exp": exp.Unix()}).SignedString([]byte("x"))
	require.NoError(t, err)
	return tok
}

func serveAuth(auth *service.AuthService) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireAuth(auth), func(c *gin.Context) {
		c.String(http.StatusOK, GetProfile(c).Username)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	return w
}

func TestRequireAuth(t *testing.T) {
	t.Run("signed out", func(t *testing.T) {
		w := serveAuth(newAuth(t, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "TOKEN_REQUIRED")
	})

	t.Run("expired token", func(t *testing.T) {
		w := serveAuth(newAuth(t, &model.AuthSession{
			Token: token(t, time.Now().Add(-time.Hour)),
			User:  model.UserProfile{ID: "7", Username: "dana"},
		}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
	})

	t.Run("valid token", func(t *testing.T) {
		w := serveAuth(newAuth(t, &model.AuthSession{
			Token: token(t, time.Now().Add(time.Hour)),
			User:  model.UserProfile{ID: "7", Username: "dana"},
		}))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "dana", w.Body.String())
	})
}

func TestRateLimiterPerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(2, time.Minute)
	r := gin.New()
	r.POST("/p", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/p", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.2"), "buckets are per client")
}

func TestCacheControl(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/c", CacheControl(10*time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/c", nil))
	assert.Equal(t, "private, max-age=600", w.Header().Get("Cache-Control"))
}

func TestBrotli(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 64}))
	r.GET("/small", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/large", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"text": strings.Repeat("question ", 100)})
	})

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", "gzip, br;q=0.9")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := get("/small")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = get("/large")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	plain, err := io.ReadAll(brotli.NewReader(w.Body))
	require.NoError(t, err)
	assert.Contains(t, string(plain), "question question")
}

func TestRequireAuthPicksUpLaterLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	repo := repository.NewAuthRepository(rdb, config.NewStoreKeyStruct("intervue:test"))
	api, err := backend.New(backend.Config{BaseURL: "http://127.0.0.1:1"}, nil, zerolog.Nop())
	require.NoError(t, err)
	auth := service.NewAuthService(api, repo, zerolog.Nop())

	assert.Equal(t, http.StatusUnauthorized, serveAuth(auth).Code)

	// Login stored by another process.
	require.NoError(t, repo.Save(context.Background(), &model.AuthSession{
		Token: token(t, time.Now().Add(time.Hour)),
		User:  model.UserProfile{ID: "7", Username: "dana"},
	}))
	w := serveAuth(auth)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dana", w.Body.String())
}
