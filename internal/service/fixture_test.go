package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/backend"
	"github.com/stemsi/intervue/internal/config"
	"github.com/stemsi/intervue/internal/repository"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeAPI is a scripted REST API. Handlers reply with the configured JSON
// bodies; a zero status means 200.
type fakeAPI struct {
	*httptest.Server

	mu           sync.Mutex
	activeBody   string
	activeStatus int
	resumeBody   string
	resumeStatus int
	endStatus    int
	created      int
	ended        []string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{activeBody: `{"success":true,"data":{"hasActiveInterview":false}}`}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/interviews/active", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status, body := f.activeStatus, f.activeBody
		f.mu.Unlock()
		reply(w, status, body)
	})
	mux.HandleFunc("POST /api/interviews", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.created++
		f.mu.Unlock()
		reply(w, http.StatusCreated, `{"success":true,"data":{"interviewId":"iv-1","totalQuestions":3}}`)
	})
	mux.HandleFunc("GET /api/interviews/{id}/resume", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status, body := f.resumeStatus, f.resumeBody
		f.mu.Unlock()
		reply(w, status, body)
	})
	mux.HandleFunc("POST /api/interviews/{id}/end", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.ended = append(f.ended, r.PathValue("id"))
		status := f.endStatus
		f.mu.Unlock()
		if status == http.StatusNotFound {
			reply(w, status, `{"success":false,"message":"interview not found"}`)
			return
		}
		reply(w, status, `{"success":true,"message":"ended"}`)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func reply(w http.ResponseWriter, status int, body string) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeAPI) setActive(status int, body string) {
	f.mu.Lock()
	f.activeStatus, f.activeBody = status, body
	f.mu.Unlock()
}

func (f *fakeAPI) setResume(status int, body string) {
	f.mu.Lock()
	f.resumeStatus, f.resumeBody = status, body
	f.mu.Unlock()
}

func (f *fakeAPI) setEnd(status int) {
	f.mu.Lock()
	f.endStatus = status
	f.mu.Unlock()
}

func (f *fakeAPI) endedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

func (f *fakeAPI) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func activeBody(t *testing.T, interview map[string]any) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"success": true,
		"data":    map[string]any{"hasActiveInterview": true, "interview": interview},
	})
	require.NoError(t, err)
	return string(b)
}

type fixture struct {
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	keys  *config.StoreKeyStruct
	clock *stepClock
	api   *fakeAPI
	rest  *backend.Client
	store *repository.SessionStateRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	keys := config.NewStoreKeyStruct("intervue:test")
	clock := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	api := newFakeAPI(t)

	rest, err := backend.New(backend.Config{BaseURL: api.URL, Timeout: 2 * time.Second}, nil, zerolog.Nop())
	require.NoError(t, err)

	return &fixture{
		mr:    mr,
		rdb:   rdb,
		keys:  keys,
		clock: clock,
		api:   api,
		rest:  rest,
		store: repository.NewSessionStateRepository(rdb, keys, clock, 45*time.Minute, zerolog.Nop()),
	}
}

func (f *fixture) recovery() *RecoveryService {
	return NewRecoveryService(f.rest, f.store, f.clock, 45*time.Minute, zerolog.Nop())
}
