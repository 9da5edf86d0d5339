package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/repository"
	"github.com/stemsi/intervue/internal/service"
)

const healthTimeout = 2 * time.Second

// SystemHandler reports agent health.
type SystemHandler struct {
	rdb       *redis.Client
	archive   *repository.ArchiveQueue
	sessions  *service.SessionService
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(rdb *redis.Client, archive *repository.ArchiveQueue, sessions *service.SessionService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		archive:   archive,
		sessions:  sessions,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	Redis        string `json:"redis"`
	ArchiveQueue int64  `json:"archive_queue"`
	Session      string `json:"session"`
	SessionPhase string `json:"session_phase,omitempty"`
	UIConnected  bool   `json:"ui_connected"`
	Goroutines   int    `json:"goroutines"`
	GoVersion    string `json:"go_version"`
}

// Health godoc
// GET /health
// 503 when the persistence store is unreachable.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	snap := h.sessions.Snapshot()
	report := healthReport{
		Status:      "ok",
		Uptime:      formatDuration(time.Since(h.startTime)),
		Redis:       "ok",
		Session:     "idle",
		UIConnected: snap.UIConnected,
		Goroutines:  runtime.NumGoroutine(),
		GoVersion:   runtime.Version(),
	}
	if snap.InterviewID != "" {
		report.Session = snap.InterviewID
		report.SessionPhase = snap.Phase.String()
	}

	status := http.StatusOK
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Redis health check failed")
		report.Status, report.Redis = "degraded", "unreachable"
		status = http.StatusServiceUnavailable
	} else if n, err := h.archive.Len(ctx); err == nil {
		report.ArchiveQueue = n
	}

	c.JSON(status, report)
}

// ---------- Helpers ----------

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
