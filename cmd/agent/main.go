package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/audio"
	"github.com/stemsi/intervue/internal/backend"
	"github.com/stemsi/intervue/internal/config"
	"github.com/stemsi/intervue/internal/database"
	"github.com/stemsi/intervue/internal/handler"
	"github.com/stemsi/intervue/internal/logger"
	"github.com/stemsi/intervue/internal/repository"
	"github.com/stemsi/intervue/internal/router"
	"github.com/stemsi/intervue/internal/service"
	"github.com/stemsi/intervue/internal/socketio"
	"github.com/stemsi/intervue/internal/timer"
	"github.com/stemsi/intervue/internal/validator"
	ws "github.com/stemsi/intervue/internal/websocket"
	"github.com/stemsi/intervue/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("api", cfg.APIBaseURL).
		Str("socket", cfg.SocketURL).
		Msg("Starting Intervue agent")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to the Archive Database (optional) ────────────────────
	pool := connectArchive(ctx, cfg, log)
	if pool != nil {
		defer pool.Close()
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	keys := config.NewStoreKeyStruct(cfg.StoreNamespace)
	clock := timer.SystemClock{}
	authRepo := repository.NewAuthRepository(rdb, keys)
	stateRepo := repository.NewSessionStateRepository(rdb, keys, clock, cfg.SessionDuration, log)
	archiveQueue := repository.NewArchiveQueue(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	// The REST client reads the token from the auth service it is injected into.
	var authService *service.AuthService
	api, err := backend.New(backend.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
	}, func() string { return authService.Token() }, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid REST API configuration")
	}

	authService = service.NewAuthService(api, authRepo, log)
	if err := authService.Hydrate(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not restore auth context")
	}

	stream := ws.NewStream(log)
	player := audio.NewRemotePlayer(stream, log)
	coordinator := audio.NewCoordinator(player, audio.CoordinatorConfig{
		BufferTimeout: cfg.AudioBufferTimeout,
		Autoplay:      cfg.AudioAutoplay,
	}, log)

	// Finished sessions are queued only when an archive is configured. A
	// configured but unreachable archive keeps them for the next start.
	var sessionArchive *repository.ArchiveQueue
	if cfg.ArchiveDatabaseURL != "" {
		sessionArchive = archiveQueue
	}

	questionService := service.NewQuestionService(api, rdb, keys, log)
	recoveryService := service.NewRecoveryService(api, stateRepo, clock, cfg.SessionDuration, log)
	sessionService := service.NewSessionService(service.SessionConfig{
		Transport: socketio.Options{
			URL:               cfg.SocketURL,
			Path:              cfg.SocketPath,
			ReconnectAttempts: cfg.ReconnectAttempts,
			ReconnectDelay:    cfg.ReconnectDelay,
		},
		Duration: cfg.SessionDuration,
	}, api, authService, recoveryService, stateRepo, sessionArchive, stream, coordinator, clock, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:     handler.NewAuthHandler(authService, log),
		Question: handler.NewQuestionHandler(questionService, log),
		Recovery: handler.NewRecoveryHandler(recoveryService, sessionService, log),
		Session:  handler.NewSessionHandler(sessionService, log),
		WS:       handler.NewWSHandler(stream, sessionService, player, log, cfg.AllowedOrigins),
		System:   handler.NewSystemHandler(rdb, archiveQueue, sessionService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	workers.Add(1)
	go func() {
		defer workers.Done()
		coordinator.Run(workerCtx)
	}()

	if pool != nil {
		archiveWorker := worker.NewArchiveWorker(repository.NewArchiveRepository(pool), archiveQueue, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			archiveWorker.Start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close the realtime connection. The local record stays for recovery.
	sessionService.Shutdown()

	// 3. Stop background workers and wait for the archive buffer to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// connectArchive retries the archive database for up to a minute. The agent
// runs without an archive when it is not configured or stays unreachable.
func connectArchive(ctx context.Context, cfg *config.Config, log zerolog.Logger) *pgxpool.Pool {
	var pool *pgxpool.Pool

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 2 * time.Second
	expBackoff.MaxElapsedTime = time.Minute

	operation := func() error {
		var err error
		pool, err = database.NewArchivePool(ctx, cfg, log)
		if errors.Is(err, database.ErrArchiveDisabled) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Warn().Err(err).Msg("Archive database not ready, retrying")
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx))
	switch {
	case errors.Is(err, database.ErrArchiveDisabled):
		log.Info().Msg("Transcript archive disabled")
		return nil
	case err != nil:
		log.Error().Err(err).Msg("Archive database unreachable, transcripts stay queued in Redis")
		return nil
	}
	return pool
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
