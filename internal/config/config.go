package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string

	// APIBaseURL is the external REST API (question bank, auth, interviews).
	APIBaseURL string
	APITimeout time.Duration

	// SocketURL is the realtime interview backend (Socket.IO over WebSocket).
	SocketURL         string
	SocketPath        string
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	RedisURL       string
	StoreNamespace string

	// ArchiveDatabaseURL enables the transcript archive when non-empty.
	ArchiveDatabaseURL string
	MaxDBConns         int32

	SessionDuration    time.Duration
	AudioBufferTimeout time.Duration
	AudioAutoplay      bool

	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // .env is optional

	return &Config{
		ServerPort:         getEnv("SERVER_PORT", "8090"),
		GinMode:            getEnv("GIN_MODE", "debug"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "pretty"),
		APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:1337"), "/"),
		APITimeout:         time.Duration(getEnvInt("API_TIMEOUT_SECONDS", 15)) * time.Second,
		SocketURL:          strings.TrimRight(getEnv("SOCKET_URL", "ws://localhost:5000"), "/"),
		SocketPath:         getEnv("SOCKET_PATH", "/socket.io/"),
		ReconnectAttempts:  getEnvInt("SOCKET_RECONNECT_ATTEMPTS", 5),
		ReconnectDelay:     time.Duration(getEnvInt("SOCKET_RECONNECT_DELAY_MS", 1000)) * time.Millisecond,
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		StoreNamespace:     getEnv("STORE_NAMESPACE", "intervue:local"),
		ArchiveDatabaseURL: getEnv("ARCHIVE_DATABASE_URL", ""),
		MaxDBConns:         int32(getEnvInt("MAX_DB_CONNS", 4)),
		SessionDuration:    time.Duration(getEnvInt("SESSION_DURATION_MINUTES", 45)) * time.Minute,
		AudioBufferTimeout: time.Duration(getEnvInt("AUDIO_BUFFER_TIMEOUT_MS", 3000)) * time.Millisecond,
		AudioAutoplay:      getEnvBool("AUDIO_AUTOPLAY", true),
		AllowedOrigins:     parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
