package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/stemsi/intervue/internal/backend"
	"github.com/stemsi/intervue/internal/config"
	"github.com/stemsi/intervue/internal/database"
	"github.com/stemsi/intervue/internal/logger"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/repository"
	"github.com/stemsi/intervue/internal/service"
	"golang.org/x/term"
)

func main() {
	logout := flag.Bool("logout", false, "Clear the stored auth context and exit")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	// Logs go to stderr so the prompts stay readable.
	log := logger.SetupWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	api, err := backend.New(backend.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.APITimeout}, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid REST API configuration")
	}
	authRepo := repository.NewAuthRepository(rdb, config.NewStoreKeyStruct(cfg.StoreNamespace))
	authService := service.NewAuthService(api, authRepo, log)

	if *logout {
		if err := authService.Logout(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to clear auth context")
		}
		fmt.Println("Signed out.")
		return
	}

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Intervue Sign In ===")

	fmt.Print("Email or username: ")
	identifier, _ := reader.ReadString('\n')
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		fmt.Println("Error: Identifier is required")
		os.Exit(1)
	}

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after password input
	if err != nil {
		fmt.Println("Error reading password")
		os.Exit(1)
	}
	password := string(bytePassword)
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		os.Exit(1)
	}

	session, err := authService.Login(ctx, model.LoginRequest{Identifier: identifier, Password: password})
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		fmt.Println("Error: Invalid email or password")
		os.Exit(1)
	case err != nil:
		log.Fatal().Err(err).Msg("Sign in failed")
	}

	fmt.Printf("Signed in as %s.\n", session.User.Username)
}
