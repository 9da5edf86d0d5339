package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/backend"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/repository"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not signed in")
	ErrTokenRejected      = errors.New("access token rejected by the api")
)

// AuthService owns the auth context: the REST API token and the profile of
// the signed-in user. It is hydrated from Redis on boot and shared with the
// login CLI through the same keys.
type AuthService struct {
	api  *backend.Client
	repo *repository.AuthRepository
	log  zerolog.Logger

	mu      sync.RWMutex
	session *model.AuthSession
}

// NewAuthService creates a new AuthService.
func NewAuthService(api *backend.Client, repo *repository.AuthRepository, log zerolog.Logger) *AuthService {
	return &AuthService{
		api:  api,
		repo: repo,
		log:  log.With().Str("component", "auth").Logger(),
	}
}

// Hydrate loads the stored auth context. A missing context is not an error.
func (s *AuthService) Hydrate(ctx context.Context) error {
	session, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	if session != nil {
		s.log.Info().Str("user", session.User.Username).Msg("Auth context restored")
	}
	return nil
}

// Login exchanges credentials for a token and stores the auth context.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*model.AuthSession, error) {
	session, err := s.api.Login(ctx, req)
	if err != nil {
		if backend.IsStatus(err, http.StatusBadRequest) || backend.IsStatus(err, http.StatusUnauthorized) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.log.Info().Str("user", session.User.Username).Msg("Signed in")
	return session, nil
}

// Logout drops the auth context.
func (s *AuthService) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	return s.repo.Clear(ctx)
}

// Token returns the current access token, or "" when signed out.
func (s *AuthService) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.Token
}

// Authenticated reports whether a token is available.
func (s *AuthService) Authenticated() bool {
	return s.Token() != ""
}

// Profile returns the cached profile of the signed-in user.
func (s *AuthService) Profile() (*model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, ErrNotAuthenticated
	}
	profile := s.session.User
	return &profile, nil
}

// Refresh re-reads the profile from the API. A rejected token signs the user
// out.
func (s *AuthService) Refresh(ctx context.Context) (*model.UserProfile, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	profile, err := s.api.Me(ctx)
	if err != nil {
		if backend.IsStatus(err, http.StatusUnauthorized) {
			s.log.Warn().Msg("API rejected the stored token, signing out")
			if cerr := s.Logout(ctx); cerr != nil {
				s.log.Error().Err(cerr).Msg("Failed to clear auth context")
			}
			return nil, ErrTokenRejected
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNotAuthenticated
	}
	s.session.User = *profile
	session := *s.session
	if err := s.repo.Save(ctx, &session); err != nil {
		s.log.Warn().Err(err).Msg("Failed to store refreshed profile")
	}
	return profile, nil
}
