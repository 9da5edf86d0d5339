package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/intervue/internal/config"
	"github.com/stemsi/intervue/internal/model"
)

// AuthRepository keeps the signed-in user's token and profile in Redis so the
// agent and the login CLI share one auth context.
type AuthRepository struct {
	rdb  *redis.Client
	keys *config.StoreKeyStruct
}

// NewAuthRepository creates a new AuthRepository.
func NewAuthRepository(rdb *redis.Client, keys *config.StoreKeyStruct) *AuthRepository {
	return &AuthRepository{rdb: rdb, keys: keys}
}

// Save stores the auth session.
func (r *AuthRepository) Save(ctx context.Context, session *model.AuthSession) error {
	profile, err := json.Marshal(session.User)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.keys.AuthTokenKey(), session.Token, 0)
		pipe.Set(ctx, r.keys.AuthProfileKey(), profile, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store auth session: %w", err)
	}
	return nil
}

// Load returns the stored auth session or nil when signed out.
func (r *AuthRepository) Load(ctx context.Context) (*model.AuthSession, error) {
	vals, err := r.rdb.MGet(ctx, r.keys.AuthTokenKey(), r.keys.AuthProfileKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load auth session: %w", err)
	}

	token, _ := vals[0].(string)
	if token == "" {
		return nil, nil
	}

	session := &model.AuthSession{Token: token}
	if raw, ok := vals[1].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &session.User); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
	}
	return session, nil
}

// Clear removes the auth session.
func (r *AuthRepository) Clear(ctx context.Context) error {
	err := r.rdb.Del(ctx, r.keys.AuthTokenKey(), r.keys.AuthProfileKey()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("clear auth session: %w", err)
	}
	return nil
}
