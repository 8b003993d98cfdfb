package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemdeck/api/internal/auth"
	"github.com/stemdeck/api/internal/config"
	"github.com/stemdeck/api/internal/model"
	"github.com/stemdeck/api/internal/store"
)

// AuthService registers users and issues session tokens.
type AuthService struct {
	store  *store.Store
	secret string
	ttl    time.Duration
}

func NewAuthService(st *store.Store, cfg *config.JWTConfig) *AuthService {
	return &AuthService{
		store:  st,
		secret: cfg.Secret,
		ttl:    time.Duration(cfg.Expiration) * time.Hour,
	}
}

func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, req.Name, req.Email, string(hash))
	if err != nil {
		return nil, mapStoreError(err)
	}
	log.WithField("user_id", user.ID).Info("user registered")
	return s.session(user)
}

// Login checks the password. An unknown email and a wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *AuthService) session(user *model.User) (*model.AuthResponse, error) {
	token, err := auth.IssueToken(s.secret, user.ID, user.Email, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &model.AuthResponse{User: user, Token: token}, nil
}
