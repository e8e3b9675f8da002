package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/pkg/auth"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
)

var ErrTokenGeneration = errors.New("failed to generate token")

type Service struct {
	store  *store.Store
	jwtSvc auth.JWTService
	log    *logger.Logger
}

func NewService(st *store.Store, jwtSvc auth.JWTService, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:  st,
		jwtSvc: jwtSvc,
		log:    log.Named("auth"),
	}
}

// Register signs a user up. In local mode a session starts immediately and
// a token is returned; in remote mode the emailed code must be verified.
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.RegisterResponse, error) {
	user, session, err := s.store.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", user.ID, "role", user.Role, "session", session)

	resp := &model.RegisterResponse{User: user, VerificationRequired: !session}
	if session {
		if resp.Token, err = s.issue(user); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.store.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Verify confirms the sign-up code and opens a session.
func (s *Service) Verify(ctx context.Context, email, code string) (*model.TokenResponse, error) {
	user, err := s.store.VerifyOTP(ctx, email, code)
	if err != nil {
		return nil, err
	}
	s.log.Info("email verified", "user_id", user.ID)
	return s.issue(user)
}

// Logout revokes the presented token and ends the backend session.
func (s *Service) Logout(ctx context.Context, claims *model.TokenClaims) error {
	s.jwtSvc.Revoke(claims)
	return s.store.Logout(ctx)
}

func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if _, ok := s.store.User(claims.UserID); !ok {
		return nil, fmt.Errorf("%w: unknown user", auth.ErrInvalidToken)
	}
	return claims, nil
}

func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	user, ok := s.store.User(userID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return user, nil
}

func (s *Service) issue(user *model.User) (*model.TokenResponse, error) {
	token, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return &model.TokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.jwtSvc.TTL().Seconds()),
		User:        user,
	}, nil
}
