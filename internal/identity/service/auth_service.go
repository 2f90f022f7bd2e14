// Package service implements operator authentication for the presence hub.
package service

import (
	"context"
	"errors"
	"time"

	"clinic-sync/backend/internal/identity/domain"
	"clinic-sync/backend/internal/security"
)

// Sentinel errors; the HTTP handler maps them to status codes.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

// OperatorRepo is the minimal repository slice the auth service needs.
type OperatorRepo interface {
	GetByUsername(ctx context.Context, username string) (*domain.Operator, error)
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
}

// AuthResult holds the outcome of Login or Refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	OperatorID   string
	OperatorName string
	Role         string
}

// AuthService verifies operator credentials and issues token pairs. The hub
// keeps no session state: refresh is a stateless re-issue against a valid
// refresh token.
type AuthService struct {
	operators OperatorRepo
	hasher    *security.Hasher
	tokens    *security.TokenProvider
}

// NewAuthService returns an AuthService over the given dependencies.
func NewAuthService(operators OperatorRepo, hasher *security.Hasher, tokens *security.TokenProvider) *AuthService {
	return &AuthService{operators: operators, hasher: hasher, tokens: tokens}
}

// Login verifies username/password and returns a token pair. A missing
// operator and a wrong password return the same ErrInvalidCredentials so the
// response does not leak which usernames exist.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	op, err := s.operators.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(op.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(op)
}

// Refresh validates the refresh token and issues a fresh token pair. The
// operator is re-read so a deleted account cannot refresh.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	operatorID, _, _, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	op, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, ErrInvalidRefreshToken
	}
	return s.issue(op)
}

func (s *AuthService) issue(op *domain.Operator) (*AuthResult, error) {
	access, expiresAt, err := s.tokens.IssueAccess(op.ID, op.Name, op.Role)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.IssueRefresh(op.ID, op.Name, op.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		OperatorID:   op.ID,
		OperatorName: op.Name,
		Role:         op.Role,
	}, nil
}
