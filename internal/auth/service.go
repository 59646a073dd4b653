package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/coverline/coverline/internal/log"
)

// ErrValidation indicates a malformed registration or login request.
var ErrValidation = errors.New("validation failed")

// Service registers accounts and exchanges credentials for tokens.
type Service struct {
	store  Querier
	issuer *TokenIssuer
	logger log.Logger
}

// NewService creates the auth service. A nil logger is replaced with a
// no-op logger.
func NewService(store Querier, issuer *TokenIssuer, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{store: store, issuer: issuer, logger: logger}
}

// Session is the result of a successful register or login.
type Session struct {
	Token     string
	Principal Principal
}

// Register creates an account and returns a signed session for it.
func (s *Service) Register(ctx context.Context, email, username, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	switch {
	case email == "" || !strings.Contains(email, "@"):
		return Session{}, fmt.Errorf("%w: email is required", ErrValidation)
	case username == "":
		return Session{}, fmt.Errorf("%w: username is required", ErrValidation)
	case len(password) < 8:
		return Session{}, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, username, string(hash))
	if err != nil {
		return Session{}, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	return s.sessionFor(user)
}

// Login verifies credentials and returns a signed session.
// Unknown email and wrong password both report ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	return s.sessionFor(user)
}

func (s *Service) sessionFor(user User) (Session, error) {
	p := Principal{UserID: user.ID, Email: user.Email, Role: user.Role}
	token, err := s.issuer.Issue(p)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Principal: p}, nil
}
