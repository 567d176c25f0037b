package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"chatflow/internal/api"
	"chatflow/internal/models"
	"chatflow/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingFields = errors.New("missing required fields")
	ErrInvalidEmail  = errors.New("invalid email format")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Session is the bearer credential and what the client can read from it.
// The signature is checked by the server, never here.
type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// Backend is the part of the API the credential helper talks to.
type Backend interface {
	api.AuthAPI
	SetToken(token string)
}

type Service struct {
	backend Backend
	now     func() time.Time
}

func NewService(backend Backend) *Service {
	return &Service{
		backend: backend,
		now:     time.Now,
	}
}

func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingFields
	}

	resp, err := s.backend.Login(ctx, &models.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	return s.Restore(resp.AccessToken)
}

// Register creates the account and logs in with it.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*Session, error) {
	if err := validateRegistrationRequest(req); err != nil {
		return nil, err
	}

	user, err := s.backend.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Info("Registered user %s", user.Username)

	return s.Login(ctx, req.Username, req.Password)
}

// Restore installs a previously issued token after checking it has not
// expired.
func (s *Service) Restore(token string) (*Session, error) {
	session, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}
	s.backend.SetToken(session.Token)
	return session, nil
}

// ParseToken reads the subject and expiry of a bearer token.
func (s *Service) ParseToken(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	session := &Session{Token: token, Username: claims.Subject}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
		if !session.ExpiresAt.After(s.now()) {
			return nil, ErrTokenExpired
		}
	}
	return session, nil
}

func validateRegistrationRequest(req *models.RegisterRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)

	if req.Username == "" || req.Email == "" || req.Password == "" {
		return ErrMissingFields
	}

	if !emailRegex.MatchString(req.Email) {
		return ErrInvalidEmail
	}
	return nil
}
