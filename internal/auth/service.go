package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxNameLength bounds guest display names, in runes.
const MaxNameLength = 32

// ErrInvalidName is returned when a guest name is too long.
var ErrInvalidName = errors.New("invalid name")

// Guest is a freshly issued identity.
type Guest struct {
	Token  string
	UserID string
	Name   string
}

// Service issues and checks guest identities. Nothing is persisted: the
// token is the identity.
type Service struct {
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(jwtConfig *JWTConfig) *Service {
	if jwtConfig == nil || len(jwtConfig.Secret) == 0 {
		panic("jwt secret cannot be empty")
	}
	return &Service{jwtConfig: jwtConfig}
}

// IssueGuest mints a new opaque user ID and a token for it.
func (s *Service) IssueGuest(name string) (*Guest, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, ErrInvalidName
	}

	userID := uuid.NewString()
	token, err := GenerateToken(s.jwtConfig, userID, name)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Guest{Token: token, UserID: userID, Name: name}, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
