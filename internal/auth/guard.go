package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"music-locker/internal/domain"
	"music-locker/internal/repository"
)

// UserLookup resolves token subjects to users.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Guard binds a request's Authorization header to a stored user.
type Guard struct {
	tokens *Tokens
	users  UserLookup
}

func NewGuard(tokens *Tokens, users UserLookup) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// Authenticate verifies the raw Authorization header value and loads the user it names.
func (g *Guard) Authenticate(ctx context.Context, header string) (*domain.User, error) {
	raw, err := BearerToken(header)
	if err != nil {
		return nil, err
	}

	claims, err := g.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}

	user, err := g.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("load token subject: %w", err)
	}
	return user, nil
}

// BearerToken extracts the token from a "Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMalformedToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMalformedToken
	}
	return token, nil
}

// IsAuthError reports whether err should be answered with 401.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrUnknownUser)
}
