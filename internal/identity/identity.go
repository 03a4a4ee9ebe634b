// Package identity provides admin credential verification and API session
// handling for the admin control plane.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/storebotdev/storebot-go/internal/logutil"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)

// AdminAuth verifies credentials against the single bootstrap admin account.
// The plaintext password from config is hashed once at startup and discarded.
type AdminAuth struct {
	username string
	hash     []byte
	logger   *slog.Logger
}

// NewAdminAuth hashes the bootstrap admin password and returns a verifier.
// An empty username or password is a configuration error.
func NewAdminAuth(username, password string, logger *slog.Logger) (*AdminAuth, error) {
	if username == "" || password == "" {
		return nil, errors.New("bootstrap admin username and password must be set")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	return &AdminAuth{
		username: username,
		hash:     hash,
		logger:   logutil.NoopIfNil(logger).With(slog.String("component", "identity")),
	}, nil
}

// Authenticate checks a username/password pair. Returns
// ErrInvalidCredentials on any mismatch; it does not distinguish an unknown
// username from a wrong password.
func (a *AdminAuth) Authenticate(ctx context.Context, username, password string) error {
	if username != a.username {
		// Burn a comparison anyway so unknown usernames cost the same.
		bcrypt.CompareHashAndPassword(a.hash, []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		a.logger.Warn("failed admin login attempt", slog.String("username", username))
		return ErrInvalidCredentials
	}
	return nil
}
