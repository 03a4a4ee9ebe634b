// Package users maintains durable user profiles observed from interactions.
package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/storebotdev/storebot-go/internal/logutil"
	"github.com/storebotdev/storebot-go/internal/store"
)

// Profile is the identity snapshot captured from an incoming interaction.
type Profile struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
}

// Registry records every user who interacts, keyed by their chat id.
type Registry struct {
	users  store.UserStore
	logger *slog.Logger
}

// NewRegistry creates a Registry persisting into users.
func NewRegistry(users store.UserStore, logger *slog.Logger) *Registry {
	return &Registry{
		users:  users,
		logger: logutil.NoopIfNil(logger),
	}
}

// RegisterOrUpdate replaces the stored record for the profile's id with
// current identity fields and a fresh last-seen timestamp. It is called on
// every interaction, so display names track renames.
func (r *Registry) RegisterOrUpdate(ctx context.Context, p Profile, seenAt int64) error {
	if p.ID == "" {
		return fmt.Errorf("user id is required")
	}

	user := &store.User{
		ID:        p.ID,
		Username:  p.Username,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		LastSeen:  seenAt,
	}
	if err := r.users.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	r.logger.Debug("user profile recorded", "user_id", p.ID)
	return nil
}

// Get returns the stored profile for id, or store.ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*store.User, error) {
	return r.users.GetUser(ctx, id)
}

// All returns every known user in stable id order.
func (r *Registry) All(ctx context.Context) ([]*store.User, error) {
	return r.users.ListUsers(ctx)
}
