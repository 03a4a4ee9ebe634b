// Package session keeps ephemeral per-user conversational state on the
// cache: the screen the user is on, free-form navigation data, and the ids
// of UI messages the bot has sent so they can be swept away later.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/storebotdev/storebot-go/internal/access"
	"github.com/storebotdev/storebot-go/internal/cache"
	"github.com/storebotdev/storebot-go/internal/logutil"
)

// State is one user's live navigation state. It is ephemeral and carries
// nothing that survives a ban or a cache eviction.
type State struct {
	Screen     string            `json:"screen,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	MessageIDs []int64           `json:"message_ids,omitempty"`
}

// MessageDeleter removes a previously sent message from a recipient's chat.
type MessageDeleter interface {
	DeleteMessage(ctx context.Context, recipient string, messageID int64) error
}

// Manager stores navigation state in the cache under a per-user key and
// implements the cleanup hook the authorization gate fires on ban.
type Manager struct {
	cache   cache.Cache
	deleter MessageDeleter
	logger  *slog.Logger
}

func NewManager(c cache.Cache, deleter MessageDeleter, logger *slog.Logger) *Manager {
	return &Manager{
		cache:   c,
		deleter: deleter,
		logger:  logutil.NoopIfNil(logger).With(slog.String("component", "session")),
	}
}

func navKey(userID string) string {
	return "nav:" + userID
}

// Get returns the user's current state, or a fresh empty state when none is
// stored or the stored one has expired.
func (m *Manager) Get(ctx context.Context, userID string) (*State, error) {
	raw, err := m.cache.Get(ctx, navKey(userID))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrExpired) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("load session state: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		// Corrupt state is not worth failing an interaction over.
		m.logger.Warn("discarding undecodable session state", slog.String("user_id", userID), slog.String("error", err.Error()))
		return &State{}, nil
	}
	return &st, nil
}

// Put replaces the user's state and refreshes its TTL.
func (m *Manager) Put(ctx context.Context, userID string, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if err := m.cache.Set(ctx, navKey(userID), raw, cache.TTLNavState); err != nil {
		return fmt.Errorf("store session state: %w", err)
	}
	return nil
}

// TrackMessage appends a sent UI message id to the user's state so that
// CleanupUser can delete it later. Duplicate ids are ignored.
func (m *Manager) TrackMessage(ctx context.Context, userID string, messageID int64) error {
	st, err := m.Get(ctx, userID)
	if err != nil {
		return err
	}
	if slices.Contains(st.MessageIDs, messageID) {
		return nil
	}
	st.MessageIDs = append(st.MessageIDs, messageID)
	return m.Put(ctx, userID, st)
}

// Clear drops the user's state without touching any delivered messages.
func (m *Manager) Clear(ctx context.Context, userID string) error {
	if err := m.cache.Delete(ctx, navKey(userID)); err != nil {
		return fmt.Errorf("clear session state: %w", err)
	}
	return nil
}

// CleanupUser deletes the user's tracked UI messages and clears their state.
// Message deletion is best-effort: failures are logged and do not stop the
// sweep. The call is idempotent; a user with no state is a no-op.
func (m *Manager) CleanupUser(ctx context.Context, userID string) error {
	st, err := m.Get(ctx, userID)
	if err != nil {
		return err
	}

	if m.deleter != nil {
		for _, id := range st.MessageIDs {
			if err := m.deleter.DeleteMessage(ctx, userID, id); err != nil {
				m.logger.Warn("failed to delete tracked message",
					slog.String("user_id", userID),
					slog.Int64("message_id", id),
					slog.String("error", err.Error()))
			}
		}
	}

	return m.Clear(ctx, userID)
}

var _ access.SessionCleaner = (*Manager)(nil)
