package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/storebotdev/storebot-go/internal/logutil"
	"github.com/storebotdev/storebot-go/internal/store"
)

// SessionCleaner tears down a user's live conversational state. Cleanup is
// best effort; the gate logs failures and keeps going.
type SessionCleaner interface {
	CleanupUser(ctx context.Context, userID string) error
}

// Gate answers authorization questions against durable state. Every check
// reloads state from storage first, so decisions made by another process
// take effect without a restart.
type Gate struct {
	auth    store.AuthStore
	cleaner SessionCleaner
	logger  *slog.Logger
}

// NewGate creates a Gate over auth. cleaner may be nil when no live session
// layer exists.
func NewGate(auth store.AuthStore, cleaner SessionCleaner, logger *slog.Logger) *Gate {
	return &Gate{
		auth:    auth,
		cleaner: cleaner,
		logger:  logutil.NoopIfNil(logger),
	}
}

func (g *Gate) state(ctx context.Context) (*store.AuthState, error) {
	if err := g.auth.ReloadAuthState(ctx); err != nil {
		return nil, fmt.Errorf("failed to reload auth state: %w", err)
	}
	state, err := g.auth.GetAuthState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth state: %w", err)
	}
	return state, nil
}

// IsAuthorized reports whether the user is in the authorized set.
func (g *Gate) IsAuthorized(ctx context.Context, userID string) (bool, error) {
	state, err := g.state(ctx)
	if err != nil {
		return false, err
	}
	return state.Authorized.Contains(userID), nil
}

// IsBanned reports whether the user is in the banned set.
func (g *Gate) IsBanned(ctx context.Context, userID string) (bool, error) {
	state, err := g.state(ctx)
	if err != nil {
		return false, err
	}
	return state.Banned.Contains(userID), nil
}

// Allowed reports whether the user may interact at all. Banned users are
// always refused. With the code gate disabled any non-banned user passes;
// with it enabled the user must be in the authorized set.
func (g *Gate) Allowed(ctx context.Context, userID string) (bool, error) {
	state, err := g.state(ctx)
	if err != nil {
		return false, err
	}
	if state.Banned.Contains(userID) {
		return false, nil
	}
	if !state.CodeGateEnabled {
		return true, nil
	}
	return state.Authorized.Contains(userID), nil
}

// Authorize adds the user to the authorized set and persists the change.
// Adding an already-authorized user is a no-op.
func (g *Gate) Authorize(ctx context.Context, userID string) error {
	state, err := g.state(ctx)
	if err != nil {
		return err
	}
	if state.Authorized.Contains(userID) {
		return nil
	}
	state.Authorized = append(state.Authorized, userID)
	if err := g.auth.SaveAuthState(ctx, state); err != nil {
		return fmt.Errorf("failed to save auth state: %w", err)
	}
	g.logger.Info("user authorized", "user_id", userID)
	return nil
}

// Ban revokes the user's access and records the ban. The two set changes
// are written durably in sequence; live session teardown afterwards is best
// effort and never fails the ban.
func (g *Gate) Ban(ctx context.Context, userID string) error {
	state, err := g.state(ctx)
	if err != nil {
		return err
	}

	if rest, removed := state.Authorized.Remove(userID); removed {
		state.Authorized = rest
	}
	if err := g.auth.SaveAuthState(ctx, state); err != nil {
		return fmt.Errorf("failed to revoke authorization: %w", err)
	}

	if !state.Banned.Contains(userID) {
		state.Banned = append(state.Banned, userID)
	}
	if err := g.auth.SaveAuthState(ctx, state); err != nil {
		return fmt.Errorf("failed to record ban: %w", err)
	}
	g.logger.Info("user banned", "user_id", userID)

	if g.cleaner != nil {
		if err := g.cleaner.CleanupUser(ctx, userID); err != nil {
			g.logger.Warn("session cleanup failed after ban",
				"user_id", userID,
				"error", err)
		}
	}
	return nil
}

// Unban removes the user from the banned set. The user is not re-authorized;
// they must pass the code gate again. Unbanning a user who is not banned is
// a no-op.
func (g *Gate) Unban(ctx context.Context, userID string) error {
	state, err := g.state(ctx)
	if err != nil {
		return err
	}

	rest, removed := state.Banned.Remove(userID)
	if !removed {
		return nil
	}
	state.Banned = rest
	if err := g.auth.SaveAuthState(ctx, state); err != nil {
		return fmt.Errorf("failed to save auth state: %w", err)
	}
	g.logger.Info("user unbanned", "user_id", userID)
	return nil
}

// ToggleCodeGate flips the code gate and returns the new setting.
func (g *Gate) ToggleCodeGate(ctx context.Context) (bool, error) {
	state, err := g.state(ctx)
	if err != nil {
		return false, err
	}
	state.CodeGateEnabled = !state.CodeGateEnabled
	if err := g.auth.SaveAuthState(ctx, state); err != nil {
		return false, fmt.Errorf("failed to save auth state: %w", err)
	}
	g.logger.Info("code gate toggled", "enabled", state.CodeGateEnabled)
	return state.CodeGateEnabled, nil
}

// CodeGateEnabled reports the current gate setting.
func (g *Gate) CodeGateEnabled(ctx context.Context) (bool, error) {
	state, err := g.state(ctx)
	if err != nil {
		return false, err
	}
	return state.CodeGateEnabled, nil
}

// Snapshot returns a copy of the full authorization state, reloaded from
// storage. Listing surfaces use it to classify many users in one read.
func (g *Gate) Snapshot(ctx context.Context) (*store.AuthState, error) {
	state, err := g.state(ctx)
	if err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

// AuthorizedIDs returns the current authorized set.
func (g *Gate) AuthorizedIDs(ctx context.Context) ([]string, error) {
	state, err := g.state(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), state.Authorized...), nil
}
