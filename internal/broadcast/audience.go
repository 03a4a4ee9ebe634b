package broadcast

import (
	"context"
	"fmt"

	"github.com/storebotdev/storebot-go/internal/store"
)

// UserLister yields every registered user profile.
type UserLister interface {
	All(ctx context.Context) ([]*store.User, error)
}

// AuthorizedSet yields the ids currently holding access.
type AuthorizedSet interface {
	AuthorizedIDs(ctx context.Context) ([]string, error)
}

// Audience resolves the distribution audience: registered users who are
// currently authorized, in registry order. An authorized id with no profile
// on record has never interacted and is never delivered to.
type Audience struct {
	users UserLister
	auth  AuthorizedSet
}

// NewAudience creates an Audience over the user registry and the
// authorization state.
func NewAudience(users UserLister, auth AuthorizedSet) *Audience {
	return &Audience{users: users, auth: auth}
}

// AuthorizedIDs implements RecipientSource.
func (a *Audience) AuthorizedIDs(ctx context.Context) ([]string, error) {
	registered, err := a.users.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	authorized, err := a.auth.AuthorizedIDs(ctx)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(authorized))
	for _, id := range authorized {
		allowed[id] = struct{}{}
	}
	ids := make([]string, 0, len(registered))
	for _, u := range registered {
		if _, ok := allowed[u.ID]; ok {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

var _ RecipientSource = (*Audience)(nil)
