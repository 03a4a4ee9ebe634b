// Package broadcast distributes announcements to the authorized audience
// and tracks per-recipient delivery so announcements can be edited in place.
package broadcast

import (
	"context"

	"github.com/storebotdev/storebot-go/internal/store"
)

// OutgoingMessage is the renderable payload of an announcement.
type OutgoingMessage struct {
	Content  string
	Entities store.MessageEntities
	Media    *store.MediaAttachment
}

// Notifier delivers messages to a single recipient over the chat transport.
// Send returns the transport's message id for the delivered message, which
// the distributor records to enable later in-place edits.
type Notifier interface {
	Send(ctx context.Context, recipient string, msg OutgoingMessage) (int64, error)
	Edit(ctx context.Context, recipient string, messageID int64, msg OutgoingMessage) error
}

// RecipientSource yields the current distribution audience.
type RecipientSource interface {
	AuthorizedIDs(ctx context.Context) ([]string, error)
}

// Tally summarizes one distribution round. Total counts attempts, so
// Total == Success + Failed.
type Tally struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

func (t *Tally) record(err error) {
	t.Total++
	if err != nil {
		t.Failed++
	} else {
		t.Success++
	}
}
