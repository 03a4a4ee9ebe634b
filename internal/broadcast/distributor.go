package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/storebotdev/storebot-go/internal/logutil"
	"github.com/storebotdev/storebot-go/internal/store"
)

var (
	// ErrNotFound is returned when a broadcast id is unknown.
	ErrNotFound = errors.New("broadcast not found")
	// ErrNotSaved is returned when the fan-out ran but the broadcast record
	// could not be persisted afterwards.
	ErrNotSaved = errors.New("broadcast not saved")
)

// Distributor fans announcements out to the authorized audience one
// recipient at a time. A failed delivery never aborts the round; the Tally
// reports the split. The acting admin is always excluded from delivery.
type Distributor struct {
	broadcasts store.BroadcastStore
	recipients RecipientSource
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

// NewDistributor creates a Distributor.
func NewDistributor(broadcasts store.BroadcastStore, recipients RecipientSource, notifier Notifier, logger *slog.Logger) *Distributor {
	return &Distributor{
		broadcasts: broadcasts,
		recipients: recipients,
		notifier:   notifier,
		logger:     logutil.NoopIfNil(logger),
		now:        time.Now,
	}
}

// Create sends msg to every authorized user except actorID, records the
// delivered message ids, and persists the broadcast. When persistence fails
// after delivery, the broadcast and tally are still returned alongside the
// error; the messages are out but can no longer be edited in place.
func (d *Distributor) Create(ctx context.Context, actorID string, msg OutgoingMessage) (*store.Broadcast, Tally, error) {
	var tally Tally

	audience, err := d.recipients.AuthorizedIDs(ctx)
	if err != nil {
		return nil, tally, fmt.Errorf("failed to resolve audience: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, tally, fmt.Errorf("failed to generate broadcast id: %w", err)
	}

	now := d.now().Unix()
	b := &store.Broadcast{
		ID:                id.String(),
		Content:           msg.Content,
		Entities:          msg.Entities,
		Media:             msg.Media,
		RecipientMessages: make(store.RecipientMessages),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	for _, userID := range audience {
		if userID == actorID {
			continue
		}
		messageID, err := d.notifier.Send(ctx, userID, msg)
		tally.record(err)
		if err != nil {
			d.logger.Warn("broadcast delivery failed",
				"broadcast_id", b.ID,
				"user_id", userID,
				"error", err)
			continue
		}
		b.RecipientMessages[userID] = messageID
	}

	if err := d.broadcasts.CreateBroadcast(ctx, b); err != nil {
		return b, tally, fmt.Errorf("%w: %w", ErrNotSaved, err)
	}

	d.logger.Info("broadcast created",
		"broadcast_id", b.ID,
		"success", tally.Success,
		"failed", tally.Failed)
	return b, tally, nil
}

// Edit replaces the broadcast's content, edits every previously delivered
// message in place, and sends the updated announcement to authorized users
// who never received it. Recipients whose edit fails keep the stale message;
// their recorded id is untouched.
func (d *Distributor) Edit(ctx context.Context, id, actorID string, content string, entities store.MessageEntities) (Tally, error) {
	var tally Tally

	b, err := d.get(ctx, id)
	if err != nil {
		return tally, err
	}

	b.Content = content
	b.Entities = entities
	msg := OutgoingMessage{Content: content, Entities: entities, Media: b.Media}

	// Edit everything already delivered, in stable order.
	for _, userID := range sortedRecipients(b.RecipientMessages) {
		if userID == actorID {
			continue
		}
		err := d.notifier.Edit(ctx, userID, b.RecipientMessages[userID], msg)
		tally.record(err)
		if err != nil {
			d.logger.Warn("broadcast edit failed",
				"broadcast_id", b.ID,
				"user_id", userID,
				"error", err)
		}
	}

	// Users authorized since the original send get a fresh delivery.
	audience, err := d.recipients.AuthorizedIDs(ctx)
	if err != nil {
		return tally, fmt.Errorf("failed to resolve audience: %w", err)
	}
	for _, userID := range audience {
		if userID == actorID {
			continue
		}
		if _, delivered := b.RecipientMessages[userID]; delivered {
			continue
		}
		messageID, err := d.notifier.Send(ctx, userID, msg)
		tally.record(err)
		if err != nil {
			d.logger.Warn("broadcast catch-up delivery failed",
				"broadcast_id", b.ID,
				"user_id", userID,
				"error", err)
			continue
		}
		b.RecipientMessages[userID] = messageID
	}

	b.UpdatedAt = d.now().Unix()
	if err := d.broadcasts.UpdateBroadcast(ctx, b); err != nil {
		return tally, fmt.Errorf("%w: %w", ErrNotSaved, err)
	}

	d.logger.Info("broadcast edited",
		"broadcast_id", b.ID,
		"success", tally.Success,
		"failed", tally.Failed)
	return tally, nil
}

// Resend delivers the broadcast again as fresh messages to every authorized
// user except actorID, regardless of earlier delivery. Each successful send
// replaces the recipient's recorded message id, so later edits target the
// newest copy. Failed sends keep the previously recorded id if any.
func (d *Distributor) Resend(ctx context.Context, id, actorID string) (Tally, error) {
	var tally Tally

	b, err := d.get(ctx, id)
	if err != nil {
		return tally, err
	}

	audience, err := d.recipients.AuthorizedIDs(ctx)
	if err != nil {
		return tally, fmt.Errorf("failed to resolve audience: %w", err)
	}

	msg := OutgoingMessage{Content: b.Content, Entities: b.Entities, Media: b.Media}
	for _, userID := range audience {
		if userID == actorID {
			continue
		}
		messageID, err := d.notifier.Send(ctx, userID, msg)
		tally.record(err)
		if err != nil {
			d.logger.Warn("broadcast resend failed",
				"broadcast_id", b.ID,
				"user_id", userID,
				"error", err)
			continue
		}
		b.RecipientMessages[userID] = messageID
	}

	b.UpdatedAt = d.now().Unix()
	if err := d.broadcasts.UpdateBroadcast(ctx, b); err != nil {
		return tally, fmt.Errorf("%w: %w", ErrNotSaved, err)
	}

	d.logger.Info("broadcast resent",
		"broadcast_id", b.ID,
		"success", tally.Success,
		"failed", tally.Failed)
	return tally, nil
}

// Delete removes the broadcast record. Messages already delivered stay in
// recipients' chats. Deleting an unknown id succeeds.
func (d *Distributor) Delete(ctx context.Context, id string) error {
	err := d.broadcasts.DeleteBroadcast(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete broadcast: %w", err)
	}
	d.logger.Info("broadcast deleted", "broadcast_id", id)
	return nil
}

// Get returns the broadcast record for id.
func (d *Distributor) Get(ctx context.Context, id string) (*store.Broadcast, error) {
	return d.get(ctx, id)
}

// List returns all broadcast records in creation order.
func (d *Distributor) List(ctx context.Context) ([]*store.Broadcast, error) {
	return d.broadcasts.ListBroadcasts(ctx)
}

func (d *Distributor) get(ctx context.Context, id string) (*store.Broadcast, error) {
	b, err := d.broadcasts.GetBroadcast(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load broadcast: %w", err)
	}
	return b, nil
}

func sortedRecipients(m store.RecipientMessages) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
