package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/storebotdev/storebot-go/internal/cache/memory"
	"github.com/storebotdev/storebot-go/internal/session"
)

type recordingDeleter struct {
	deleted []string
	fail    map[int64]bool
}

func (d *recordingDeleter) DeleteMessage(ctx context.Context, recipient string, messageID int64) error {
	if d.fail[messageID] {
		return errors.New("delete rejected")
	}
	d.deleted = append(d.deleted, fmt.Sprintf("%s/%d", recipient, messageID))
	return nil
}

func newTestManager(t *testing.T) (*session.Manager, *recordingDeleter) {
	t.Helper()
	c := memory.New(time.Minute, 0)
	t.Cleanup(func() { c.Close() })
	d := &recordingDeleter{fail: map[int64]bool{}}
	return session.NewManager(c, d, nil), d
}

func TestGetMissingReturnsEmptyState(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	st, err := m.Get(ctx, "100")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if st.Screen != "" || len(st.MessageIDs) != 0 {
		t.Errorf("expected empty state, got %+v", st)
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	in := &session.State{
		Screen: "catalog",
		Data:   map[string]string{"page": "2"},
	}
	if err := m.Put(ctx, "100", in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	st, err := m.Get(ctx, "100")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if st.Screen != "catalog" || st.Data["page"] != "2" {
		t.Errorf("unexpected state: %+v", st)
	}
}

func TestTrackMessageDeduplicates(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	for _, id := range []int64{7, 8, 7} {
		if err := m.TrackMessage(ctx, "100", id); err != nil {
			t.Fatalf("TrackMessage(%d) failed: %v", id, err)
		}
	}

	st, err := m.Get(ctx, "100")
	if err != nil {
		t.Fatal(err)
	}
	if len(st.MessageIDs) != 2 || st.MessageIDs[0] != 7 || st.MessageIDs[1] != 8 {
		t.Errorf("expected [7 8], got %v", st.MessageIDs)
	}
}

func TestCleanupUserDeletesTrackedMessages(t *testing.T) {
	ctx := context.Background()
	m, d := newTestManager(t)

	for _, id := range []int64{7, 8} {
		if err := m.TrackMessage(ctx, "100", id); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.CleanupUser(ctx, "100"); err != nil {
		t.Fatalf("CleanupUser failed: %v", err)
	}
	if len(d.deleted) != 2 || d.deleted[0] != "100/7" || d.deleted[1] != "100/8" {
		t.Errorf("unexpected deletions: %v", d.deleted)
	}

	st, err := m.Get(ctx, "100")
	if err != nil {
		t.Fatal(err)
	}
	if len(st.MessageIDs) != 0 {
		t.Errorf("expected state cleared, got %+v", st)
	}
}

func TestCleanupUserSurvivesDeleteFailures(t *testing.T) {
	ctx := context.Background()
	m, d := newTestManager(t)
	d.fail[7] = true

	for _, id := range []int64{7, 8} {
		if err := m.TrackMessage(ctx, "100", id); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.CleanupUser(ctx, "100"); err != nil {
		t.Fatalf("CleanupUser should not fail on message deletion errors: %v", err)
	}
	if len(d.deleted) != 1 || d.deleted[0] != "100/8" {
		t.Errorf("expected the non-failing delete to proceed, got %v", d.deleted)
	}
}

func TestCleanupUserIdempotent(t *testing.T) {
	ctx := context.Background()
	m, d := newTestManager(t)

	if err := m.CleanupUser(ctx, "100"); err != nil {
		t.Fatalf("CleanupUser on unknown user failed: %v", err)
	}
	if len(d.deleted) != 0 {
		t.Errorf("expected no deletions, got %v", d.deleted)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if err := m.Put(ctx, "100", &session.State{Screen: "cart"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Clear(ctx, "100"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	st, err := m.Get(ctx, "100")
	if err != nil {
		t.Fatal(err)
	}
	if st.Screen != "" {
		t.Errorf("expected cleared state, got %+v", st)
	}
}
