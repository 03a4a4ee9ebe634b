package access_test

import (
	"context"
	"errors"
	"testing"

	"github.com/storebotdev/storebot-go/internal/access"
	"github.com/storebotdev/storebot-go/internal/store"
)

// recordingCleaner records cleanup calls and optionally fails.
type recordingCleaner struct {
	cleaned []string
	err     error
}

func (c *recordingCleaner) CleanupUser(ctx context.Context, userID string) error {
	c.cleaned = append(c.cleaned, userID)
	return c.err
}

func TestGateAuthorizeAndCheck(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)
	gate := access.NewGate(driver.(store.AuthStore), nil, nil)

	ok, err := gate.IsAuthorized(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected user unauthorized initially")
	}

	if err := gate.Authorize(ctx, "100500"); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	// Repeat authorize is a no-op
	if err := gate.Authorize(ctx, "100500"); err != nil {
		t.Fatalf("repeat Authorize failed: %v", err)
	}

	ok, err = gate.IsAuthorized(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected user authorized after Authorize")
	}

	ids, err := gate.AuthorizedIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "100500" {
		t.Errorf("expected authorized ids [100500], got %v", ids)
	}
}

func TestGateBanRevokesAndRecords(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)
	cleaner := &recordingCleaner{}
	gate := access.NewGate(driver.(store.AuthStore), cleaner, nil)

	if err := gate.Authorize(ctx, "100500"); err != nil {
		t.Fatal(err)
	}
	if err := gate.Ban(ctx, "100500"); err != nil {
		t.Fatalf("Ban failed: %v", err)
	}

	ok, err := gate.IsAuthorized(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected authorization revoked after ban")
	}

	banned, err := gate.IsBanned(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if !banned {
		t.Error("expected user banned")
	}

	if len(cleaner.cleaned) != 1 || cleaner.cleaned[0] != "100500" {
		t.Errorf("expected session cleanup for 100500, got %v", cleaner.cleaned)
	}
}

func TestGateBanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)
	gate := access.NewGate(driver.(store.AuthStore), nil, nil)

	if err := gate.Authorize(ctx, "100500"); err != nil {
		t.Fatal(err)
	}
	if err := gate.Ban(ctx, "100500"); err != nil {
		t.Fatalf("Ban failed: %v", err)
	}
	if err := gate.Ban(ctx, "100500"); err != nil {
		t.Fatalf("repeat Ban failed: %v", err)
	}

	state, err := gate.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	entries := 0
	for _, id := range state.Banned {
		if id == "100500" {
			entries++
		}
	}
	if entries != 1 {
		t.Errorf("expected a single banned entry after repeat ban, got %d", entries)
	}
	if state.Authorized.Contains("100500") {
		t.Error("expected authorization still revoked after repeat ban")
	}

	banned, err := gate.IsBanned(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if !banned {
		t.Error("expected user still banned after repeat ban")
	}
}

func TestGateBanSurvivesCleanupFailure(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)
	cleaner := &recordingCleaner{err: errors.New("session backend down")}
	gate := access.NewGate(driver.(store.AuthStore), cleaner, nil)

	if err := gate.Ban(ctx, "100500"); err != nil {
		t.Fatalf("Ban should succeed despite cleanup failure, got %v", err)
	}
	banned, err := gate.IsBanned(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if !banned {
		t.Error("expected ban recorded despite cleanup failure")
	}
}

func TestGateUnbanDoesNotReauthorize(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)
	gate := access.NewGate(driver.(store.AuthStore), nil, nil)

	if err := gate.Authorize(ctx, "100500"); err != nil {
		t.Fatal(err)
	}
	if err := gate.Ban(ctx, "100500"); err != nil {
		t.Fatal(err)
	}
	if err := gate.Unban(ctx, "100500"); err != nil {
		t.Fatalf("Unban failed: %v", err)
	}

	banned, err := gate.IsBanned(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if banned {
		t.Error("expected user no longer banned")
	}

	ok, err := gate.IsAuthorized(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected unban not to restore authorization")
	}

	// Unban of a user who is not banned is a no-op
	if err := gate.Unban(ctx, "100500"); err != nil {
		t.Errorf("repeat Unban failed: %v", err)
	}
}

func TestGateCodeGateToggle(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)
	gate := access.NewGate(driver.(store.AuthStore), nil, nil)

	enabled, err := gate.CodeGateEnabled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if enabled {
		t.Error("expected code gate disabled by default")
	}

	// Gate disabled: any non-banned user may interact
	allowed, err := gate.Allowed(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Error("expected non-banned user allowed with gate disabled")
	}

	enabled, err = gate.ToggleCodeGate(ctx)
	if err != nil {
		t.Fatalf("ToggleCodeGate failed: %v", err)
	}
	if !enabled {
		t.Error("expected gate enabled after toggle")
	}

	// Gate enabled: unauthorized users are refused
	allowed, err = gate.Allowed(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Error("expected unauthorized user refused with gate enabled")
	}

	if err := gate.Authorize(ctx, "100500"); err != nil {
		t.Fatal(err)
	}
	allowed, err = gate.Allowed(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Error("expected authorized user allowed with gate enabled")
	}

	enabled, err = gate.ToggleCodeGate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if enabled {
		t.Error("expected gate disabled after second toggle")
	}
}

func TestGateBannedUserNeverAllowed(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)
	gate := access.NewGate(driver.(store.AuthStore), nil, nil)

	if err := gate.Ban(ctx, "666"); err != nil {
		t.Fatal(err)
	}

	// Banned beats the disabled gate
	allowed, err := gate.Allowed(ctx, "666")
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Error("expected banned user refused with gate disabled")
	}

	if _, err := gate.ToggleCodeGate(ctx); err != nil {
		t.Fatal(err)
	}
	allowed, err = gate.Allowed(ctx, "666")
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Error("expected banned user refused with gate enabled")
	}
}
