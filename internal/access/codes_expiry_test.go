package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storebotdev/storebot-go/internal/store"
	_ "github.com/storebotdev/storebot-go/internal/store/json"
)

func openDriver(t *testing.T) store.Driver {
	t.Helper()

	driver, err := store.New(&store.DriverConfig{
		Driver:  "json",
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := driver.Init(context.Background()); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { driver.Close() })
	return driver
}

func TestVerifyAtExpiryInstant(t *testing.T) {
	ctx := context.Background()
	issuer := NewIssuer(openDriver(t).(store.CodeStore), time.Hour, nil)

	issued := time.Unix(1700000000, 0)
	issuer.now = func() time.Time { return issued }

	code, err := issuer.Generate(ctx, "900001")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// The code stays valid through the second it expires on.
	issuer.now = func() time.Time { return issued.Add(time.Hour) }
	if err := issuer.Verify(ctx, code.Code); err != nil {
		t.Errorf("expected code valid at its expiry instant, got %v", err)
	}
	active, err := issuer.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Errorf("expected code listed as active at its expiry instant, got %d entries", len(active))
	}

	// One second later it is expired.
	issuer.now = func() time.Time { return issued.Add(time.Hour + time.Second) }
	if err := issuer.Verify(ctx, code.Code); !errors.Is(err, ErrCodeExpired) {
		t.Errorf("expected ErrCodeExpired past expiry, got %v", err)
	}
	active, err = issuer.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active codes past expiry, got %d entries", len(active))
	}
}
