package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/storebotdev/storebot-go/internal/access"
	"github.com/storebotdev/storebot-go/internal/store"
	_ "github.com/storebotdev/storebot-go/internal/store/json"
)

func newTestStore(t *testing.T) store.Driver {
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

func TestIssuerGenerateAndVerify(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)
	issuer := access.NewIssuer(driver.(store.CodeStore), time.Hour, nil)

	code, err := issuer.Generate(ctx, "900001")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(code.Code) != 16 {
		t.Errorf("expected 16-char hex code, got %q", code.Code)
	}
	if code.IssuedBy != "900001" {
		t.Errorf("expected issuer 900001, got %q", code.IssuedBy)
	}
	if code.ExpiresAt <= code.IssuedAt {
		t.Errorf("expected expiry after issue time, got issued %d expires %d", code.IssuedAt, code.ExpiresAt)
	}

	if err := issuer.Verify(ctx, code.Code); err != nil {
		t.Errorf("Verify of fresh code failed: %v", err)
	}

	// Verification does not consume the code
	if err := issuer.Verify(ctx, code.Code); err != nil {
		t.Errorf("second Verify failed: %v", err)
	}
}

func TestIssuerVerifyUnknownCode(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)
	issuer := access.NewIssuer(driver.(store.CodeStore), time.Hour, nil)

	if err := issuer.Verify(ctx, "deadbeefdeadbeef"); err != access.ErrCodeNotFound {
		t.Errorf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestIssuerVerifyExpiredCode(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)

	// Negative lifetime issues a code that is already expired
	issuer := access.NewIssuer(driver.(store.CodeStore), -time.Hour, nil)
	code, err := issuer.Generate(ctx, "900001")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if err := issuer.Verify(ctx, code.Code); err != access.ErrCodeExpired {
		t.Errorf("expected ErrCodeExpired, got %v", err)
	}

	// The expired code stays in storage
	if _, err := driver.(store.CodeStore).GetAccessCode(ctx, code.Code); err != nil {
		t.Errorf("expected expired code to remain stored, got %v", err)
	}
}

func TestIssuerListActive(t *testing.T) {
	ctx := context.Background()
	driver := newTestStore(t)
	codes := driver.(store.CodeStore)

	fresh := access.NewIssuer(codes, time.Hour, nil)
	stale := access.NewIssuer(codes, -time.Minute, nil)

	first, err := fresh.Generate(ctx, "900001")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stale.Generate(ctx, "900001"); err != nil {
		t.Fatal(err)
	}
	second, err := fresh.Generate(ctx, "900002")
	if err != nil {
		t.Fatal(err)
	}

	active, err := fresh.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active codes, got %d", len(active))
	}
	for _, c := range active {
		if c.Code != first.Code && c.Code != second.Code {
			t.Errorf("unexpected code in active list: %q", c.Code)
		}
	}
}
