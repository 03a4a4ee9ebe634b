package users_test

import (
	"context"
	"testing"

	"github.com/storebotdev/storebot-go/internal/store"
	_ "github.com/storebotdev/storebot-go/internal/store/json"
	"github.com/storebotdev/storebot-go/internal/users"
)

func newTestStore(t *testing.T) store.UserStore {
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
	return driver.(store.UserStore)
}

func TestRegistryRecordsAndUpdates(t *testing.T) {
	ctx := context.Background()
	reg := users.NewRegistry(newTestStore(t), nil)

	p := users.Profile{ID: "100500", Username: "alice", FirstName: "Alice"}
	if err := reg.RegisterOrUpdate(ctx, p, 1000); err != nil {
		t.Fatalf("RegisterOrUpdate failed: %v", err)
	}

	got, err := reg.Get(ctx, "100500")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Username != "alice" || got.LastSeen != 1000 {
		t.Errorf("unexpected stored user: %+v", got)
	}

	// A later interaction with changed identity replaces the record
	p.Username = ""
	p.FirstName = "Alicia"
	p.LastName = "Smith"
	if err := reg.RegisterOrUpdate(ctx, p, 2000); err != nil {
		t.Fatalf("RegisterOrUpdate update failed: %v", err)
	}
	got, err = reg.Get(ctx, "100500")
	if err != nil {
		t.Fatal(err)
	}
	if got.Username != "" || got.FirstName != "Alicia" || got.LastSeen != 2000 {
		t.Errorf("expected replaced record, got %+v", got)
	}
}

func TestRegistryRejectsEmptyID(t *testing.T) {
	reg := users.NewRegistry(newTestStore(t), nil)
	if err := reg.RegisterOrUpdate(context.Background(), users.Profile{}, 1000); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestRegistryAllStableOrder(t *testing.T) {
	ctx := context.Background()
	reg := users.NewRegistry(newTestStore(t), nil)

	for _, p := range []users.Profile{
		{ID: "300", Username: "carol"},
		{ID: "100", Username: "alice"},
		{ID: "200", Username: "bob"},
	} {
		if err := reg.RegisterOrUpdate(ctx, p, 1000); err != nil {
			t.Fatal(err)
		}
	}

	all, err := reg.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 users, got %d", len(all))
	}
	if all[0].ID != "100" || all[1].ID != "200" || all[2].ID != "300" {
		t.Errorf("expected id order, got [%s %s %s]", all[0].ID, all[1].ID, all[2].ID)
	}
}

func TestDisplayNameFallbacks(t *testing.T) {
	tests := []struct {
		name string
		user store.User
		want string
	}{
		{"username wins", store.User{ID: "1", Username: "alice", FirstName: "Alice", LastName: "Smith"}, "@alice"},
		{"first and last", store.User{ID: "1", FirstName: "Alice", LastName: "Smith"}, "Alice Smith"},
		{"first only", store.User{ID: "1", FirstName: "Alice"}, "Alice"},
		{"last only", store.User{ID: "1", LastName: "Smith"}, "Smith"},
		{"id fallback", store.User{ID: "42"}, "user 42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}
