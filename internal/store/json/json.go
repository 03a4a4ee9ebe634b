// Package json implements a JSON file-based persistence driver.
// It uses atomic writes (temp file + fsync + rename) and in-process locking.
// Authorization state and access codes can be re-read from disk on demand to
// tolerate external concurrent writers; there is no file-level locking, so
// concurrent writers risk last-writer-wins overwrite.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/storebotdev/storebot-go/internal/store"
)

func init() {
	store.Register("json", NewDriver)
}

const (
	codesFile      = "access_codes.json"
	usersFile      = "users.json"
	authStateFile  = "auth_state.json"
	broadcastsFile = "broadcasts.json"
)

// Driver implements the store.Driver interface using JSON files.
type Driver struct {
	dataDir string
	mu      sync.RWMutex
	closed  bool

	// In-memory state loaded from JSON
	codes      map[string]*store.AccessCode // keyed by code value
	users      map[string]*store.User       // keyed by user id
	authState  *store.AuthState
	broadcasts map[string]*store.Broadcast // keyed by broadcast id
}

// NewDriver creates a new JSON driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json driver")
	}

	return &Driver{
		dataDir:    cfg.DataDir,
		codes:      make(map[string]*store.AccessCode),
		users:      make(map[string]*store.User),
		authState:  &store.AuthState{},
		broadcasts: make(map[string]*store.Broadcast),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "json"
}

// Init loads data from JSON files.
func (d *Driver) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	if err := d.loadFile(codesFile, &d.codes); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load access codes: %w", err)
	}
	if err := d.loadFile(usersFile, &d.users); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load users: %w", err)
	}
	if err := d.loadFile(authStateFile, d.authState); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load auth state: %w", err)
	}
	if err := d.loadFile(broadcastsFile, &d.broadcasts); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load broadcasts: %w", err)
	}

	// Broadcast records written by older versions may miss the recipient
	// map entirely.
	for _, b := range d.broadcasts {
		if b.RecipientMessages == nil {
			b.RecipientMessages = make(store.RecipientMessages)
		}
	}

	return nil
}

// Close releases resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// loadFile loads a JSON file into the target.
func (d *Driver) loadFile(filename string, target interface{}) error {
	path := filepath.Join(d.dataDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// saveFile atomically writes data to a JSON file.
// Pattern: write to temp file, fsync, rename.
func (d *Driver) saveFile(filename string, data interface{}) error {
	path := filepath.Join(d.dataDir, filename)
	tempPath := path + ".tmp"

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(jsonData); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Fsync to ensure data is on disk
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// CodeStore implementation

// CreateAccessCode persists a new access code.
func (d *Driver) CreateAccessCode(ctx context.Context, code *store.AccessCode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	if _, exists := d.codes[code.Code]; exists {
		return store.ErrAlreadyExists
	}

	c := *code
	d.codes[code.Code] = &c
	return d.saveFile(codesFile, d.codes)
}

// GetAccessCode retrieves an access code by value.
func (d *Driver) GetAccessCode(ctx context.Context, code string) (*store.AccessCode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	c, ok := d.codes[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *c
	return &out, nil
}

// ListAccessCodes returns all stored codes, including expired ones.
func (d *Driver) ListAccessCodes(ctx context.Context) ([]*store.AccessCode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	codes := make([]*store.AccessCode, 0, len(d.codes))
	for _, c := range d.codes {
		out := *c
		codes = append(codes, &out)
	}
	return codes, nil
}

// ReloadAccessCodes re-reads the code file from disk.
func (d *Driver) ReloadAccessCodes(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	fresh := make(map[string]*store.AccessCode)
	if err := d.loadFile(codesFile, &fresh); err != nil {
		if os.IsNotExist(err) {
			d.codes = fresh
			return nil
		}
		return fmt.Errorf("failed to reload access codes: %w", err)
	}
	d.codes = fresh
	return nil
}

// UserStore implementation

// UpsertUser fully replaces the record for the user id.
func (d *Driver) UpsertUser(ctx context.Context, user *store.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	u := *user
	d.users[user.ID] = &u
	return d.saveFile(usersFile, d.users)
}

// GetUser retrieves a user by id.
func (d *Driver) GetUser(ctx context.Context, id string) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	u, ok := d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *u
	return &out, nil
}

// ListUsers returns all users sorted by id for stable iteration.
func (d *Driver) ListUsers(ctx context.Context) ([]*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	users := make([]*store.User, 0, len(d.users))
	for _, u := range d.users {
		out := *u
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// AuthStore implementation

// ReloadAuthState re-reads the auth state file from disk.
func (d *Driver) ReloadAuthState(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	fresh := &store.AuthState{}
	if err := d.loadFile(authStateFile, fresh); err != nil {
		if os.IsNotExist(err) {
			d.authState = fresh
			return nil
		}
		return fmt.Errorf("failed to reload auth state: %w", err)
	}
	d.authState = fresh
	return nil
}

// GetAuthState returns a copy of the current auth state.
func (d *Driver) GetAuthState(ctx context.Context) (*store.AuthState, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	return d.authState.Clone(), nil
}

// SaveAuthState replaces the auth state whole-record and persists it.
func (d *Driver) SaveAuthState(ctx context.Context, state *store.AuthState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	d.authState = state.Clone()
	return d.saveFile(authStateFile, d.authState)
}

// BroadcastStore implementation

// CreateBroadcast persists a new broadcast record.
func (d *Driver) CreateBroadcast(ctx context.Context, b *store.Broadcast) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	if _, exists := d.broadcasts[b.ID]; exists {
		return store.ErrAlreadyExists
	}

	d.broadcasts[b.ID] = b.Clone()
	return d.saveFile(broadcastsFile, d.broadcasts)
}

// GetBroadcast retrieves a broadcast by id.
func (d *Driver) GetBroadcast(ctx context.Context, id string) (*store.Broadcast, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	b, ok := d.broadcasts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b.Clone(), nil
}

// UpdateBroadcast replaces an existing broadcast record.
func (d *Driver) UpdateBroadcast(ctx context.Context, b *store.Broadcast) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	if _, exists := d.broadcasts[b.ID]; !exists {
		return store.ErrNotFound
	}

	d.broadcasts[b.ID] = b.Clone()
	return d.saveFile(broadcastsFile, d.broadcasts)
}

// DeleteBroadcast deletes a broadcast record wholesale.
func (d *Driver) DeleteBroadcast(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	if _, exists := d.broadcasts[id]; !exists {
		return store.ErrNotFound
	}

	delete(d.broadcasts, id)
	return d.saveFile(broadcastsFile, d.broadcasts)
}

// ListBroadcasts returns all broadcasts sorted by creation time ascending.
func (d *Driver) ListBroadcasts(ctx context.Context) ([]*store.Broadcast, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	broadcasts := make([]*store.Broadcast, 0, len(d.broadcasts))
	for _, b := range d.broadcasts {
		broadcasts = append(broadcasts, b.Clone())
	}
	sort.Slice(broadcasts, func(i, j int) bool {
		if broadcasts[i].CreatedAt == broadcasts[j].CreatedAt {
			return broadcasts[i].ID < broadcasts[j].ID
		}
		return broadcasts[i].CreatedAt < broadcasts[j].CreatedAt
	})
	return broadcasts, nil
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.CodeStore = (*Driver)(nil)
var _ store.UserStore = (*Driver)(nil)
var _ store.AuthStore = (*Driver)(nil)
var _ store.BroadcastStore = (*Driver)(nil)
