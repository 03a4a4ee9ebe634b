// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/storebotdev/storebot-go/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// authStateRowID is the fixed primary key of the single auth state row.
// Authorization state is a whole-record singleton in every driver.
const authStateRowID = 1

// Driver implements the store.Driver interface using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "storebot.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	// AutoMigrate creates/updates tables based on model structs
	if err := db.AutoMigrate(
		&store.AccessCode{},
		&store.User{},
		&store.AuthState{},
		&store.Broadcast{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CodeStore implementation

// CreateAccessCode creates a new access code.
func (d *Driver) CreateAccessCode(ctx context.Context, code *store.AccessCode) error {
	var existing store.AccessCode
	result := d.db.WithContext(ctx).First(&existing, "code = ?", code.Code)
	if result.Error == nil {
		return store.ErrAlreadyExists
	}
	if result.Error != gorm.ErrRecordNotFound {
		return result.Error
	}
	return d.db.WithContext(ctx).Create(code).Error
}

// GetAccessCode retrieves an access code by value.
func (d *Driver) GetAccessCode(ctx context.Context, code string) (*store.AccessCode, error) {
	var c store.AccessCode
	result := d.db.WithContext(ctx).First(&c, "code = ?", code)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &c, nil
}

// ListAccessCodes returns all stored codes, including expired ones.
func (d *Driver) ListAccessCodes(ctx context.Context) ([]*store.AccessCode, error) {
	var codes []*store.AccessCode
	result := d.db.WithContext(ctx).Find(&codes)
	if result.Error != nil {
		return nil, result.Error
	}
	return codes, nil
}

// ReloadAccessCodes is a no-op for SQLite since every read hits the database.
func (d *Driver) ReloadAccessCodes(ctx context.Context) error {
	return nil
}

// UserStore implementation

// UpsertUser fully replaces the record for the user id.
func (d *Driver) UpsertUser(ctx context.Context, user *store.User) error {
	return d.db.WithContext(ctx).Save(user).Error
}

// GetUser retrieves a user by id.
func (d *Driver) GetUser(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	result := d.db.WithContext(ctx).First(&u, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &u, nil
}

// ListUsers returns all users sorted by id for stable iteration.
func (d *Driver) ListUsers(ctx context.Context) ([]*store.User, error) {
	var users []*store.User
	result := d.db.WithContext(ctx).Order("id asc").Find(&users)
	if result.Error != nil {
		return nil, result.Error
	}
	return users, nil
}

// AuthStore implementation

// ReloadAuthState is a no-op for SQLite since every read hits the database.
func (d *Driver) ReloadAuthState(ctx context.Context) error {
	return nil
}

// GetAuthState returns the singleton auth state row, or an empty state
// when none has been saved yet.
func (d *Driver) GetAuthState(ctx context.Context) (*store.AuthState, error) {
	var state store.AuthState
	result := d.db.WithContext(ctx).First(&state, "id = ?", authStateRowID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return &store.AuthState{ID: authStateRowID}, nil
		}
		return nil, result.Error
	}
	return &state, nil
}

// SaveAuthState replaces the singleton auth state row.
func (d *Driver) SaveAuthState(ctx context.Context, state *store.AuthState) error {
	row := state.Clone()
	row.ID = authStateRowID
	return d.db.WithContext(ctx).Save(row).Error
}

// BroadcastStore implementation

// CreateBroadcast creates a new broadcast record.
func (d *Driver) CreateBroadcast(ctx context.Context, b *store.Broadcast) error {
	var existing store.Broadcast
	result := d.db.WithContext(ctx).First(&existing, "id = ?", b.ID)
	if result.Error == nil {
		return store.ErrAlreadyExists
	}
	if result.Error != gorm.ErrRecordNotFound {
		return result.Error
	}
	return d.db.WithContext(ctx).Create(b).Error
}

// GetBroadcast retrieves a broadcast by id.
func (d *Driver) GetBroadcast(ctx context.Context, id string) (*store.Broadcast, error) {
	var b store.Broadcast
	result := d.db.WithContext(ctx).First(&b, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	if b.RecipientMessages == nil {
		b.RecipientMessages = make(store.RecipientMessages)
	}
	return &b, nil
}

// UpdateBroadcast replaces an existing broadcast record.
func (d *Driver) UpdateBroadcast(ctx context.Context, b *store.Broadcast) error {
	var existing store.Broadcast
	result := d.db.WithContext(ctx).First(&existing, "id = ?", b.ID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return store.ErrNotFound
		}
		return result.Error
	}
	return d.db.WithContext(ctx).Save(b).Error
}

// DeleteBroadcast deletes a broadcast record wholesale.
func (d *Driver) DeleteBroadcast(ctx context.Context, id string) error {
	result := d.db.WithContext(ctx).Delete(&store.Broadcast{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListBroadcasts returns all broadcasts sorted by creation time ascending.
func (d *Driver) ListBroadcasts(ctx context.Context) ([]*store.Broadcast, error) {
	var broadcasts []*store.Broadcast
	result := d.db.WithContext(ctx).Order("created_at asc, id asc").Find(&broadcasts)
	if result.Error != nil {
		return nil, result.Error
	}
	for _, b := range broadcasts {
		if b.RecipientMessages == nil {
			b.RecipientMessages = make(store.RecipientMessages)
		}
	}
	return broadcasts, nil
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.CodeStore = (*Driver)(nil)
var _ store.UserStore = (*Driver)(nil)
var _ store.AuthStore = (*Driver)(nil)
var _ store.BroadcastStore = (*Driver)(nil)
