// Package store provides persistence primitives and driver abstractions.
package store

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (json, sqlite).
	Name() string
}

// CodeStore defines operations for access code persistence.
// Codes are immutable after creation; expired codes are filtered by the
// caller, never eagerly deleted.
type CodeStore interface {
	CreateAccessCode(ctx context.Context, code *AccessCode) error
	GetAccessCode(ctx context.Context, code string) (*AccessCode, error)
	ListAccessCodes(ctx context.Context) ([]*AccessCode, error)

	// ReloadAccessCodes re-reads codes from durable storage so that
	// external writers are picked up before a verification pass.
	ReloadAccessCodes(ctx context.Context) error
}

// UserStore defines operations for user registry persistence.
type UserStore interface {
	// UpsertUser fully replaces the stored record for the user id.
	UpsertUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)

	// ListUsers returns all users in a stable order (sorted by id).
	ListUsers(ctx context.Context) ([]*User, error)
}

// AuthStore defines operations for authorization state persistence.
// The state is read and written whole-record; each SaveAuthState call must
// be durable before it returns.
type AuthStore interface {
	// ReloadAuthState re-reads state from durable storage. Authorization
	// checks call this first so external edits take effect immediately.
	ReloadAuthState(ctx context.Context) error
	GetAuthState(ctx context.Context) (*AuthState, error)
	SaveAuthState(ctx context.Context, state *AuthState) error
}

// BroadcastStore defines operations for broadcast persistence.
type BroadcastStore interface {
	CreateBroadcast(ctx context.Context, b *Broadcast) error
	GetBroadcast(ctx context.Context, id string) (*Broadcast, error)
	UpdateBroadcast(ctx context.Context, b *Broadcast) error
	DeleteBroadcast(ctx context.Context, id string) error
	ListBroadcasts(ctx context.Context) ([]*Broadcast, error)
}

// AccessCode is a short-lived credential granting authorized status on
// redemption. Unique by code value; never mutated.
type AccessCode struct {
	Code      string `json:"code" gorm:"primaryKey"`
	IssuedBy  string `json:"issued_by"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// User is a registry record for anyone who ever interacted with the bot.
// Display fields are overwritten wholesale on every interaction.
type User struct {
	ID        string `json:"id" gorm:"primaryKey"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	LastSeen  int64  `json:"last_seen"`
}

// DisplayName builds a human-readable name, preferring the username.
func (u *User) DisplayName() string {
	switch {
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return "user " + u.ID
	}
}

// AuthState holds the authorized and banned user sets plus the code gate
// switch. A user id appears in at most one of the two sets.
type AuthState struct {
	ID              uint        `json:"-" gorm:"primaryKey"`
	Authorized      StringSlice `json:"authorized" gorm:"type:text;serializer:json"`
	Banned          StringSlice `json:"banned" gorm:"type:text;serializer:json"`
	CodeGateEnabled bool        `json:"code_gate_enabled"`
}

// StringSlice is a JSON-serialized list column.
type StringSlice []string

// Contains reports whether id is present.
func (s StringSlice) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Remove returns the slice without id and whether anything was removed.
func (s StringSlice) Remove(id string) (StringSlice, bool) {
	out := make(StringSlice, 0, len(s))
	removed := false
	for _, v := range s {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out, removed
}

// Clone returns a deep copy so callers can mutate without aliasing the
// driver's in-memory state.
func (st *AuthState) Clone() *AuthState {
	return &AuthState{
		ID:              st.ID,
		Authorized:      append(StringSlice(nil), st.Authorized...),
		Banned:          append(StringSlice(nil), st.Banned...),
		CodeGateEnabled: st.CodeGateEnabled,
	}
}

// MessageEntity is a formatting span within broadcast content, mirroring the
// chat platform's entity model.
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Media attachment types.
const (
	MediaPhoto = "photo"
	MediaVideo = "video"
)

// MediaAttachment references an already-uploaded media object on the chat
// platform plus its caption.
type MediaAttachment struct {
	Type    string `json:"type"` // photo or video
	FileRef string `json:"file_ref"`
	Caption string `json:"caption,omitempty"`
}

// MessageEntities is a JSON-serialized entity list column.
type MessageEntities []MessageEntity

// RecipientMessages maps a recipient user id to the id of the message
// currently displayed to that recipient.
type RecipientMessages map[string]int64

// Broadcast is an admin-authored announcement plus per-recipient delivery
// state. Entries in RecipientMessages reflect authorization at delivery
// time; they are not corrected when a recipient is later banned.
type Broadcast struct {
	ID                string            `json:"id" gorm:"primaryKey"`
	Content           string            `json:"content"`
	Entities          MessageEntities   `json:"entities,omitempty" gorm:"type:text;serializer:json"`
	Media             *MediaAttachment  `json:"media,omitempty" gorm:"type:text;serializer:json"`
	RecipientMessages RecipientMessages `json:"recipient_messages" gorm:"type:text;serializer:json"`
	CreatedAt         int64             `json:"created_at"`
	UpdatedAt         int64             `json:"updated_at"`
}

// Clone returns a deep copy of the broadcast.
func (b *Broadcast) Clone() *Broadcast {
	c := *b
	c.Entities = append(MessageEntities(nil), b.Entities...)
	if b.Media != nil {
		m := *b.Media
		c.Media = &m
	}
	c.RecipientMessages = make(RecipientMessages, len(b.RecipientMessages))
	for k, v := range b.RecipientMessages {
		c.RecipientMessages[k] = v
	}
	return &c
}
