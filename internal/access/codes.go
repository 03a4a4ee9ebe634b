// Package access implements access codes and the authorization gate.
//
// Access codes are single-issue, time-limited tokens that let a user pass
// the code gate. Verifying a code never consumes it; expired codes stay in
// storage and are simply rejected.
package access

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/storebotdev/storebot-go/internal/logutil"
	"github.com/storebotdev/storebot-go/internal/store"
)

var (
	// ErrCodeNotFound is returned when a redeemed code does not exist.
	ErrCodeNotFound = errors.New("access code not found")
	// ErrCodeExpired is returned when a redeemed code exists but has expired.
	ErrCodeExpired = errors.New("access code expired")
)

// codeBytes is the entropy of a generated code; codes render as hex twice
// this length.
const codeBytes = 8

// Issuer generates and verifies access codes.
type Issuer struct {
	codes  store.CodeStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewIssuer creates an Issuer persisting into codes with the given lifetime.
func NewIssuer(codes store.CodeStore, ttl time.Duration, logger *slog.Logger) *Issuer {
	return &Issuer{
		codes:  codes,
		ttl:    ttl,
		logger: logutil.NoopIfNil(logger),
		now:    time.Now,
	}
}

// Generate creates a fresh code attributed to the issuing admin and persists
// it before returning. Collisions with existing codes are regenerated.
func (i *Issuer) Generate(ctx context.Context, issuedBy string) (*store.AccessCode, error) {
	for {
		buf := make([]byte, codeBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}

		now := i.now()
		code := &store.AccessCode{
			Code:      hex.EncodeToString(buf),
			IssuedBy:  issuedBy,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(i.ttl).Unix(),
		}

		err := i.codes.CreateAccessCode(ctx, code)
		if err == nil {
			i.logger.Info("access code issued",
				"issued_by", issuedBy,
				"expires_at", code.ExpiresAt)
			return code, nil
		}
		if errors.Is(err, store.ErrAlreadyExists) {
			continue
		}
		return nil, fmt.Errorf("failed to persist code: %w", err)
	}
}

// Verify checks whether code grants access right now. Storage is reloaded
// first so codes issued by another process are honored. Verification never
// mutates the code.
func (i *Issuer) Verify(ctx context.Context, code string) error {
	if err := i.codes.ReloadAccessCodes(ctx); err != nil {
		return fmt.Errorf("failed to reload codes: %w", err)
	}

	c, err := i.codes.GetAccessCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCodeNotFound
		}
		return fmt.Errorf("failed to look up code: %w", err)
	}

	// A code is valid through its expiry second and rejected after it.
	if i.now().Unix() > c.ExpiresAt {
		return ErrCodeExpired
	}
	return nil
}

// ListActive returns unexpired codes ordered by issue time.
func (i *Issuer) ListActive(ctx context.Context) ([]*store.AccessCode, error) {
	if err := i.codes.ReloadAccessCodes(ctx); err != nil {
		return nil, fmt.Errorf("failed to reload codes: %w", err)
	}

	all, err := i.codes.ListAccessCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}

	now := i.now().Unix()
	active := make([]*store.AccessCode, 0, len(all))
	for _, c := range all {
		if c.ExpiresAt >= now {
			active = append(active, c)
		}
	}
	sort.Slice(active, func(a, b int) bool {
		if active[a].IssuedAt == active[b].IssuedAt {
			return active[a].Code < active[b].Code
		}
		return active[a].IssuedAt < active[b].IssuedAt
	})
	return active, nil
}
