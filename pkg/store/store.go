package store

import (
	"context"
	"time"

	"github.com/Sibusisongondo/Tdone/internal/viewer"
	"github.com/Sibusisongondo/Tdone/pkg/domain"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// MagazineFilter narrows ListMagazines. Zero values mean "no filter".
type MagazineFilter struct {
	UserID   string
	Category string
	Query    string
	Limit    int
	Offset   int
}

// CountFilter narrows the counters. Zero values count everything.
type CountFilter struct {
	UserID string
	// CreatedSince keeps magazines created at or after this instant.
	CreatedSince time.Time
}

// Store defines persistence operations for magazines and artist profiles.
type Store interface {
	// magazines
	SaveMagazine(ctx context.Context, m domain.Magazine) error
	GetMagazine(ctx context.Context, id string) (domain.Magazine, bool, error)
	// ListMagazines returns magazines newest first, joined with the owner's artist name.
	ListMagazines(ctx context.Context, filter MagazineFilter) ([]domain.Magazine, error)
	// DeleteMagazine removes the row. beforeCommit runs after the row is deleted and
	// before the change becomes visible; an error from it keeps the row.
	DeleteMagazine(ctx context.Context, id string, beforeCommit func() error) error
	CountMagazines(ctx context.Context, filter CountFilter) (int, error)
	// CountCategories counts distinct categories among the matching magazines.
	CountCategories(ctx context.Context, filter CountFilter) (int, error)

	// profiles
	EnsureProfile(ctx context.Context, p domain.Profile) (domain.Profile, error)
	GetProfile(ctx context.Context, id string) (domain.Profile, bool, error)
	CountProfiles(ctx context.Context) (int, error)
}

// ViewerStateStore remembers where each reader left off in each magazine.
type ViewerStateStore interface {
	LoadViewerState(ctx context.Context, userID, magazineID string) (viewer.State, bool, error)
	SaveViewerState(ctx context.Context, userID, magazineID string, state viewer.State) error
}

// TokenRevoker tracks revoked tokens until expiry.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// NormalizeLimit applies the default and maximum page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
