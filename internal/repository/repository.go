package repository

import (
	"context"
	"time"

	"shorturl/internal/domain"
)

// EntryRepository defines the contract for short entry data access.
// Implementations return domain.ErrInvalidLink for unknown ids or codes and
// wrap storage failures with domain.NewInternalError.
type EntryRepository interface {
	// Create stores a new entry with its destinations and metadata.
	// Missing ids are assigned; positions follow slice order.
	Create(ctx context.Context, entry *domain.ShortEntry) error

	// FindByCode retrieves an entry by code ignoring case, soft-deleted ones included
	FindByCode(ctx context.Context, code string) (*domain.ShortEntry, error)

	// ExistsCode checks case-insensitively whether a code was ever used
	ExistsCode(ctx context.Context, code string) (bool, error)

	// CountActiveByOwner counts the owner's entries that are not soft-deleted
	CountActiveByOwner(ctx context.Context, ownerID string) (int64, error)

	// ReplaceDestinations swaps the full destination list atomically
	ReplaceDestinations(ctx context.Context, entryID string, destinations []domain.Destination) error

	// ReplaceMetadata swaps the full metadata variant list atomically
	ReplaceMetadata(ctx context.Context, entryID string, variants []domain.MetadataVariant) error

	// RenameCode changes the code; returns domain.ErrSlugTaken on conflict
	RenameCode(ctx context.Context, entryID, code string) error

	// SoftDelete marks the entry deleted
	SoftDelete(ctx context.Context, entryID string, at time.Time) error

	// AdvanceOgIndex sets current_og_index to (current_og_index + 1) mod n atomically
	AdvanceOgIndex(ctx context.Context, entryID string, n int) error

	// RecordRedirect advances current_destination_index to (index + 1) mod n
	// and stores the click in one atomic unit
	RecordRedirect(ctx context.Context, entryID string, n int, click *domain.ClickEvent) error
}

// ClickRepository defines the contract for click analytics access
type ClickRepository interface {
	// UpdateScreenResolution fills the only mutable click field.
	// Returns domain.ErrClickNotFound for unknown ids.
	UpdateScreenResolution(ctx context.Context, clickID, resolution string) error

	// Summary aggregates clicks of one entry; recent bounds the number of
	// raw clicks returned, zero for none
	Summary(ctx context.Context, entryID string, rng domain.StatsRange, recent int) (*domain.ClickSummary, error)
}

// RoleRepository stores subscription roles per user
type RoleRepository interface {
	RolesFor(ctx context.Context, userID string) ([]string, error)
	AssignRole(ctx context.Context, userID, role string) error
}

// Store bundles the repositories backed by one storage driver
type Store interface {
	EntryRepository
	ClickRepository
	RoleRepository
}
