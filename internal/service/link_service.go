package service

import (
	"context"

	"shorturl/internal/domain"
)

// LinkService defines the business logic interface for short link management
// This layer orchestrates between repositories, cache, entitlements and audit
type LinkService interface {
	// CreateLink creates a short link owned by ownerID, applying plan limits
	CreateLink(ctx context.Context, ownerID string, req *domain.CreateLinkRequest) (*domain.CreateLinkResponse, error)

	// CheckSlug reports whether a custom slug could be used
	CheckSlug(ctx context.Context, slug string) (*domain.SlugAvailability, error)

	// GetLink returns the owner's view of a link
	GetLink(ctx context.Context, ownerID, code string) (*domain.ShortEntry, error)

	// ReplaceDestinations swaps the full destination list
	ReplaceDestinations(ctx context.Context, ownerID, code string, req *domain.ReplaceDestinationsRequest) (*domain.ShortEntry, error)

	// ReplaceMetadata swaps the full metadata variant list
	ReplaceMetadata(ctx context.Context, ownerID, code string, req *domain.ReplaceMetadataRequest) (*domain.ShortEntry, error)

	// RenameCode changes the short code of a link
	RenameCode(ctx context.Context, ownerID, code, newCode string) (*domain.ShortEntry, error)

	// DeleteLink soft-deletes a link
	DeleteLink(ctx context.Context, ownerID, code string) error

	// GetStats returns click aggregates for the owner
	GetStats(ctx context.Context, ownerID, code string, rng domain.StatsRange) (*domain.ClickSummary, error)

	// UpdateScreenResolution fills in the screen size reported after a redirect
	UpdateScreenResolution(ctx context.Context, req *domain.ScreenResolutionRequest) error

	// ShortURL returns the public URL of a code
	ShortURL(code string) string
}
