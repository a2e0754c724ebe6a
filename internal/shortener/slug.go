package shortener

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shorturl/internal/domain"
	"shorturl/pkg/validator"
)

// Messages returned by the slug availability check
const (
	MsgSlugInvalid   = "Invalid slug format."
	MsgSlugTaken     = "Slug is already in use."
	MsgSlugAvailable = "Slug is available."
)

// reservedSlugs collide with fixed routes and are never issued as codes
var reservedSlugs = map[string]struct{}{
	"health":   {},
	"invalid":  {},
	"api":      {},
	"qr":       {},
	"preview":  {},
	"password": {},
}

// IsReserved reports whether slug names a fixed route, ignoring case
func IsReserved(slug string) bool {
	_, ok := reservedSlugs[strings.ToLower(slug)]
	return ok
}

// SlugValidator checks custom slug format and case-insensitive uniqueness
type SlugValidator struct {
	exists ExistsFunc
}

// NewSlugValidator creates a validator backed by the store uniqueness check
func NewSlugValidator(exists ExistsFunc) *SlugValidator {
	return &SlugValidator{exists: exists}
}

// Validate returns nil, domain.ErrSlugInvalid or domain.ErrSlugTaken.
// Any other error comes from the store.
func (v *SlugValidator) Validate(ctx context.Context, slug string) error {
	if !validator.ValidateSlug(slug) || IsReserved(slug) {
		return domain.ErrSlugInvalid
	}

	taken, err := v.exists(ctx, slug)
	if err != nil {
		return fmt.Errorf("check slug uniqueness: %w", err)
	}
	if taken {
		return domain.ErrSlugTaken
	}
	return nil
}

// Check reports availability with a user-facing message
func (v *SlugValidator) Check(ctx context.Context, slug string) (*domain.SlugAvailability, error) {
	err := v.Validate(ctx, slug)
	switch {
	case err == nil:
		return &domain.SlugAvailability{IsAvailable: true, Message: MsgSlugAvailable}, nil
	case errors.Is(err, domain.ErrSlugInvalid):
		return &domain.SlugAvailability{Message: MsgSlugInvalid}, nil
	case errors.Is(err, domain.ErrSlugTaken):
		return &domain.SlugAvailability{Message: MsgSlugTaken}, nil
	default:
		return nil, err
	}
}
