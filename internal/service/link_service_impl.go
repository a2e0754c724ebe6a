package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"shorturl/internal/audit"
	"shorturl/internal/auth"
	"shorturl/internal/cache"
	"shorturl/internal/config"
	"shorturl/internal/domain"
	"shorturl/internal/entitlement"
	"shorturl/internal/repository"
	"shorturl/internal/shortener"
	"shorturl/pkg/logger"
	"shorturl/pkg/validator"
)

// recentClicks is how many raw clicks full-detail owners see in stats
const recentClicks = 50

var screenResolutionRegex = regexp.MustCompile(`^\d{2,5}x\d{2,5}$`)

// linkService implements the LinkService interface
type linkService struct {
	store        repository.Store
	cache        cache.EntryCache
	entitlements *entitlement.Resolver
	auditor      audit.Auditor
	cfg          *config.Config
	logger       *logger.Logger
	generator    *shortener.CodeGenerator
	slugs        *shortener.SlugValidator
	now          func() time.Time
}

// NewLinkService creates a new link service with dependencies injected
func NewLinkService(
	store repository.Store,
	entryCache cache.EntryCache,
	entitlements *entitlement.Resolver,
	auditor audit.Auditor,
	cfg *config.Config,
	logger *logger.Logger,
) LinkService {
	return &linkService{
		store:        store,
		cache:        entryCache,
		entitlements: entitlements,
		auditor:      auditor,
		cfg:          cfg,
		logger:       logger,
		generator:    shortener.NewCodeGenerator(cfg.ShortCodeLength),
		slugs:        shortener.NewSlugValidator(store.ExistsCode),
		now:          time.Now,
	}
}

// CreateLink validates the request against the owner's plan and stores the link
func (s *linkService) CreateLink(ctx context.Context, ownerID string, req *domain.CreateLinkRequest) (*domain.CreateLinkResponse, error) {
	if ownerID == "" {
		return nil, unauthorized()
	}

	limits, err := s.entitlements.ForUser(ctx, ownerID)
	if err != nil {
		s.logger.Errorw("Failed to resolve entitlements", "owner_id", ownerID, "error", err)
		return nil, domain.NewInternalError(err)
	}

	// Step 1: Enforce the plan quota
	count, err := s.store.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if count >= int64(limits.MaxShortURLs) {
		s.logger.Infow("Short link quota reached", "owner_id", ownerID, "tier", limits.Tier, "count", count)
		return nil, domain.NewAppError(domain.ErrQuotaExceeded,
			fmt.Sprintf("Your plan allows %d short links", limits.MaxShortURLs), http.StatusForbidden, false)
	}

	// Step 2: Destinations and metadata within plan limits
	destinations, err := s.buildDestinations(req.Destinations, limits)
	if err != nil {
		return nil, err
	}
	variants, err := buildMetadata(req.Metadata, limits)
	if err != nil {
		return nil, err
	}

	// Step 3: Password and expiration are plan features, dropped otherwise
	var passwordHash *string
	var expiresAt *time.Time
	if limits.PasswordAndExpirationAllowed {
		if req.Password != "" {
			hash, err := auth.HashPassword(req.Password)
			if err != nil {
				return nil, domain.NewInternalError(err)
			}
			passwordHash = &hash
		}
		if req.ExpiresAt != nil {
			if !req.ExpiresAt.After(s.now()) {
				return nil, domain.NewValidationError(domain.ErrInvalidInput, "Expiration must be in the future")
			}
			at := req.ExpiresAt.UTC()
			expiresAt = &at
		}
	}

	// Step 4: Custom slug or generated code
	code, downgraded, err := s.chooseCode(ctx, req.CustomSlug, limits)
	if err != nil {
		return nil, err
	}

	entry := &domain.ShortEntry{
		Code:         code,
		OwnerID:      ownerID,
		ExpiresAt:    expiresAt,
		PasswordHash: passwordHash,
		Destinations: destinations,
		Metadata:     variants,
	}

	// Step 5: Save to database
	if err := s.store.Create(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrSlugTaken) {
			return nil, slugTaken()
		}
		s.logger.Errorw("Failed to create link", "code", code, "error", err)
		return nil, err
	}

	s.auditor.Log(ctx, ownerID, audit.ActionCreate, audit.EntityShortLink,
		fmt.Sprintf("code=%s destinations=%d", entry.Code, len(entry.Destinations)))

	s.logger.Infow("Short link created",
		"code", entry.Code,
		"owner_id", ownerID,
		"tier", limits.Tier,
		"destinations", len(entry.Destinations),
		"slug_downgraded", downgraded,
	)

	return &domain.CreateLinkResponse{
		Code:           entry.Code,
		ShortURL:       s.ShortURL(entry.Code),
		Destinations:   entry.Destinations,
		CreatedAt:      entry.CreatedAt,
		ExpiresAt:      entry.ExpiresAt,
		SlugDowngraded: downgraded,
	}, nil
}

// chooseCode honours a custom slug only when the plan allows it
func (s *linkService) chooseCode(ctx context.Context, slug string, limits entitlement.Limits) (string, bool, error) {
	if slug != "" && limits.CustomSlugAllowed {
		if err := s.validateSlug(ctx, slug); err != nil {
			return "", false, err
		}
		return slug, false, nil
	}

	code, err := s.generator.Allocate(ctx, s.store.ExistsCode)
	if err != nil {
		s.logger.Errorw("Failed to generate short code", "error", err)
		return "", false, domain.NewInternalError(err)
	}
	return code, slug != "", nil
}

func (s *linkService) validateSlug(ctx context.Context, slug string) error {
	err := s.slugs.Validate(ctx, slug)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrSlugInvalid):
		return domain.NewValidationError(domain.ErrSlugInvalid, shortener.MsgSlugInvalid)
	case errors.Is(err, domain.ErrSlugTaken):
		return slugTaken()
	default:
		return domain.NewInternalError(err)
	}
}

// buildDestinations applies URL safety and plan rules. Plans with a single
// destination silently keep only the first one.
func (s *linkService) buildDestinations(inputs []domain.DestinationInput, limits entitlement.Limits) ([]domain.Destination, error) {
	if len(inputs) == 0 {
		return nil, domain.NewValidationError(domain.ErrNoDestinations, "At least one destination is required")
	}

	maxDest := limits.MaxDestinations
	if maxDest > domain.MaxDestinationsPerLink {
		maxDest = domain.MaxDestinationsPerLink
	}
	if maxDest <= 1 {
		inputs = inputs[:1]
	} else if len(inputs) > maxDest {
		return nil, domain.NewValidationError(domain.ErrTooManyDestinations,
			fmt.Sprintf("Your plan allows at most %d destinations", maxDest))
	}

	out := make([]domain.Destination, 0, len(inputs))
	for i, in := range inputs {
		if err := validator.ValidateDestinationURL(in.URL, s.cfg.AllowedRedirectDomains); err != nil {
			return nil, domain.NewValidationError(domain.ErrInvalidURL,
				fmt.Sprintf("Destination %d: %s", i+1, err.Error()))
		}

		d := domain.Destination{
			Position: i,
			URL:      in.URL,
			Weight:   in.Weight,
		}
		if d.Weight < 1 {
			d.Weight = 1
		}
		if limits.UTMAllowed {
			d.UTMSource = domain.StringPtr(in.UTMSource)
			d.UTMMedium = domain.StringPtr(in.UTMMedium)
			d.UTMCampaign = domain.StringPtr(in.UTMCampaign)
		}
		out = append(out, d)
	}
	return out, nil
}

// buildMetadata drops variants for plans without them and rejects lists
// above the plan cap
func buildMetadata(inputs []domain.MetadataInput, limits entitlement.Limits) ([]domain.MetadataVariant, error) {
	maxVariants := limits.MaxMetadataVariants
	if maxVariants > domain.MaxVariantsPerLink {
		maxVariants = domain.MaxVariantsPerLink
	}
	if maxVariants <= 0 {
		return nil, nil
	}
	if len(inputs) > maxVariants {
		return nil, domain.NewValidationError(domain.ErrTooManyVariants,
			fmt.Sprintf("Your plan allows at most %d metadata variants", maxVariants))
	}

	out := make([]domain.MetadataVariant, 0, len(inputs))
	for i, in := range inputs {
		if in.Image != "" {
			if err := validator.ValidateURL(in.Image); err != nil {
				return nil, domain.NewValidationError(domain.ErrInvalidURL,
					fmt.Sprintf("Metadata %d: %s", i+1, err.Error()))
			}
		}
		out = append(out, domain.MetadataVariant{
			Position:    i,
			Title:       in.Title,
			Description: in.Description,
			Image:       domain.StringPtr(in.Image),
		})
	}
	return out, nil
}

// CheckSlug reports slug availability
func (s *linkService) CheckSlug(ctx context.Context, slug string) (*domain.SlugAvailability, error) {
	res, err := s.slugs.Check(ctx, slug)
	if err != nil {
		s.logger.Errorw("Failed to check slug", "slug", slug, "error", err)
		return nil, domain.NewInternalError(err)
	}
	return res, nil
}

// GetLink returns the owner's view of a link
func (s *linkService) GetLink(ctx context.Context, ownerID, code string) (*domain.ShortEntry, error) {
	return s.owned(ctx, ownerID, code)
}

// ReplaceDestinations swaps the destination list and drops the cached snapshot
func (s *linkService) ReplaceDestinations(ctx context.Context, ownerID, code string, req *domain.ReplaceDestinationsRequest) (*domain.ShortEntry, error) {
	entry, limits, err := s.ownedWithLimits(ctx, ownerID, code)
	if err != nil {
		return nil, err
	}

	destinations, err := s.buildDestinations(req.Destinations, limits)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceDestinations(ctx, entry.ID, destinations); err != nil {
		s.logger.Errorw("Failed to replace destinations", "code", code, "error", err)
		return nil, err
	}
	s.invalidate(ctx, entry.Code)

	s.auditor.Log(ctx, ownerID, audit.ActionReplaceTargets, audit.EntityShortLink,
		fmt.Sprintf("code=%s destinations=%d", entry.Code, len(destinations)))

	return s.store.FindByCode(ctx, entry.Code)
}

// ReplaceMetadata swaps the metadata variants and drops the cached snapshot
func (s *linkService) ReplaceMetadata(ctx context.Context, ownerID, code string, req *domain.ReplaceMetadataRequest) (*domain.ShortEntry, error) {
	entry, limits, err := s.ownedWithLimits(ctx, ownerID, code)
	if err != nil {
		return nil, err
	}

	variants, err := buildMetadata(req.Metadata, limits)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceMetadata(ctx, entry.ID, variants); err != nil {
		s.logger.Errorw("Failed to replace metadata", "code", code, "error", err)
		return nil, err
	}
	s.invalidate(ctx, entry.Code)

	s.auditor.Log(ctx, ownerID, audit.ActionReplaceMeta, audit.EntityShortLink,
		fmt.Sprintf("code=%s variants=%d", entry.Code, len(variants)))

	return s.store.FindByCode(ctx, entry.Code)
}

// RenameCode moves a link to a new custom slug
func (s *linkService) RenameCode(ctx context.Context, ownerID, code, newCode string) (*domain.ShortEntry, error) {
	entry, limits, err := s.ownedWithLimits(ctx, ownerID, code)
	if err != nil {
		return nil, err
	}
	if !limits.CustomSlugAllowed {
		return nil, domain.NewAppError(domain.ErrForbidden, "Your plan does not allow custom slugs", http.StatusForbidden, false)
	}
	if newCode == entry.Code {
		return entry, nil
	}

	if strings.EqualFold(newCode, entry.Code) {
		// a case-only change keeps the entry's own key
		if !validator.ValidateSlug(newCode) || shortener.IsReserved(newCode) {
			return nil, domain.NewValidationError(domain.ErrSlugInvalid, shortener.MsgSlugInvalid)
		}
	} else if err := s.validateSlug(ctx, newCode); err != nil {
		return nil, err
	}
	if err := s.store.RenameCode(ctx, entry.ID, newCode); err != nil {
		if errors.Is(err, domain.ErrSlugTaken) {
			return nil, slugTaken()
		}
		s.logger.Errorw("Failed to rename link", "code", code, "new_code", newCode, "error", err)
		return nil, err
	}
	s.invalidate(ctx, entry.Code)
	s.invalidate(ctx, newCode)

	s.auditor.Log(ctx, ownerID, audit.ActionRename, audit.EntityShortLink,
		fmt.Sprintf("code=%s new_code=%s", entry.Code, newCode))

	return s.store.FindByCode(ctx, newCode)
}

// DeleteLink soft-deletes a link; its code stays reserved
func (s *linkService) DeleteLink(ctx context.Context, ownerID, code string) error {
	entry, err := s.owned(ctx, ownerID, code)
	if err != nil {
		return err
	}

	if err := s.store.SoftDelete(ctx, entry.ID, s.now().UTC()); err != nil {
		s.logger.Errorw("Failed to delete link", "code", code, "error", err)
		return err
	}
	s.invalidate(ctx, entry.Code)

	s.auditor.Log(ctx, ownerID, audit.ActionDelete, audit.EntityShortLink, "code="+entry.Code)
	s.logger.Infow("Short link deleted", "code", entry.Code, "owner_id", ownerID)
	return nil
}

// GetStats returns click aggregates. Raw recent clicks are included only
// for plans with full analytics.
func (s *linkService) GetStats(ctx context.Context, ownerID, code string, rng domain.StatsRange) (*domain.ClickSummary, error) {
	entry, limits, err := s.ownedWithLimits(ctx, ownerID, code)
	if err != nil {
		return nil, err
	}

	recent := 0
	if limits.FullAnalytics() {
		recent = recentClicks
	}

	summary, err := s.store.Summary(ctx, entry.ID, rng, recent)
	if err != nil {
		s.logger.Errorw("Failed to load stats", "code", code, "error", err)
		return nil, err
	}
	summary.Code = entry.Code
	return summary, nil
}

// UpdateScreenResolution records the screen size reported for a click
func (s *linkService) UpdateScreenResolution(ctx context.Context, req *domain.ScreenResolutionRequest) error {
	if !screenResolutionRegex.MatchString(req.ScreenResolution) {
		return domain.NewValidationError(domain.ErrInvalidInput, "Screen resolution must look like 1920x1080")
	}

	err := s.store.UpdateScreenResolution(ctx, req.ClickID, req.ScreenResolution)
	if errors.Is(err, domain.ErrClickNotFound) {
		return domain.NewAppError(domain.ErrClickNotFound, "Click not found", http.StatusNotFound, false)
	}
	return err
}

// ShortURL returns the public URL of a code
func (s *linkService) ShortURL(code string) string {
	return fmt.Sprintf("%s/%s", s.cfg.BaseURL, code)
}

// owned loads a non-deleted link and checks that ownerID owns it
func (s *linkService) owned(ctx context.Context, ownerID, code string) (*domain.ShortEntry, error) {
	if ownerID == "" {
		return nil, unauthorized()
	}

	entry, err := s.store.FindByCode(ctx, code)
	if errors.Is(err, domain.ErrInvalidLink) {
		return nil, domain.NewNotFoundError("Short link")
	}
	if err != nil {
		return nil, err
	}
	if entry.IsDeleted {
		return nil, domain.NewNotFoundError("Short link")
	}
	if entry.OwnerID != ownerID {
		s.logger.Warnw("Link access denied", "code", code, "user_id", ownerID)
		return nil, domain.NewAppError(domain.ErrForbidden, "You do not own this link", http.StatusForbidden, false)
	}
	return entry, nil
}

func (s *linkService) ownedWithLimits(ctx context.Context, ownerID, code string) (*domain.ShortEntry, entitlement.Limits, error) {
	entry, err := s.owned(ctx, ownerID, code)
	if err != nil {
		return nil, entitlement.Limits{}, err
	}
	limits, err := s.entitlements.ForUser(ctx, ownerID)
	if err != nil {
		return nil, entitlement.Limits{}, domain.NewInternalError(err)
	}
	return entry, limits, nil
}

func (s *linkService) invalidate(ctx context.Context, code string) {
	if err := s.cache.Invalidate(ctx, code); err != nil {
		s.logger.Warnw("Failed to invalidate cache", "code", code, "error", err)
	}
}

func unauthorized() *domain.AppError {
	return domain.NewAppError(domain.ErrUnauthorized, "Authentication required", http.StatusUnauthorized, false)
}

func slugTaken() *domain.AppError {
	return domain.NewAppError(domain.ErrSlugTaken, shortener.MsgSlugTaken, http.StatusConflict, false)
}
