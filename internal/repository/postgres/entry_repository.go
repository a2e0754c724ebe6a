package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"shorturl/internal/domain"
	"shorturl/internal/repository"
)

// store implements repository.Store with GORM (PostgreSQL in production)
type store struct {
	db *gorm.DB
}

// NewStore creates a GORM-backed store
func NewStore(db *gorm.DB) repository.Store {
	return &store{db: db}
}

// Migrate creates or updates the tables used by the store
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.ShortEntry{},
		&domain.Destination{},
		&domain.MetadataVariant{},
		&domain.ClickEvent{},
		&domain.UserRole{},
	)
}

// Create inserts the entry with its associations in one statement batch
func (r *store) Create(ctx context.Context, entry *domain.ShortEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CodeKey = strings.ToLower(entry.Code)
	prepareDestinations(entry.ID, entry.Destinations)
	prepareMetadata(entry.ID, entry.Metadata)

	result := r.db.WithContext(ctx).Create(entry)
	if result.Error != nil {
		// Check for unique constraint violation (duplicate code)
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrSlugTaken
		}
		return domain.NewInternalError(result.Error)
	}
	return nil
}

// FindByCode retrieves an entry by code, ignoring case, with ordered associations
func (r *store) FindByCode(ctx context.Context, code string) (*domain.ShortEntry, error) {
	var entry domain.ShortEntry

	result := r.db.WithContext(ctx).
		Preload("Destinations", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Metadata", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Where("code_key = ?", strings.ToLower(code)).
		First(&entry)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidLink
		}
		return nil, domain.NewInternalError(result.Error)
	}

	return &entry, nil
}

// ExistsCode checks the lowercased code index, deleted entries included
func (r *store) ExistsCode(ctx context.Context, code string) (bool, error) {
	var count int64

	result := r.db.WithContext(ctx).
		Model(&domain.ShortEntry{}).
		Where("code_key = ?", strings.ToLower(code)).
		Count(&count)

	if result.Error != nil {
		return false, domain.NewInternalError(result.Error)
	}

	return count > 0, nil
}

// CountActiveByOwner counts entries that are not soft-deleted
func (r *store) CountActiveByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64

	result := r.db.WithContext(ctx).
		Model(&domain.ShortEntry{}).
		Where("owner_id = ? AND is_deleted = ?", ownerID, false).
		Count(&count)

	if result.Error != nil {
		return 0, domain.NewInternalError(result.Error)
	}

	return count, nil
}

// ReplaceDestinations deletes and reinserts the destination rows in a transaction
func (r *store) ReplaceDestinations(ctx context.Context, entryID string, destinations []domain.Destination) error {
	prepareDestinations(entryID, destinations)

	return r.inTx(ctx, entryID, func(tx *gorm.DB) error {
		if err := tx.Where("entry_id = ?", entryID).Delete(&domain.Destination{}).Error; err != nil {
			return err
		}
		if len(destinations) == 0 {
			return nil
		}
		return tx.Create(&destinations).Error
	})
}

// ReplaceMetadata deletes and reinserts the metadata rows in a transaction
func (r *store) ReplaceMetadata(ctx context.Context, entryID string, variants []domain.MetadataVariant) error {
	prepareMetadata(entryID, variants)

	return r.inTx(ctx, entryID, func(tx *gorm.DB) error {
		if err := tx.Where("entry_id = ?", entryID).Delete(&domain.MetadataVariant{}).Error; err != nil {
			return err
		}
		if len(variants) == 0 {
			return nil
		}
		return tx.Create(&variants).Error
	})
}

// inTx touches the entry row and runs fn in the same transaction
func (r *store) inTx(ctx context.Context, entryID string, fn func(tx *gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.ShortEntry{}).
			Where("id = ?", entryID).
			Update("updated_at", time.Now().UTC())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrInvalidLink
		}
		return fn(tx)
	})
	return translate(err)
}

// RenameCode updates the code and its case-insensitive key
func (r *store) RenameCode(ctx context.Context, entryID, code string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.ShortEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"code":     code,
			"code_key": strings.ToLower(code),
		})

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrSlugTaken
		}
		return domain.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvalidLink
	}
	return nil
}

// SoftDelete sets is_deleted so the entry never resolves again.
// Rows are kept for analytics.
func (r *store) SoftDelete(ctx context.Context, entryID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.ShortEntry{}).
		Where("id = ? AND is_deleted = ?", entryID, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": at,
		})

	if result.Error != nil {
		return domain.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvalidLink
	}
	return nil
}

// AdvanceOgIndex uses a single UPDATE so concurrent crawlers never lose an advance
func (r *store) AdvanceOgIndex(ctx context.Context, entryID string, n int) error {
	if n <= 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&domain.ShortEntry{}).
		Where("id = ?", entryID).
		UpdateColumn("current_og_index", gorm.Expr("(current_og_index + 1) % ?", n))

	if result.Error != nil {
		return domain.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvalidLink
	}
	return nil
}

// RecordRedirect advances the destination index and inserts the click in one transaction.
// The increment is done in SQL to avoid a SELECT-then-UPDATE race.
func (r *store) RecordRedirect(ctx context.Context, entryID string, n int, click *domain.ClickEvent) error {
	if click.ID == "" {
		click.ID = uuid.NewString()
	}
	click.ShortEntryID = entryID

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if n > 0 {
			result := tx.Model(&domain.ShortEntry{}).
				Where("id = ?", entryID).
				UpdateColumn("current_destination_index", gorm.Expr("(current_destination_index + 1) % ?", n))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return domain.ErrInvalidLink
			}
		}
		return tx.Create(click).Error
	})
	return translate(err)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrInvalidLink) {
		return domain.ErrInvalidLink
	}
	return domain.NewInternalError(err)
}

func prepareDestinations(entryID string, destinations []domain.Destination) {
	for i := range destinations {
		if destinations[i].ID == "" {
			destinations[i].ID = uuid.NewString()
		}
		destinations[i].EntryID = entryID
		destinations[i].Position = i
		destinations[i].Weight = destinations[i].EffectiveWeight()
	}
}

func prepareMetadata(entryID string, variants []domain.MetadataVariant) {
	for i := range variants {
		if variants[i].ID == "" {
			variants[i].ID = uuid.NewString()
		}
		variants[i].EntryID = entryID
		variants[i].Position = i
	}
}
