package postgres

import (
	"context"

	"gorm.io/gorm"

	"shorturl/internal/domain"
)

// UpdateScreenResolution fills the screen resolution of a recorded click
func (r *store) UpdateScreenResolution(ctx context.Context, clickID, resolution string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.ClickEvent{}).
		Where("id = ?", clickID).
		Update("screen_resolution", resolution)

	if result.Error != nil {
		return domain.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrClickNotFound
	}
	return nil
}

// Summary aggregates the clicks of one entry inside rng
func (r *store) Summary(ctx context.Context, entryID string, rng domain.StatsRange, recent int) (*domain.ClickSummary, error) {
	summary := &domain.ClickSummary{
		PerDestination: []domain.DestinationCount{},
		PerMetadata:    []domain.MetadataCount{},
		Daily:          []domain.DailyCount{},
	}

	db := r.db.WithContext(ctx)
	scoped := func() *gorm.DB {
		q := db.Model(&domain.ClickEvent{}).Where("short_entry_id = ?", entryID)
		if rng.From != nil {
			q = q.Where("clicked_at >= ?", rng.From.UTC())
		}
		if rng.To != nil {
			q = q.Where("clicked_at <= ?", rng.To.UTC())
		}
		return q
	}

	if err := scoped().Count(&summary.TotalClicks).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}

	if err := scoped().
		Select("destination_id, count(*) AS clicks").
		Group("destination_id").
		Order("destination_id").
		Scan(&summary.PerDestination).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}

	if err := scoped().
		Select("metadata_id, count(*) AS clicks").
		Where("metadata_id IS NOT NULL").
		Group("metadata_id").
		Order("metadata_id").
		Scan(&summary.PerMetadata).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}

	day := r.dayExpr()
	if err := scoped().
		Select(day + " AS day, count(*) AS clicks").
		Group(day).
		Order("day").
		Scan(&summary.Daily).Error; err != nil {
		return nil, domain.NewInternalError(err)
	}

	if recent > 0 {
		if err := scoped().
			Order("clicked_at DESC").
			Limit(recent).
			Find(&summary.Recent).Error; err != nil {
			return nil, domain.NewInternalError(err)
		}
	}

	return summary, nil
}

// dayExpr formats clicked_at as YYYY-MM-DD in the connected dialect
func (r *store) dayExpr() string {
	if r.db.Dialector.Name() == "sqlite" {
		return "strftime('%Y-%m-%d', clicked_at)"
	}
	return "to_char(clicked_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
}

// RolesFor lists the roles assigned to a user
func (r *store) RolesFor(ctx context.Context, userID string) ([]string, error) {
	var roles []string

	result := r.db.WithContext(ctx).
		Model(&domain.UserRole{}).
		Where("user_id = ?", userID).
		Pluck("role", &roles)

	if result.Error != nil {
		return nil, domain.NewInternalError(result.Error)
	}
	return roles, nil
}

// AssignRole grants a role, ignoring duplicates
func (r *store) AssignRole(ctx context.Context, userID, role string) error {
	result := r.db.WithContext(ctx).
		Where(domain.UserRole{UserID: userID, Role: role}).
		FirstOrCreate(&domain.UserRole{UserID: userID, Role: role})

	if result.Error != nil {
		return domain.NewInternalError(result.Error)
	}
	return nil
}
