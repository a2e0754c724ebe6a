package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shorturl/internal/domain"
	"shorturl/internal/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "Failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func sampleEntry(code string) *domain.ShortEntry {
	return &domain.ShortEntry{
		Code:    code,
		OwnerID: "owner-1",
		Destinations: []domain.Destination{
			{URL: "https://a.example", Weight: 1, UTMSource: domain.StringPtr("news")},
			{URL: "https://b.example", Weight: 0},
		},
		Metadata: []domain.MetadataVariant{
			{Title: "One"},
			{Title: "Two"},
		},
	}
}

func createEntry(t *testing.T, s repository.Store, code string) *domain.ShortEntry {
	t.Helper()
	e := sampleEntry(code)
	require.NoError(t, s.Create(context.Background(), e))
	return e
}

func TestStore_CreateAndFind(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()

	created := createEntry(t, s, "AbC123")
	assert.NotEmpty(t, created.ID)

	got, err := s.FindByCode(ctx, "AbC123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	require.Len(t, got.Destinations, 2)
	assert.Equal(t, "https://a.example", got.Destinations[0].URL)
	assert.Equal(t, 0, got.Destinations[0].Position)
	assert.Equal(t, "news", domain.Deref(got.Destinations[0].UTMSource))
	assert.Equal(t, 1, got.Destinations[1].Weight, "zero weight clamped to 1")
	require.Len(t, got.Metadata, 2)
	assert.Equal(t, "Two", got.Metadata[1].Title)

	lower, err := s.FindByCode(ctx, "abc123")
	require.NoError(t, err, "lookup ignores case")
	assert.Equal(t, created.ID, lower.ID)
	assert.Equal(t, "AbC123", lower.Code)
}

func TestStore_ExistsCodeIsCaseInsensitive(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	e := createEntry(t, s, "Promo")

	for _, code := range []string{"Promo", "PROMO", "promo"} {
		ok, err := s.ExistsCode(ctx, code)
		require.NoError(t, err)
		assert.True(t, ok, code)
	}

	require.NoError(t, s.SoftDelete(ctx, e.ID, time.Now()))
	ok, err := s.ExistsCode(ctx, "promo")
	require.NoError(t, err)
	assert.True(t, ok, "deleted codes stay reserved")

	ok, err = s.ExistsCode(ctx, "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_DuplicateCodeRejected(t *testing.T) {
	s := NewStore(setupTestDB(t))
	createEntry(t, s, "dup")

	err := s.Create(context.Background(), sampleEntry("DUP"))
	assert.Error(t, err)
}

func TestStore_CountActiveByOwner(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	createEntry(t, s, "a1")
	e := createEntry(t, s, "a2")

	n, err := s.CountActiveByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.SoftDelete(ctx, e.ID, time.Now()))
	n, err = s.CountActiveByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, s.SoftDelete(ctx, e.ID, time.Now()), domain.ErrInvalidLink)
}

func TestStore_RecordRedirectAdvancesModulo(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	e := createEntry(t, s, "rot")

	for i := 0; i < 5; i++ {
		click := &domain.ClickEvent{DestinationID: e.Destinations[0].ID, Timestamp: time.Now().UTC()}
		require.NoError(t, s.RecordRedirect(ctx, e.ID, 2, click))
		assert.NotEmpty(t, click.ID)
	}

	got, err := s.FindByCode(ctx, "rot")
	require.NoError(t, err)
	assert.Equal(t, 5%2, got.CurrentDestinationIndex)

	sum, err := s.Summary(ctx, e.ID, domain.StatsRange{}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum.TotalClicks)
}

func TestStore_RecordRedirectConcurrent(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	e := createEntry(t, s, "conc")

	const k = 23
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			click := &domain.ClickEvent{DestinationID: e.Destinations[1].ID, Timestamp: time.Now().UTC()}
			assert.NoError(t, s.RecordRedirect(ctx, e.ID, 3, click))
		}()
	}
	wg.Wait()

	got, err := s.FindByCode(ctx, "conc")
	require.NoError(t, err)
	assert.Equal(t, k%3, got.CurrentDestinationIndex)
}

func TestStore_RecordRedirectUnknownEntry(t *testing.T) {
	s := NewStore(setupTestDB(t))
	err := s.RecordRedirect(context.Background(), "missing", 2, &domain.ClickEvent{Timestamp: time.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidLink)
}

func TestStore_AdvanceOgIndex(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	e := createEntry(t, s, "og")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AdvanceOgIndex(ctx, e.ID, 2))
	}
	require.NoError(t, s.AdvanceOgIndex(ctx, e.ID, 0))

	got, err := s.FindByCode(ctx, "og")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentOgIndex)
	assert.Equal(t, 0, got.CurrentDestinationIndex)
}

func TestStore_ReplaceDestinationsAndMetadata(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	e := createEntry(t, s, "edit")

	require.NoError(t, s.ReplaceDestinations(ctx, e.ID, []domain.Destination{
		{URL: "https://c.example", Weight: 3},
	}))
	require.NoError(t, s.ReplaceMetadata(ctx, e.ID, nil))

	got, err := s.FindByCode(ctx, "edit")
	require.NoError(t, err)
	require.Len(t, got.Destinations, 1)
	assert.Equal(t, "https://c.example", got.Destinations[0].URL)
	assert.Equal(t, 3, got.Destinations[0].Weight)
	assert.Empty(t, got.Metadata)

	err = s.ReplaceDestinations(ctx, "missing", []domain.Destination{{URL: "https://x.example"}})
	assert.ErrorIs(t, err, domain.ErrInvalidLink)
}

func TestStore_RenameCode(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	e := createEntry(t, s, "old")
	createEntry(t, s, "taken")

	require.NoError(t, s.RenameCode(ctx, e.ID, "New"))
	_, err := s.FindByCode(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrInvalidLink)

	got, err := s.FindByCode(ctx, "New")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	assert.Error(t, s.RenameCode(ctx, e.ID, "TAKEN"))
	assert.ErrorIs(t, s.RenameCode(ctx, "missing", "whatever"), domain.ErrInvalidLink)
}

func TestStore_SummaryAndScreenResolution(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	e := createEntry(t, s, "stats")

	day1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)
	clicks := []*domain.ClickEvent{
		{DestinationID: e.Destinations[0].ID, Timestamp: day1},
		{DestinationID: e.Destinations[0].ID, Timestamp: day1.Add(time.Hour)},
		{DestinationID: e.Destinations[1].ID, Timestamp: day2, MetadataID: &e.Metadata[0].ID},
	}
	for _, c := range clicks {
		require.NoError(t, s.RecordRedirect(ctx, e.ID, 2, c))
	}

	require.NoError(t, s.UpdateScreenResolution(ctx, clicks[2].ID, "1920x1080"))
	assert.ErrorIs(t, s.UpdateScreenResolution(ctx, "nope", "1x1"), domain.ErrClickNotFound)

	sum, err := s.Summary(ctx, e.ID, domain.StatsRange{}, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.TotalClicks)
	assert.ElementsMatch(t, []domain.DestinationCount{
		{DestinationID: e.Destinations[0].ID, Clicks: 2},
		{DestinationID: e.Destinations[1].ID, Clicks: 1},
	}, sum.PerDestination)
	assert.Equal(t, []domain.MetadataCount{{MetadataID: e.Metadata[0].ID, Clicks: 1}}, sum.PerMetadata)
	assert.Equal(t, []domain.DailyCount{{Day: "2025-03-01", Clicks: 2}, {Day: "2025-03-02", Clicks: 1}}, sum.Daily)
	require.Len(t, sum.Recent, 3)
	assert.Equal(t, clicks[2].ID, sum.Recent[0].ID)
	assert.Equal(t, "1920x1080", domain.Deref(sum.Recent[0].ScreenResolution))

	from := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	sum, err = s.Summary(ctx, e.ID, domain.StatsRange{From: &from}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.TotalClicks)
	assert.Empty(t, sum.Recent)
}

func TestStore_Roles(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.AssignRole(ctx, "u1", "Free"))
	require.NoError(t, s.AssignRole(ctx, "u1", "Basic"))
	require.NoError(t, s.AssignRole(ctx, "u1", "Basic"))

	roles, err := s.RolesFor(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Free", "Basic"}, roles)

	roles, err = s.RolesFor(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, roles)
}
