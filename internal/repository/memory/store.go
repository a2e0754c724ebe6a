// Package memory provides a process-local repository.Store used for
// development and tests. Rotation indices live in a rotation.Arena and are
// advanced with atomic compare-and-swap.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shorturl/internal/domain"
	"shorturl/internal/repository"
	"shorturl/internal/rotation"
)

// Store implements repository.Store in memory
type Store struct {
	arena *rotation.Arena

	mu      sync.RWMutex
	entries map[string]*domain.ShortEntry // by id
	codes   map[string]string             // lowercased code -> id
	roles   map[string]map[string]struct{}

	clickMu sync.RWMutex
	clicks  map[string]*domain.ClickEvent
	byEntry map[string][]string // entry id -> click ids in insertion order
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		arena:   rotation.NewArena(),
		entries: make(map[string]*domain.ShortEntry),
		codes:   make(map[string]string),
		roles:   make(map[string]map[string]struct{}),
		clicks:  make(map[string]*domain.ClickEvent),
		byEntry: make(map[string][]string),
	}
}

// Create implements repository.EntryRepository
func (s *Store) Create(ctx context.Context, entry *domain.ShortEntry) error {
	key := strings.ToLower(entry.Code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[key]; taken {
		return domain.ErrSlugTaken
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	entry.CodeKey = key
	prepareDestinations(entry.ID, entry.Destinations)
	prepareMetadata(entry.ID, entry.Metadata)

	s.entries[entry.ID] = entry.Clone()
	s.codes[key] = entry.ID

	st := s.arena.Get(entry.ID)
	st.Destination.Store(entry.CurrentDestinationIndex)
	st.Og.Store(entry.CurrentOgIndex)
	return nil
}

// FindByCode implements repository.EntryRepository
func (s *Store) FindByCode(ctx context.Context, code string) (*domain.ShortEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codes[strings.ToLower(code)]
	if !ok {
		return nil, domain.ErrInvalidLink
	}
	out := s.entries[id].Clone()
	st := s.arena.Get(id)
	out.CurrentDestinationIndex = st.Destination.Load()
	out.CurrentOgIndex = st.Og.Load()
	return out, nil
}

// ExistsCode implements repository.EntryRepository
func (s *Store) ExistsCode(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[strings.ToLower(code)]
	return ok, nil
}

// CountActiveByOwner implements repository.EntryRepository
func (s *Store) CountActiveByOwner(ctx context.Context, ownerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.entries {
		if e.OwnerID == ownerID && !e.IsDeleted {
			n++
		}
	}
	return n, nil
}

// ReplaceDestinations implements repository.EntryRepository
func (s *Store) ReplaceDestinations(ctx context.Context, entryID string, destinations []domain.Destination) error {
	return s.mutate(entryID, func(e *domain.ShortEntry) error {
		prepareDestinations(entryID, destinations)
		e.Destinations = append([]domain.Destination(nil), destinations...)
		return nil
	})
}

// ReplaceMetadata implements repository.EntryRepository
func (s *Store) ReplaceMetadata(ctx context.Context, entryID string, variants []domain.MetadataVariant) error {
	return s.mutate(entryID, func(e *domain.ShortEntry) error {
		prepareMetadata(entryID, variants)
		e.Metadata = append([]domain.MetadataVariant(nil), variants...)
		return nil
	})
}

// RenameCode implements repository.EntryRepository
func (s *Store) RenameCode(ctx context.Context, entryID, code string) error {
	key := strings.ToLower(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return domain.ErrInvalidLink
	}
	if owner, taken := s.codes[key]; taken && owner != entryID {
		return domain.ErrSlugTaken
	}

	delete(s.codes, e.CodeKey)
	e.Code = code
	e.CodeKey = key
	e.UpdatedAt = time.Now().UTC()
	s.codes[key] = entryID
	return nil
}

// SoftDelete implements repository.EntryRepository
func (s *Store) SoftDelete(ctx context.Context, entryID string, at time.Time) error {
	return s.mutate(entryID, func(e *domain.ShortEntry) error {
		if e.IsDeleted {
			return domain.ErrInvalidLink
		}
		e.IsDeleted = true
		e.DeletedAt = &at
		return nil
	})
}

func (s *Store) mutate(entryID string, fn func(e *domain.ShortEntry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return domain.ErrInvalidLink
	}
	if err := fn(e); err != nil {
		return err
	}
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// AdvanceOgIndex implements repository.EntryRepository
func (s *Store) AdvanceOgIndex(ctx context.Context, entryID string, n int) error {
	if !s.has(entryID) {
		return domain.ErrInvalidLink
	}
	s.arena.Get(entryID).Og.Advance(n)
	return nil
}

// RecordRedirect implements repository.EntryRepository
func (s *Store) RecordRedirect(ctx context.Context, entryID string, n int, click *domain.ClickEvent) error {
	if !s.has(entryID) {
		return domain.ErrInvalidLink
	}
	if click.ID == "" {
		click.ID = uuid.NewString()
	}
	click.ShortEntryID = entryID

	stored := *click
	s.clickMu.Lock()
	s.arena.Get(entryID).Destination.Advance(n)
	s.clicks[stored.ID] = &stored
	s.byEntry[entryID] = append(s.byEntry[entryID], stored.ID)
	s.clickMu.Unlock()
	return nil
}

func (s *Store) has(entryID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[entryID]
	return ok
}

// UpdateScreenResolution implements repository.ClickRepository
func (s *Store) UpdateScreenResolution(ctx context.Context, clickID, resolution string) error {
	s.clickMu.Lock()
	defer s.clickMu.Unlock()

	c, ok := s.clicks[clickID]
	if !ok {
		return domain.ErrClickNotFound
	}
	c.ScreenResolution = &resolution
	return nil
}

// Summary implements repository.ClickRepository
func (s *Store) Summary(ctx context.Context, entryID string, rng domain.StatsRange, recent int) (*domain.ClickSummary, error) {
	s.clickMu.RLock()
	defer s.clickMu.RUnlock()

	perDest := map[string]int64{}
	perMeta := map[string]int64{}
	perDay := map[string]int64{}
	var matched []domain.ClickEvent

	for _, id := range s.byEntry[entryID] {
		c := s.clicks[id]
		if !rng.Contains(c.Timestamp) {
			continue
		}
		matched = append(matched, *c)
		perDest[c.DestinationID]++
		if c.MetadataID != nil {
			perMeta[*c.MetadataID]++
		}
		perDay[c.Timestamp.UTC().Format("2006-01-02")]++
	}

	summary := &domain.ClickSummary{
		TotalClicks:    int64(len(matched)),
		PerDestination: []domain.DestinationCount{},
		PerMetadata:    []domain.MetadataCount{},
		Daily:          []domain.DailyCount{},
	}
	for _, k := range sortedKeys(perDest) {
		summary.PerDestination = append(summary.PerDestination, domain.DestinationCount{DestinationID: k, Clicks: perDest[k]})
	}
	for _, k := range sortedKeys(perMeta) {
		summary.PerMetadata = append(summary.PerMetadata, domain.MetadataCount{MetadataID: k, Clicks: perMeta[k]})
	}
	for _, k := range sortedKeys(perDay) {
		summary.Daily = append(summary.Daily, domain.DailyCount{Day: k, Clicks: perDay[k]})
	}

	if recent > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		})
		if len(matched) > recent {
			matched = matched[:recent]
		}
		summary.Recent = matched
	}

	return summary, nil
}

// RolesFor implements repository.RoleRepository
func (s *Store) RolesFor(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := make([]string, 0, len(s.roles[userID]))
	for r := range s.roles[userID] {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles, nil
}

// AssignRole implements repository.RoleRepository
func (s *Store) AssignRole(ctx context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roles[userID] == nil {
		s.roles[userID] = make(map[string]struct{})
	}
	s.roles[userID][role] = struct{}{}
	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
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
