package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shorturl/internal/auth"
	"shorturl/internal/cache"
	"shorturl/internal/config"
	"shorturl/internal/domain"
	"shorturl/internal/entitlement"
	"shorturl/internal/repository"
	"shorturl/internal/repository/memory"
	"shorturl/internal/service"
	"shorturl/pkg/logger"
)

const (
	freeOwner  = "owner-free"
	basicOwner = "owner-basic"
)

// MockAuditor is a mock implementation of audit.Auditor
type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) Log(ctx context.Context, userID, action, entityType, details string) {
	m.Called(ctx, userID, action, entityType, details)
}

// MockStore overrides selected repository methods of an in-memory store
type MockStore struct {
	*memory.Store
	mock.Mock

	failFind   bool
	failRecord bool
}

func (m *MockStore) FindByCode(ctx context.Context, code string) (*domain.ShortEntry, error) {
	if m.failFind {
		args := m.Called(ctx, code)
		if args.Get(0) == nil {
			return nil, args.Error(1)
		}
		return args.Get(0).(*domain.ShortEntry), args.Error(1)
	}
	return m.Store.FindByCode(ctx, code)
}

func (m *MockStore) RecordRedirect(ctx context.Context, entryID string, n int, click *domain.ClickEvent) error {
	if m.failRecord {
		args := m.Called(ctx, entryID, n, click)
		return args.Error(0)
	}
	return m.Store.RecordRedirect(ctx, entryID, n, click)
}

// slowStore holds click writes until released
type slowStore struct {
	*memory.Store
	release chan struct{}
	once    sync.Once
}

func (s *slowStore) RecordRedirect(ctx context.Context, entryID string, n int, click *domain.ClickEvent) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Store.RecordRedirect(ctx, entryID, n, click)
}

func (s *slowStore) Release() {
	s.once.Do(func() { close(s.release) })
}

// recordingNotifier captures live notifications
type recordingNotifier struct {
	mu        sync.Mutex
	summaries []*domain.ClickSummary
}

func (n *recordingNotifier) Notify(_ context.Context, code string, summary *domain.ClickSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return nil
}

// Latest returns the summary with the highest click count seen so far.
// Notifications from concurrent writes may arrive out of order.
func (n *recordingNotifier) Latest() *domain.ClickSummary {
	n.mu.Lock()
	defer n.mu.Unlock()
	var latest *domain.ClickSummary
	for _, s := range n.summaries {
		if latest == nil || s.TotalClicks > latest.TotalClicks {
			latest = s
		}
	}
	return latest
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:                "https://sho.rt",
		ShortCodeLength:        6,
		RequireTrackingConsent: true,
		ClickWaitBudget:        2 * time.Second,
		ClickWriteTimeout:      5 * time.Second,
	}
}

func seedRoles(t *testing.T, store repository.RoleRepository) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.AssignRole(ctx, freeOwner, "Free"))
	require.NoError(t, store.AssignRole(ctx, basicOwner, "Basic"))
}

type fixture struct {
	store    repository.Store
	mem      *memory.Store
	cache    *cache.MemoryCache
	resolver *service.Resolver
	links    service.LinkService
	auditor  *MockAuditor
	notifier *recordingNotifier
	cfg      *config.Config
}

// newFixture wires the engine and link service on an in-memory store.
// wrap optionally decorates the store.
func newFixture(t *testing.T, wrap func(*memory.Store) repository.Store) *fixture {
	t.Helper()

	mem := memory.NewStore()
	seedRoles(t, mem)

	var store repository.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}

	cfg := testConfig()
	log := logger.NewNop()
	entryCache := cache.NewMemoryCache(cache.DefaultTTL)
	entitlements := entitlement.NewResolver(entitlement.DefaultPolicy(), store)

	auditor := new(MockAuditor)
	auditor.On("Log", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()

	notifier := &recordingNotifier{}
	resolver := service.NewResolver(store, entryCache, entitlements, nil, notifier, cfg, log)
	t.Cleanup(resolver.Wait)

	return &fixture{
		store:    store,
		mem:      mem,
		cache:    entryCache,
		resolver: resolver,
		links:    service.NewLinkService(store, entryCache, entitlements, auditor, cfg, log),
		auditor:  auditor,
		notifier: notifier,
		cfg:      cfg,
	}
}

// seed stores an entry directly, bypassing plan rules
func (f *fixture) seed(t *testing.T, code, owner string, dests []domain.Destination, meta []domain.MetadataVariant) *domain.ShortEntry {
	t.Helper()
	entry := &domain.ShortEntry{
		Code:         code,
		OwnerID:      owner,
		Destinations: dests,
		Metadata:     meta,
	}
	require.NoError(t, f.mem.Create(context.Background(), entry))
	return entry
}

func hashPassword(t *testing.T, password string) *string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return &hash
}

func dest(url string, weight int) domain.Destination {
	return domain.Destination{URL: url, Weight: weight}
}
