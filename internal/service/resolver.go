package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"shorturl/internal/analytics"
	"shorturl/internal/auth"
	"shorturl/internal/cache"
	"shorturl/internal/config"
	"shorturl/internal/domain"
	"shorturl/internal/entitlement"
	"shorturl/internal/geo"
	"shorturl/internal/repository"
	"shorturl/internal/rotation"
	"shorturl/pkg/logger"
)

// InvalidLocation is where unknown, deleted and expired links are sent
const InvalidLocation = "/invalid"

// Outcome is the terminal state of one resolution
type Outcome int

const (
	OutcomeInvalid Outcome = iota
	OutcomeCrawlerPreview
	OutcomePasswordRequired
	OutcomePasswordRejected
	OutcomeResolved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCrawlerPreview:
		return "crawler_preview"
	case OutcomePasswordRequired:
		return "password_required"
	case OutcomePasswordRejected:
		return "password_rejected"
	case OutcomeResolved:
		return "resolved"
	default:
		return "invalid"
	}
}

// ResolveRequest carries everything the engine needs from an inbound request
type ResolveRequest struct {
	Code           string
	UserAgent      string
	IP             string
	Referrer       string
	AcceptLanguage string
	// Consent is true when the visitor accepted tracking
	Consent bool
	// VariantOverride forces a metadata variant for crawler previews
	VariantOverride *int
}

// Resolution is the decision for one request
type Resolution struct {
	Outcome  Outcome
	Location string
	// ClickID is empty unless a click was committed within the wait budget
	ClickID string
	// Variant is the metadata variant chosen for crawler previews
	Variant int
}

// ClickNotifier receives fresh aggregates after each committed click
type ClickNotifier interface {
	Notify(ctx context.Context, code string, summary *domain.ClickSummary) error
}

// Resolver is the redirect resolution engine
type Resolver struct {
	store        repository.Store
	cache        cache.EntryCache
	entitlements *entitlement.Resolver
	selector     *rotation.Selector
	locator      geo.Locator
	notifier     ClickNotifier
	cfg          *config.Config
	logger       *logger.Logger
	now          func() time.Time

	pending sync.WaitGroup
}

// NewResolver wires the engine. locator and notifier may be nil.
func NewResolver(
	store repository.Store,
	entryCache cache.EntryCache,
	entitlements *entitlement.Resolver,
	locator geo.Locator,
	notifier ClickNotifier,
	cfg *config.Config,
	logger *logger.Logger,
) *Resolver {
	if locator == nil {
		locator = geo.NopLocator{}
	}
	return &Resolver{
		store:        store,
		cache:        entryCache,
		entitlements: entitlements,
		selector:     rotation.NewSelector(),
		locator:      locator,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// WithSelector replaces the weighted selector, mainly for deterministic tests
func (r *Resolver) WithSelector(s *rotation.Selector) *Resolver {
	r.selector = s
	return r
}

// WithClock replaces the time source
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve decides what an inbound GET /{code} turns into
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	entry, err := r.Lookup(ctx, req.Code)
	if errors.Is(err, domain.ErrInvalidLink) {
		r.logger.Debugw("Invalid link requested", "code", req.Code)
		return invalid(), nil
	}
	if err != nil {
		return nil, err
	}

	if analytics.IsSocialCrawler(req.UserAgent) {
		return r.preview(ctx, entry, req.VariantOverride)
	}

	if entry.HasPassword() {
		return &Resolution{Outcome: OutcomePasswordRequired, Location: PasswordLocation(entry.Code)}, nil
	}

	return r.redirect(ctx, entry, req)
}

// ResolveWithPassword re-enters resolution after the visitor submitted a password
func (r *Resolver) ResolveWithPassword(ctx context.Context, req ResolveRequest, password string) (*Resolution, error) {
	entry, err := r.Lookup(ctx, req.Code)
	if errors.Is(err, domain.ErrInvalidLink) {
		return invalid(), nil
	}
	if err != nil {
		return nil, err
	}

	if entry.HasPassword() && !auth.CheckPassword(password, *entry.PasswordHash) {
		r.logger.Infow("Wrong link password", "code", entry.Code)
		return &Resolution{Outcome: OutcomePasswordRejected, Location: PasswordLocation(entry.Code)}, nil
	}

	return r.redirect(ctx, entry, req)
}

// Lookup returns a live entry by code through the cache.
// Unknown, soft-deleted and expired codes yield domain.ErrInvalidLink.
func (r *Resolver) Lookup(ctx context.Context, code string) (*domain.ShortEntry, error) {
	entry, err := r.cache.GetOrLoad(ctx, code, func(ctx context.Context) (*domain.ShortEntry, error) {
		e, err := r.store.FindByCode(ctx, code)
		if errors.Is(err, domain.ErrInvalidLink) {
			return nil, nil
		}
		return e, err
	})
	if err != nil {
		r.logger.Errorw("Failed to load link", "code", code, "error", err)
		return nil, err
	}
	if entry == nil || !entry.IsLive(r.now()) {
		return nil, domain.ErrInvalidLink
	}
	return entry, nil
}

// Wait blocks until background click writes have finished
func (r *Resolver) Wait() {
	r.pending.Wait()
}

func (r *Resolver) preview(ctx context.Context, entry *domain.ShortEntry, override *int) (*Resolution, error) {
	n := len(entry.Metadata)
	variant := 0
	if n > 0 {
		variant = rotation.Mod(entry.CurrentOgIndex, n)
		if override != nil && *override >= 0 && *override < n {
			variant = *override
		}

		if err := r.store.AdvanceOgIndex(ctx, entry.ID, n); err != nil {
			r.logger.Errorw("Failed to advance metadata rotation", "code", entry.Code, "error", err)
			return nil, err
		}
		r.invalidate(ctx, entry.Code)
	}

	return &Resolution{
		Outcome:  OutcomeCrawlerPreview,
		Location: fmt.Sprintf("/preview/%s?var=%d", url.PathEscape(entry.Code), variant),
		Variant:  variant,
	}, nil
}

func (r *Resolver) redirect(ctx context.Context, entry *domain.ShortEntry, req ResolveRequest) (*Resolution, error) {
	n := len(entry.Destinations)
	if n == 0 {
		return invalid(), nil
	}

	idx := r.selector.Select(entry.Weights(), entry.CurrentDestinationIndex)
	dest := entry.Destinations[idx]

	click := r.buildClick(ctx, entry, dest, req)
	clickID, err := r.record(ctx, entry, n, click)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		Outcome:  OutcomeResolved,
		Location: BuildOutboundURL(dest, clickID),
		ClickID:  clickID,
	}, nil
}

// buildClick gathers the click fields the visitor's consent and the owner's
// plan allow. Enrichment failures leave fields empty.
func (r *Resolver) buildClick(ctx context.Context, entry *domain.ShortEntry, dest domain.Destination, req ResolveRequest) *domain.ClickEvent {
	click := &domain.ClickEvent{
		ID:            uuid.NewString(),
		ShortEntryID:  entry.ID,
		DestinationID: dest.ID,
		Timestamp:     r.now().UTC(),
	}

	if r.cfg.RequireTrackingConsent && !req.Consent {
		return click
	}

	click.IP = domain.StringPtr(req.IP)
	if loc, err := r.locator.Lookup(ctx, req.IP); err != nil {
		r.logger.Debugw("Geolocation failed", "error", err)
	} else if loc != nil {
		click.Country = domain.StringPtr(loc.Country)
		click.City = domain.StringPtr(loc.City)
	}

	limits, err := r.entitlements.ForUser(ctx, entry.OwnerID)
	if err != nil {
		r.logger.Warnw("Failed to resolve owner entitlements", "owner_id", entry.OwnerID, "error", err)
		return click
	}
	if !limits.FullAnalytics() {
		return click
	}

	client := analytics.ParseClient(req.UserAgent)
	click.Referrer = domain.StringPtr(req.Referrer)
	click.Device = domain.StringPtr(client.Device)
	click.Browser = domain.StringPtr(client.Browser)
	click.OS = domain.StringPtr(client.OS)
	click.Language = domain.StringPtr(analytics.PrimaryLanguage(req.AcceptLanguage))
	return click
}

// record commits the rotation advance and the click on a context detached
// from the request, then waits at most the click wait budget for it.
// An empty id with nil error means the write is still running.
func (r *Resolver) record(ctx context.Context, entry *domain.ShortEntry, n int, click *domain.ClickEvent) (string, error) {
	done := make(chan error, 1)

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ClickWriteTimeout)
		defer cancel()

		err := r.store.RecordRedirect(wctx, entry.ID, n, click)
		if err != nil {
			r.logger.Errorw("Failed to record click", "code", entry.Code, "error", err)
			done <- err
			return
		}
		r.invalidate(wctx, entry.Code)
		done <- nil

		r.publish(wctx, entry)
	}()

	timer := time.NewTimer(r.cfg.ClickWaitBudget)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return "", err
		}
		return click.ID, nil
	case <-timer.C:
		r.logger.Warnw("Click write exceeded wait budget", "code", entry.Code, "budget", r.cfg.ClickWaitBudget)
		return "", nil
	case <-ctx.Done():
		return "", nil
	}
}

// publish pushes refreshed aggregates to live subscribers
func (r *Resolver) publish(ctx context.Context, entry *domain.ShortEntry) {
	if r.notifier == nil {
		return
	}
	summary, err := r.store.Summary(ctx, entry.ID, domain.StatsRange{}, 0)
	if err != nil {
		r.logger.Warnw("Failed to summarize clicks", "code", entry.Code, "error", err)
		return
	}
	summary.Code = entry.Code
	if err := r.notifier.Notify(ctx, entry.Code, summary); err != nil {
		r.logger.Warnw("Failed to notify live subscribers", "code", entry.Code, "error", err)
	}
}

func (r *Resolver) invalidate(ctx context.Context, code string) {
	if err := r.cache.Invalidate(ctx, code); err != nil {
		r.logger.Warnw("Failed to invalidate cache", "code", code, "error", err)
	}
}

func invalid() *Resolution {
	return &Resolution{Outcome: OutcomeInvalid, Location: InvalidLocation}
}

// PasswordLocation is the password prompt of a code
func PasswordLocation(code string) string {
	return "/password/" + url.PathEscape(code)
}

// BuildOutboundURL appends the destination's non-empty UTM fields and the
// click id to its URL
func BuildOutboundURL(dest domain.Destination, clickID string) string {
	u, err := url.Parse(dest.URL)
	if err != nil {
		return dest.URL
	}

	q := u.Query()
	set := func(key string, value *string) {
		if v := domain.Deref(value); v != "" {
			q.Set(key, v)
		}
	}
	set("utm_source", dest.UTMSource)
	set("utm_medium", dest.UTMMedium)
	set("utm_campaign", dest.UTMCampaign)
	if clickID != "" {
		q.Set("clickId", clickID)
	}

	if len(q) == 0 {
		return dest.URL
	}
	u.RawQuery = q.Encode()
	return u.String()
}
