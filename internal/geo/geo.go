// Package geo looks up approximate visitor location through an external
// HTTP service.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"shorturl/pkg/validator"
)

// Location is the coarse position of a client address
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// Locator resolves an IP address to a location.
// A nil location with nil error means nothing is known.
type Locator interface {
	Lookup(ctx context.Context, ip string) (*Location, error)
}

// NopLocator never returns a location
type NopLocator struct{}

// Lookup implements Locator
func (NopLocator) Lookup(ctx context.Context, ip string) (*Location, error) {
	return nil, nil
}

// HTTPLocator queries a JSON endpoint built from a URL template containing
// "{ip}", for example "http://ip-api.com/json/{ip}?fields=country,city".
type HTTPLocator struct {
	template string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewHTTPLocator creates a locator. Outbound calls are capped at rps per
// second; a non-positive rps disables the cap.
func NewHTTPLocator(template string, timeout time.Duration, rps float64) *HTTPLocator {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &HTTPLocator{
		template: template,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// Lookup implements Locator. Loopback and private addresses are skipped, and
// requests over the outbound budget are dropped rather than queued.
func (l *HTTPLocator) Lookup(ctx context.Context, ip string) (*Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil || validator.IsPrivateIP(parsed) {
		return nil, nil
	}
	if !l.limiter.Allow() {
		return nil, nil
	}

	endpoint := strings.ReplaceAll(l.template, "{ip}", ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build geolocation request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geolocation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geolocation status %d", resp.StatusCode)
	}

	var loc Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return nil, fmt.Errorf("decode geolocation: %w", err)
	}
	if loc.Country == "" && loc.City == "" {
		return nil, nil
	}
	return &loc, nil
}
