// Package entitlement maps subscription roles to feature limits using a
// single versioned policy table.
package entitlement

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"shorturl/internal/domain"
)

//go:embed policy.yaml
var defaultPolicy []byte

// AnalyticsDetail controls which click fields are recorded for an owner
type AnalyticsDetail string

const (
	AnalyticsNone AnalyticsDetail = "none"
	AnalyticsFull AnalyticsDetail = "full"
)

// Limits are the feature entitlements of one tier
type Limits struct {
	Tier                         string          `yaml:"name" json:"tier"`
	Rank                         int             `yaml:"rank" json:"-"`
	MaxShortURLs                 int             `yaml:"maxShortUrls" json:"maxShortUrls"`
	MaxVCards                    int             `yaml:"maxVCards" json:"maxVCards"`
	CustomSlugAllowed            bool            `yaml:"customSlugAllowed" json:"customSlugAllowed"`
	MaxDestinations              int             `yaml:"maxDestinations" json:"maxDestinations"`
	MaxMetadataVariants          int             `yaml:"maxMetadataVariants" json:"maxMetadataVariants"`
	UTMAllowed                   bool            `yaml:"utmAllowed" json:"utmAllowed"`
	PasswordAndExpirationAllowed bool            `yaml:"passwordAndExpirationAllowed" json:"passwordAndExpirationAllowed"`
	AnalyticsDetail              AnalyticsDetail `yaml:"analyticsDetail" json:"analyticsDetail"`
}

// FullAnalytics reports whether detailed click fields may be recorded
func (l Limits) FullAnalytics() bool {
	return l.AnalyticsDetail == AnalyticsFull
}

// Policy is the parsed, versioned tier table
type Policy struct {
	Version int      `yaml:"version"`
	Tiers   []Limits `yaml:"tiers"`

	byName map[string]Limits
}

// DefaultPolicy returns the embedded tier table
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicy)
	if err != nil {
		panic(fmt.Sprintf("entitlement: embedded policy: %v", err))
	}
	return p
}

// LoadPolicy reads a tier table from path, or the embedded table when path is empty
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entitlement policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses and validates a YAML tier table
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse entitlement policy: %w", err)
	}
	if p.Version <= 0 {
		return nil, fmt.Errorf("entitlement policy: version must be positive")
	}

	p.byName = make(map[string]Limits, len(p.Tiers))
	for _, t := range p.Tiers {
		key := strings.ToLower(strings.TrimSpace(t.Tier))
		if key == "" {
			return nil, fmt.Errorf("entitlement policy: tier without name")
		}
		if _, dup := p.byName[key]; dup {
			return nil, fmt.Errorf("entitlement policy: duplicate tier %q", t.Tier)
		}
		if t.MaxDestinations > domain.MaxDestinationsPerLink || t.MaxMetadataVariants > domain.MaxVariantsPerLink {
			return nil, fmt.Errorf("entitlement policy: tier %q exceeds per-link caps", t.Tier)
		}
		if t.AnalyticsDetail == "" {
			t.AnalyticsDetail = AnalyticsNone
		}
		p.byName[key] = t
	}
	return &p, nil
}

// LimitsFor returns the limits of the highest-ranked known role.
// Role names match case-insensitively; no known role yields zero limits.
func (p *Policy) LimitsFor(roles []string) Limits {
	var best Limits
	found := false
	for _, r := range roles {
		l, ok := p.byName[strings.ToLower(strings.TrimSpace(r))]
		if !ok {
			continue
		}
		if !found || l.Rank > best.Rank {
			best = l
			found = true
		}
	}
	if !found {
		return Limits{AnalyticsDetail: AnalyticsNone}
	}
	return best
}

// RoleSource lists the subscription roles a user holds
type RoleSource interface {
	RolesFor(ctx context.Context, userID string) ([]string, error)
}

// Resolver resolves user ids to limits through a RoleSource
type Resolver struct {
	policy *Policy
	roles  RoleSource
}

// NewResolver creates a resolver
func NewResolver(policy *Policy, roles RoleSource) *Resolver {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Resolver{policy: policy, roles: roles}
}

// Policy returns the active tier table
func (r *Resolver) Policy() *Policy {
	return r.policy
}

// LimitsFor maps role names directly
func (r *Resolver) LimitsFor(roles []string) Limits {
	return r.policy.LimitsFor(roles)
}

// ForUser looks the user's roles up and returns their limits.
// An empty user id has no entitlements.
func (r *Resolver) ForUser(ctx context.Context, userID string) (Limits, error) {
	if userID == "" {
		return r.policy.LimitsFor(nil), nil
	}
	roles, err := r.roles.RolesFor(ctx, userID)
	if err != nil {
		return Limits{}, fmt.Errorf("lookup roles for %s: %w", userID, err)
	}
	return r.policy.LimitsFor(roles), nil
}
