package domain

import (
	"time"
)

// Limits on the size of a short entry regardless of plan
const (
	MaxSlugLength          = 50
	MaxDestinationsPerLink = 5
	MaxVariantsPerLink     = 5
)

// ShortEntry is the aggregate root: one short code with its ordered
// destinations, metadata variants and rotation indices
type ShortEntry struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	Code      string     `gorm:"not null;size:50" json:"code"`
	CodeKey   string     `gorm:"uniqueIndex;not null;size:50" json:"-"` // lowercased code
	OwnerID   string     `gorm:"index;not null;size:64" json:"ownerId"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
	ExpiresAt *time.Time `gorm:"index" json:"expiresAt,omitempty"`

	PasswordHash *string `gorm:"size:100" json:"-"`

	IsDeleted bool       `gorm:"default:false;index" json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`

	CurrentDestinationIndex int `gorm:"not null;default:0" json:"currentDestinationIndex"`
	CurrentOgIndex          int `gorm:"not null;default:0" json:"currentOgIndex"`

	Destinations []Destination     `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE" json:"destinations"`
	Metadata     []MetadataVariant `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE" json:"metadata"`
}

// TableName specifies the table name for GORM
func (ShortEntry) TableName() string {
	return "short_entries"
}

// Destination is one redirect target of a short entry
type Destination struct {
	ID          string  `gorm:"primaryKey;size:36" json:"id"`
	EntryID     string  `gorm:"index;not null;size:36" json:"-"`
	Position    int     `gorm:"not null" json:"position"`
	URL         string  `gorm:"not null;type:text" json:"url"`
	UTMSource   *string `gorm:"size:200" json:"utmSource,omitempty"`
	UTMMedium   *string `gorm:"size:200" json:"utmMedium,omitempty"`
	UTMCampaign *string `gorm:"size:200" json:"utmCampaign,omitempty"`
	Weight      int     `gorm:"not null;default:1" json:"weight"`
}

// TableName specifies the table name for GORM
func (Destination) TableName() string {
	return "destinations"
}

// EffectiveWeight clamps non-positive weights to 1
func (d Destination) EffectiveWeight() int {
	if d.Weight < 1 {
		return 1
	}
	return d.Weight
}

// MetadataVariant is one Open Graph preview shown to social crawlers
type MetadataVariant struct {
	ID          string  `gorm:"primaryKey;size:36" json:"id"`
	EntryID     string  `gorm:"index;not null;size:36" json:"-"`
	Position    int     `gorm:"not null" json:"position"`
	Title       string  `gorm:"size:300" json:"title"`
	Description string  `gorm:"type:text" json:"description"`
	Image       *string `gorm:"type:text" json:"image,omitempty"`
}

// TableName specifies the table name for GORM
func (MetadataVariant) TableName() string {
	return "metadata_variants"
}

// IsExpired checks if the entry has passed its expiration time
func (e *ShortEntry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false // Never expires
	}
	return now.After(*e.ExpiresAt)
}

// IsLive reports whether the entry may still be resolved to a redirect
func (e *ShortEntry) IsLive(now time.Time) bool {
	return !e.IsDeleted && !e.IsExpired(now)
}

// HasPassword reports whether the entry is password protected
func (e *ShortEntry) HasPassword() bool {
	return e.PasswordHash != nil && *e.PasswordHash != ""
}

// Weights returns the clamped destination weights in list order
func (e *ShortEntry) Weights() []int {
	weights := make([]int, len(e.Destinations))
	for i, d := range e.Destinations {
		weights[i] = d.EffectiveWeight()
	}
	return weights
}

// Clone returns a deep copy so cached snapshots are never shared with callers
func (e *ShortEntry) Clone() *ShortEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.ExpiresAt = cloneTime(e.ExpiresAt)
	out.DeletedAt = cloneTime(e.DeletedAt)
	out.PasswordHash = cloneString(e.PasswordHash)

	if e.Destinations != nil {
		out.Destinations = make([]Destination, len(e.Destinations))
		for i, d := range e.Destinations {
			d.UTMSource = cloneString(d.UTMSource)
			d.UTMMedium = cloneString(d.UTMMedium)
			d.UTMCampaign = cloneString(d.UTMCampaign)
			out.Destinations[i] = d
		}
	}
	if e.Metadata != nil {
		out.Metadata = make([]MetadataVariant, len(e.Metadata))
		for i, m := range e.Metadata {
			m.Image = cloneString(m.Image)
			out.Metadata[i] = m
		}
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns nil for blank strings and a pointer otherwise
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or empty
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// UserRole links a user to a subscription role name
type UserRole struct {
	UserID string `gorm:"primaryKey;size:64" json:"userId"`
	Role   string `gorm:"primaryKey;size:50" json:"role"`
}

// TableName specifies the table name for GORM
func (UserRole) TableName() string {
	return "user_roles"
}
