package domain

import (
	"time"
)

// ClickEvent is the immutable record of one resolved redirect.
// Only ScreenResolution is filled in later by the client callback.
type ClickEvent struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	ShortEntryID     string    `gorm:"index;not null;size:36" json:"shortEntryId"`
	DestinationID    string    `gorm:"index;size:36" json:"destinationId"`
	MetadataID       *string   `gorm:"size:36" json:"metadataId,omitempty"`
	Timestamp        time.Time `gorm:"column:clicked_at;index;not null" json:"timestamp"`
	IP               *string   `gorm:"size:45" json:"ip,omitempty"`
	Country          *string   `gorm:"size:100" json:"country,omitempty"`
	City             *string   `gorm:"size:100" json:"city,omitempty"`
	Referrer         *string   `gorm:"type:text" json:"referrer,omitempty"`
	Device           *string   `gorm:"size:50" json:"device,omitempty"`
	Browser          *string   `gorm:"size:100" json:"browser,omitempty"`
	OS               *string   `gorm:"size:100" json:"os,omitempty"`
	Language         *string   `gorm:"size:35" json:"language,omitempty"`
	ScreenResolution *string   `gorm:"size:20" json:"screenResolution,omitempty"`
}

// TableName specifies the table name for GORM
func (ClickEvent) TableName() string {
	return "click_events"
}

// DestinationCount is the number of clicks routed to one destination
type DestinationCount struct {
	DestinationID string `json:"destinationId"`
	Clicks        int64  `json:"clicks"`
}

// MetadataCount is the number of clicks attributed to one metadata variant
type MetadataCount struct {
	MetadataID string `json:"metadataId"`
	Clicks     int64  `json:"clicks"`
}

// DailyCount is the number of clicks on one UTC calendar day (YYYY-MM-DD)
type DailyCount struct {
	Day    string `json:"day"`
	Clicks int64  `json:"clicks"`
}

// ClickSummary represents aggregated click statistics for a short entry
type ClickSummary struct {
	Code           string             `json:"code"`
	TotalClicks    int64              `json:"totalClicks"`
	PerDestination []DestinationCount `json:"perDestination"`
	PerMetadata    []MetadataCount    `json:"perMetadata"`
	Daily          []DailyCount       `json:"daily"`
	Recent         []ClickEvent       `json:"recent,omitempty"`
}

// StatsRange optionally bounds the click statistics window (inclusive)
type StatsRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the range
func (r StatsRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}
