package domain

import (
	"time"
)

// DestinationInput is one destination submitted on create or edit
type DestinationInput struct {
	URL         string `json:"url" binding:"required"`
	UTMSource   string `json:"utmSource,omitempty"`
	UTMMedium   string `json:"utmMedium,omitempty"`
	UTMCampaign string `json:"utmCampaign,omitempty"`
	Weight      int    `json:"weight,omitempty"`
}

// MetadataInput is one Open Graph variant submitted on create or edit
type MetadataInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
}

// CreateLinkRequest represents the request payload for creating a short link
type CreateLinkRequest struct {
	CustomSlug   string             `json:"customSlug,omitempty"`
	Destinations []DestinationInput `json:"destinations" binding:"required"`
	Metadata     []MetadataInput    `json:"metadata,omitempty"`
	Password     string             `json:"password,omitempty"`
	ExpiresAt    *time.Time         `json:"expiresAt,omitempty"`
}

// CreateLinkResponse represents the response after creating a short link
type CreateLinkResponse struct {
	Code         string        `json:"code"`
	ShortURL     string        `json:"shortUrl"`
	Destinations []Destination `json:"destinations"`
	CreatedAt    time.Time     `json:"createdAt"`
	ExpiresAt    *time.Time    `json:"expiresAt,omitempty"`
	// SlugDowngraded is set when a requested custom slug was replaced by a generated code
	SlugDowngraded bool `json:"slugDowngraded,omitempty"`
}

// ReplaceDestinationsRequest replaces the full destination list of a link
type ReplaceDestinationsRequest struct {
	Destinations []DestinationInput `json:"destinations" binding:"required"`
}

// ReplaceMetadataRequest replaces the full metadata variant list of a link
type ReplaceMetadataRequest struct {
	Metadata []MetadataInput `json:"metadata"`
}

// RenameRequest changes the short code of a link
type RenameRequest struct {
	Code string `json:"code" binding:"required"`
}

// SlugAvailability is the response of the slug availability check
type SlugAvailability struct {
	IsAvailable bool   `json:"isAvailable"`
	Message     string `json:"message"`
}

// ScreenResolutionRequest is posted by the landing page after a redirect
type ScreenResolutionRequest struct {
	ClickID          string `json:"clickId" binding:"required"`
	ScreenResolution string `json:"screenResolution" binding:"required"`
}

// PasswordRequest carries the password typed on the password page
type PasswordRequest struct {
	Password string `json:"password" form:"password"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
