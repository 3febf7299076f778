package dto

import (
	"aqualist/internal/domain/settings"
)

// SettingsResponse is the admin-facing settings shape.
type SettingsResponse struct {
	RequireApproval     bool `json:"requireApproval"`
	ListingTTLDays      int  `json:"listingTtlDays"`
	FeaturedDefaultDays int  `json:"featuredDefaultDays"`
	Version             int  `json:"version"`
}

// FromSettings builds the response.
func FromSettings(s settings.Settings) SettingsResponse {
	return SettingsResponse{
		RequireApproval:     s.RequireApproval,
		ListingTTLDays:      s.ListingTTLDays,
		FeaturedDefaultDays: s.FeaturedDefaultDays,
		Version:             s.Version,
	}
}

// UpdateSettingsRequest replaces the site settings.
type UpdateSettingsRequest struct {
	RequireApproval     bool `json:"requireApproval"`
	ListingTTLDays      int  `json:"listingTtlDays" binding:"required,min=1"`
	FeaturedDefaultDays int  `json:"featuredDefaultDays" binding:"required,min=1"`
	Version             int  `json:"version" binding:"required,min=1"`
}

// ToSettings converts the request into the domain model.
func (r UpdateSettingsRequest) ToSettings() settings.Settings {
	return settings.Settings{
		RequireApproval:     r.RequireApproval,
		ListingTTLDays:      r.ListingTTLDays,
		FeaturedDefaultDays: r.FeaturedDefaultDays,
		Version:             r.Version,
	}
}
