// Package settings provides site-wide marketplace configuration.
package settings

import (
	"context"

	"aqualist/internal/core/apperror"
)

// Settings is the singleton site configuration row.
type Settings struct {
	// RequireApproval routes first publication through the pending queue.
	RequireApproval bool `db:"require_approval" json:"requireApproval"`

	// ListingTTLDays is the lifetime applied to expiresAt on publish and relist.
	ListingTTLDays int `db:"listing_ttl_days" json:"listingTtlDays"`

	// FeaturedDefaultDays is the window applied when a listing is featured
	// without an explicit until instant.
	FeaturedDefaultDays int `db:"featured_default_days" json:"featuredDefaultDays"`

	Version int `db:"version" json:"version"`
}

// Default returns the settings used before an admin ever saves any.
func Default() Settings {
	return Settings{
		RequireApproval:     false,
		ListingTTLDays:      30,
		FeaturedDefaultDays: 7,
		Version:             1,
	}
}

// Validate checks settings invariants.
func (s *Settings) Validate(ctx context.Context) error {
	if s.ListingTTLDays <= 0 {
		return apperror.NewValidation("listing TTL must be positive").
			WithDetail("field", "listingTtlDays")
	}
	if s.FeaturedDefaultDays <= 0 {
		return apperror.NewValidation("featured default window must be positive").
			WithDetail("field", "featuredDefaultDays")
	}
	return nil
}
