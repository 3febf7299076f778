package listing

import (
	"context"
	"time"

	"aqualist/internal/core/id"
)

// ListFilter narrows List queries.
type ListFilter struct {
	// Statuses restricts to the given lifecycle statuses. Empty means the
	// publicly visible statuses.
	Statuses []Status

	// Kind filters sale vs wanted.
	Kind *Kind

	// OwnerID filters to one owner's listings (my-listings view).
	OwnerID *string

	// FeaturedOnly keeps listings inside their featuring window at Now.
	// Now must be set when FeaturedOnly is true.
	FeaturedOnly bool
	Now          time.Time

	// Category filters by category slug.
	Category string

	// Search matches against the title.
	Search string

	// OrderBy specifies sorting (e.g. "created_at", "-published_at").
	OrderBy string

	Limit  int
	Offset int
}

// DefaultListFilter returns sensible browse defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:   50,
		OrderBy: "-published_at",
	}
}

// ListResult contains paginated results.
type ListResult struct {
	Items      []*Listing `json:"items"`
	TotalCount int64      `json:"totalCount"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

// SweptListing identifies a listing the expiry sweep just moved.
type SweptListing struct {
	ID      id.ID
	OwnerID *string
	Title   string
}

// Repository defines persistence operations for listings.
type Repository interface {
	Create(ctx context.Context, l *Listing) error
	GetByID(ctx context.Context, listingID id.ID) (*Listing, error)

	// Update writes the full row with optimistic locking on version.
	Update(ctx context.Context, l *Listing) error

	List(ctx context.Context, filter ListFilter) (ListResult, error)

	// SweepExpired promotes every row past its expiry instant into expired
	// in a single statement. Idempotent; returns the rows it moved so the
	// caller can notify their owners.
	SweepExpired(ctx context.Context, now time.Time) ([]SweptListing, error)

	// IncrementViews bumps the views counter for a public non-owner read.
	// Separate from Update so concurrent reads never fight the version column.
	IncrementViews(ctx context.Context, listingID id.ID) error
}
