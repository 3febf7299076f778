package dto

import (
	"time"

	"aqualist/internal/core/apperror"
	"aqualist/internal/core/types"
	"aqualist/internal/domain/listing"
)

// --- Requests ---

// CreateListingRequest creates a new listing.
type CreateListingRequest struct {
	Kind        string  `json:"kind" binding:"required,oneof=sale wanted"`
	Title       string  `json:"title" binding:"required,max=200"`
	Description string  `json:"description" binding:"max=10000"`
	Category    string  `json:"category" binding:"required,max=100"`
	Location    string  `json:"location" binding:"max=200"`
	Price       *string `json:"price"`
	Budget      *string `json:"budget"`

	// Publish submits immediately instead of keeping a draft.
	Publish bool `json:"publish"`
}

// ToInput converts the request into a service input.
func (r CreateListingRequest) ToInput() (listing.CreateInput, error) {
	price, err := parseMoney(r.Price, "price")
	if err != nil {
		return listing.CreateInput{}, err
	}
	budget, err := parseMoney(r.Budget, "budget")
	if err != nil {
		return listing.CreateInput{}, err
	}
	return listing.CreateInput{
		Kind:        listing.Kind(r.Kind),
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		Price:       price,
		Budget:      budget,
		Publish:     r.Publish,
	}, nil
}

// UpdateListingRequest edits listing content. Absent fields stay unchanged.
type UpdateListingRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=200"`
	Description *string `json:"description" binding:"omitempty,max=10000"`
	Category    *string `json:"category" binding:"omitempty,max=100"`
	Location    *string `json:"location" binding:"omitempty,max=200"`
	Price       *string `json:"price"`
	Budget      *string `json:"budget"`
}

// ToPatch converts the request into a content patch.
func (r UpdateListingRequest) ToPatch() (listing.ContentPatch, error) {
	price, err := parseMoney(r.Price, "price")
	if err != nil {
		return listing.ContentPatch{}, err
	}
	budget, err := parseMoney(r.Budget, "budget")
	if err != nil {
		return listing.ContentPatch{}, err
	}
	return listing.ContentPatch{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		Price:       price,
		Budget:      budget,
	}, nil
}

// FeatureRequest opens or closes the featuring window. featured true with a
// null until applies the site-wide default window; a bare until still opens.
type FeatureRequest struct {
	Featured bool       `json:"featured"`
	Until    *time.Time `json:"until"`
}

// ToInput converts to the service input.
func (r *FeatureRequest) ToInput() listing.FeatureInput {
	return listing.FeatureInput{
		Featured: r.Featured || r.Until != nil,
		Until:    r.Until,
	}
}

// AdminStatusRequest sets a listing status directly.
type AdminStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason" binding:"max=500"`
}

// RestrictionsRequest overwrites the moderation overlay.
type RestrictionsRequest struct {
	BlockEdit          bool    `json:"blockEdit"`
	BlockPauseResume   bool    `json:"blockPauseResume"`
	BlockStatusChanges bool    `json:"blockStatusChanges"`
	BlockFeaturing     bool    `json:"blockFeaturing"`
	Reason             *string `json:"reason" binding:"omitempty,max=500"`
}

// ToRestrictions converts the request into the domain overlay.
func (r RestrictionsRequest) ToRestrictions() listing.Restrictions {
	return listing.Restrictions{
		BlockEdit:          r.BlockEdit,
		BlockPauseResume:   r.BlockPauseResume,
		BlockStatusChanges: r.BlockStatusChanges,
		BlockFeaturing:     r.BlockFeaturing,
		Reason:             r.Reason,
	}
}

// ListListingsRequest filters the browse endpoint.
type ListListingsRequest struct {
	PaginationRequest
	Kind     string `form:"kind" binding:"omitempty,oneof=sale wanted"`
	Category string `form:"category"`
	Status   string `form:"status"`
	Search   string `form:"search"`
	Featured bool   `form:"featured"`
	Mine     bool   `form:"mine"`
	OrderBy  string `form:"orderBy"`
}

// ToFilter converts the request into a repository filter.
// userID is the authenticated caller, used for mine=true.
func (r ListListingsRequest) ToFilter(userID string) listing.ListFilter {
	f := listing.DefaultListFilter()
	if r.Kind != "" {
		k := listing.Kind(r.Kind)
		f.Kind = &k
	}
	f.Category = r.Category
	f.Search = r.Search
	f.FeaturedOnly = r.Featured
	if r.Status != "" {
		f.Statuses = []listing.Status{listing.Status(r.Status)}
	}
	if r.Mine && userID != "" {
		f.OwnerID = &userID
	}
	if r.OrderBy != "" {
		f.OrderBy = r.OrderBy
	}
	f.Limit = r.PageSize
	f.Offset = r.Offset()
	return f
}

// --- Responses ---

// RestrictionsResponse is the owner-visible (read-only) overlay.
type RestrictionsResponse struct {
	BlockEdit          bool       `json:"blockEdit"`
	BlockPauseResume   bool       `json:"blockPauseResume"`
	BlockStatusChanges bool       `json:"blockStatusChanges"`
	BlockFeaturing     bool       `json:"blockFeaturing"`
	Reason             *string    `json:"reason,omitempty"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`
}

// ListingResponse is the public/owner listing shape.
type ListingResponse struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Location    string  `json:"location,omitempty"`
	Price       *string `json:"price,omitempty"`
	Budget      *string `json:"budget,omitempty"`
	OwnerID     *string `json:"ownerId,omitempty"`

	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`

	Featured      bool       `json:"featured"`
	FeaturedUntil *time.Time `json:"featuredUntil,omitempty"`

	Restrictions *RestrictionsResponse `json:"restrictions,omitempty"`

	Views     int64     `json:"views"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromListing builds the response. includeRestrictions should be true for
// the owner and admins only.
func FromListing(l *listing.Listing, includeRestrictions bool) ListingResponse {
	resp := ListingResponse{
		ID:            l.ID.String(),
		Kind:          string(l.Kind),
		Status:        string(l.Status),
		Title:         l.Title,
		Description:   l.Description,
		Category:      l.Category,
		Location:      l.Location,
		Price:         moneyString(l.Price),
		Budget:        moneyString(l.Budget),
		OwnerID:       l.OwnerID,
		PublishedAt:   l.PublishedAt,
		ExpiresAt:     l.ExpiresAt,
		DeletedAt:     l.DeletedAt,
		Featured:      l.Featured,
		FeaturedUntil: l.FeaturedUntil,
		Views:         l.Views,
		Version:       l.Version,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	if includeRestrictions && l.Restrictions.Any() {
		resp.Restrictions = &RestrictionsResponse{
			BlockEdit:          l.BlockEdit,
			BlockPauseResume:   l.BlockPauseResume,
			BlockStatusChanges: l.BlockStatusChanges,
			BlockFeaturing:     l.BlockFeaturing,
			Reason:             l.Reason,
			UpdatedAt:          l.OverlayUpdatedAt,
		}
	}
	return resp
}

// FromListings maps a page of listings.
func FromListings(items []*listing.Listing, includeRestrictions bool) []ListingResponse {
	out := make([]ListingResponse, 0, len(items))
	for _, l := range items {
		out = append(out, FromListing(l, includeRestrictions))
	}
	return out
}

// CreatedListingResponse includes the one-time manage secret.
type CreatedListingResponse struct {
	Listing      ListingResponse `json:"listing"`
	ManageSecret string          `json:"manageSecret,omitempty"`
}

// --- helpers ---

func parseMoney(s *string, field string) (*types.Money, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	m, err := types.NewMoneyFromString(*s)
	if err != nil {
		return nil, apperror.NewValidation("invalid amount").WithDetail("field", field)
	}
	return &m, nil
}

func moneyString(m *types.Money) *string {
	if m == nil {
		return nil
	}
	s := m.String()
	return &s
}
