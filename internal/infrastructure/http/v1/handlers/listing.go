package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"aqualist/internal/core/id"
	"aqualist/internal/domain/listing"
	"aqualist/internal/infrastructure/http/v1/dto"
)

// ListingHandler serves the public and owner listing endpoints.
type ListingHandler struct {
	*BaseHandler
	service *listing.Service
}

// NewListingHandler creates a listing handler.
func NewListingHandler(base *BaseHandler, service *listing.Service) *ListingHandler {
	return &ListingHandler{BaseHandler: base, service: service}
}

// Create handles POST /listings.
func (h *ListingHandler) Create(c *gin.Context) {
	var req dto.CreateListingRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	l, secret, err := h.service.Create(c.Request.Context(), in, h.Principal(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.CreatedListingResponse{
		Listing:      dto.FromListing(l, true),
		ManageSecret: secret,
	})
}

// Get handles GET /listings/:id.
func (h *ListingHandler) Get(c *gin.Context) {
	listingID, ok := h.ParseID(c)
	if !ok {
		return
	}

	p := h.Principal(c)
	l, err := h.service.GetByID(c.Request.Context(), listingID, p)
	if err != nil {
		h.Error(c, err)
		return
	}

	controls := p.IsAdmin || l.IsOwner(p.UserID) || l.VerifyManageSecret(p.ManageSecret)
	h.OK(c, dto.FromListing(l, controls))
}

// List handles GET /listings.
func (h *ListingHandler) List(c *gin.Context) {
	var req dto.ListListingsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	p := h.Principal(c)
	result, err := h.service.List(c.Request.Context(), req.ToFilter(p.UserID), p)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromListings(result.Items, req.Mine || p.IsAdmin),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Update handles PATCH /listings/:id.
func (h *ListingHandler) Update(c *gin.Context) {
	listingID, ok := h.ParseID(c)
	if !ok {
		return
	}

	var req dto.UpdateListingRequest
	if !h.BindJSON(c, &req) {
		return
	}

	patch, err := req.ToPatch()
	if err != nil {
		h.Error(c, err)
		return
	}

	l, err := h.service.UpdateContent(c.Request.Context(), listingID, patch, h.Principal(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromListing(l, true))
}

// Delete handles DELETE /listings/:id.
func (h *ListingHandler) Delete(c *gin.Context) {
	listingID, ok := h.ParseID(c)
	if !ok {
		return
	}

	if _, err := h.service.Delete(c.Request.Context(), listingID, h.Principal(c)); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// Publish handles POST /listings/:id/publish.
func (h *ListingHandler) Publish(c *gin.Context) {
	h.statusOp(c, h.service.Publish)
}

// Pause handles POST /listings/:id/pause.
func (h *ListingHandler) Pause(c *gin.Context) {
	h.statusOp(c, h.service.Pause)
}

// Resume handles POST /listings/:id/resume.
func (h *ListingHandler) Resume(c *gin.Context) {
	h.statusOp(c, h.service.Resume)
}

// Resolve handles POST /listings/:id/resolve.
func (h *ListingHandler) Resolve(c *gin.Context) {
	h.statusOp(c, h.service.Resolve)
}

// Relist handles POST /listings/:id/relist.
func (h *ListingHandler) Relist(c *gin.Context) {
	listingID, ok := h.ParseID(c)
	if !ok {
		return
	}

	l, secret, err := h.service.Relist(c.Request.Context(), listingID, h.Principal(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.CreatedListingResponse{
		Listing:      dto.FromListing(l, true),
		ManageSecret: secret,
	})
}

// Feature handles PUT /listings/:id/feature.
func (h *ListingHandler) Feature(c *gin.Context) {
	listingID, ok := h.ParseID(c)
	if !ok {
		return
	}

	var req dto.FeatureRequest
	if !h.BindJSON(c, &req) {
		return
	}

	l, err := h.service.SetFeatured(c.Request.Context(), listingID, req.ToInput(), h.Principal(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromListing(l, true))
}

func (h *ListingHandler) statusOp(c *gin.Context, op func(ctx context.Context, listingID id.ID, p listing.Principal) (*listing.Listing, error)) {
	listingID, ok := h.ParseID(c)
	if !ok {
		return
	}

	l, err := op(c.Request.Context(), listingID, h.Principal(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromListing(l, true))
}
