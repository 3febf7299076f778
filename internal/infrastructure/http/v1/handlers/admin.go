package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"aqualist/internal/core/apperror"
	"aqualist/internal/domain/audit"
	"aqualist/internal/domain/listing"
	"aqualist/internal/domain/settings"
	"aqualist/internal/infrastructure/http/v1/dto"
)

// AdminHandler serves moderation and site settings endpoints.
// All routes are mounted behind Auth + RequireAdmin.
type AdminHandler struct {
	*BaseHandler
	listings *listing.Service
	settings *settings.Service
	trail    audit.HistoryReader
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(base *BaseHandler, listings *listing.Service, s *settings.Service, trail audit.HistoryReader) *AdminHandler {
	return &AdminHandler{BaseHandler: base, listings: listings, settings: s, trail: trail}
}

// SetStatus handles PUT /admin/listings/:id/status.
func (h *AdminHandler) SetStatus(c *gin.Context) {
	listingID, ok := h.ParseID(c)
	if !ok {
		return
	}

	var req dto.AdminStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	status := listing.Status(req.Status)
	if !listing.ValidStatus(status) {
		h.Error(c, apperror.NewValidation("unknown status").WithDetail("status", req.Status))
		return
	}

	l, err := h.listings.AdminSetStatus(c.Request.Context(), listingID, status, req.Reason, h.Principal(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromListing(l, true))
}

// Feature handles PUT /admin/listings/:id/feature.
func (h *AdminHandler) Feature(c *gin.Context) {
	listingID, ok := h.ParseID(c)
	if !ok {
		return
	}

	var req dto.FeatureRequest
	if !h.BindJSON(c, &req) {
		return
	}

	l, err := h.listings.SetFeatured(c.Request.Context(), listingID, req.ToInput(), h.Principal(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromListing(l, true))
}

// SetRestrictions handles PUT /admin/listings/:id/restrictions.
func (h *AdminHandler) SetRestrictions(c *gin.Context) {
	listingID, ok := h.ParseID(c)
	if !ok {
		return
	}

	var req dto.RestrictionsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	l, err := h.listings.SetRestrictions(c.Request.Context(), listingID, req.ToRestrictions(), h.Principal(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromListing(l, true))
}

// AuditHistory handles GET /admin/listings/:id/audit.
// Moderators see the raw machine codes and meta behind each transition.
func (h *AdminHandler) AuditHistory(c *gin.Context) {
	listingID, ok := h.ParseID(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			h.Error(c, apperror.NewValidation("limit must be between 1 and 200").
				WithDetail("limit", raw))
			return
		}
		limit = n
	}

	entries, err := h.trail.History(c.Request.Context(), "listing", listingID.String(), limit)
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}

	h.OK(c, dto.FromAuditEntries(entries))
}

// GetSettings handles GET /admin/settings.
func (h *AdminHandler) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSettings(s))
}

// UpdateSettings handles PUT /admin/settings.
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req dto.UpdateSettingsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.settings.Update(c.Request.Context(), req.ToSettings()); err != nil {
		h.Error(c, err)
		return
	}

	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSettings(s))
}
