package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"aqualist/internal/core/id"
	"aqualist/internal/domain/audit"
)

type stubTrail struct {
	gotKind  string
	gotID    string
	gotLimit int
	entries  []audit.Entry
}

func (s *stubTrail) History(_ context.Context, targetKind, targetID string, limit int) ([]audit.Entry, error) {
	s.gotKind, s.gotID, s.gotLimit = targetKind, targetID, limit
	return s.entries, nil
}

func TestAdminAuditHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)

	listingID := id.New()
	trail := &stubTrail{entries: []audit.Entry{{
		ID:          id.New().String(),
		Action:      "listing.status.deleted",
		ActorUserID: "admin-1",
		Meta:        json.RawMessage(`{"reason":"spam"}`),
		CreatedAt:   time.Now().UTC(),
	}}}

	h := NewAdminHandler(NewBaseHandler(), nil, nil, trail)
	r := gin.New()
	r.GET("/admin/listings/:id/audit", h.AuditHistory)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/listings/"+listingID.String()+"/audit?limit=10", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if trail.gotKind != "listing" || trail.gotID != listingID.String() || trail.gotLimit != 10 {
		t.Errorf("history queried with (%q, %q, %d)", trail.gotKind, trail.gotID, trail.gotLimit)
	}

	var body []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || body[0]["action"] != "listing.status.deleted" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}

	// Omitted limit falls back to the default.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/listings/"+listingID.String()+"/audit", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || trail.gotLimit != 50 {
		t.Errorf("default limit request: status %d, limit %d", w.Code, trail.gotLimit)
	}
}
