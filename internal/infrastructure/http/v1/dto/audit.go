package dto

import (
	"encoding/json"
	"time"

	"aqualist/internal/domain/audit"
)

// AuditEntryResponse is one event of a listing's moderation trail.
type AuditEntryResponse struct {
	ID          string          `json:"id"`
	Action      string          `json:"action"`
	ActorUserID string          `json:"actorUserId,omitempty"`
	Meta        json.RawMessage `json:"meta,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// FromAuditEntries maps the trail, preserving order (newest first).
func FromAuditEntries(entries []audit.Entry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:          e.ID,
			Action:      e.Action,
			ActorUserID: e.ActorUserID,
			Meta:        e.Meta,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}
