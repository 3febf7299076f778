// Package audit defines the best-effort audit trail contract.
// Implementations live in infrastructure; failures never reach callers.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Recorder writes moderation/lifecycle audit entries.
// Record is fire-and-forget: implementations swallow their own errors and a
// failed write must never roll back or fail the transition it describes.
type Recorder interface {
	Record(ctx context.Context, actorUserID, action, targetKind, targetID string, meta map[string]any)
}

// Entry is a recorded audit event as read back for moderators.
type Entry struct {
	ID          string
	Action      string
	ActorUserID string
	Meta        json.RawMessage
	CreatedAt   time.Time
}

// HistoryReader retrieves the recorded trail for a target, newest first.
// Unlike Record this is a plain read and reports its errors.
type HistoryReader interface {
	History(ctx context.Context, targetKind, targetID string, limit int) ([]Entry, error)
}

// Nop discards all entries. Used in tests and when auditing is disabled.
type Nop struct{}

func (Nop) Record(ctx context.Context, actorUserID, action, targetKind, targetID string, meta map[string]any) {
}
