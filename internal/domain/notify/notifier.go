// Package notify defines the best-effort notification contract.
// Delivery mechanics (mail, push) live behind the broker; this side of the
// contract only publishes.
package notify

import "context"

// Notification kinds emitted by the lifecycle core.
const (
	KindListingApproved = "listing_approved"
	KindListingRejected = "listing_rejected"
	KindListingExpired  = "listing_expired"
	KindListingPaused   = "listing_paused"
	KindListingRestored = "listing_restored"
	KindListingFeatured = "listing_featured"
	KindRestrictionsSet = "restrictions_set"
)

// Notifier publishes a notification to a user. Best-effort: implementations
// swallow their own errors, and callers never notify actors about their own
// actions.
type Notifier interface {
	Notify(ctx context.Context, toUserID, kind, title, body string, meta map[string]any)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Notify(ctx context.Context, toUserID, kind, title, body string, meta map[string]any) {}
