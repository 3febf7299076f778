// Package listing provides the Listing aggregate and its lifecycle rules.
// A listing is either a sale offer or a "wanted" post; both share one
// lifecycle with an admin-controlled restriction overlay layered on top.
package listing

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"aqualist/internal/core/apperror"
	"aqualist/internal/core/entity"
	"aqualist/internal/core/id"
	"aqualist/internal/core/types"
)

// Kind distinguishes sale offers from wanted posts. Immutable after creation.
type Kind string

const (
	KindSale   Kind = "sale"
	KindWanted Kind = "wanted"
)

// Status is the lifecycle state of a listing.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusSold    Status = "sold"   // resolved, sale listings only
	StatusClosed  Status = "closed" // resolved, wanted posts only
	StatusExpired Status = "expired"
	StatusDeleted Status = "deleted"
)

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusPending, StatusActive, StatusPaused,
		StatusSold, StatusClosed, StatusExpired, StatusDeleted:
		return true
	}
	return false
}

// PublicStatuses are the statuses visible to non-owners.
var PublicStatuses = []Status{StatusActive}

// AllStatuses covers the whole lifecycle, for owner and moderation views.
var AllStatuses = []Status{
	StatusDraft, StatusPending, StatusActive, StatusPaused,
	StatusSold, StatusClosed, StatusExpired, StatusDeleted,
}

// Tier is the authority level of the actor requesting a transition.
type Tier string

const (
	TierOwner  Tier = "owner"
	TierAdmin  Tier = "admin"
	TierSystem Tier = "system"
)

// Actor identifies who is requesting an operation.
type Actor struct {
	UserID string
	Tier   Tier
}

// OwnerActor builds an owner-tier actor.
func OwnerActor(userID string) Actor { return Actor{UserID: userID, Tier: TierOwner} }

// AdminActor builds an admin-tier actor.
func AdminActor(userID string) Actor { return Actor{UserID: userID, Tier: TierAdmin} }

// SystemActor is the expiry sweep.
var SystemActor = Actor{Tier: TierSystem}

// Restrictions is the admin-imposed moderation overlay. The four blocks are
// independent of lifecycle status; owners can read them but never clear them.
type Restrictions struct {
	BlockEdit          bool `db:"block_edit" json:"blockEdit"`
	BlockPauseResume   bool `db:"block_pause_resume" json:"blockPauseResume"`
	BlockStatusChanges bool `db:"block_status_changes" json:"blockStatusChanges"`
	BlockFeaturing     bool `db:"block_featuring" json:"blockFeaturing"`

	Reason *string `db:"restriction_reason" json:"reason,omitempty"`

	// Overlay-prefixed so embedding into Listing does not shadow the
	// entity timestamp.
	OverlayUpdatedAt   *time.Time `db:"restriction_updated_at" json:"overlayUpdatedAt,omitempty"`
	OverlayActorUserID *string    `db:"restriction_actor_id" json:"overlayActorUserId,omitempty"`
}

// Any reports whether at least one block is set.
func (r Restrictions) Any() bool {
	return r.BlockEdit || r.BlockPauseResume || r.BlockStatusChanges || r.BlockFeaturing
}

// Normalize enforces the overlay invariant: a reason without blocks is cleared.
func (r *Restrictions) Normalize() {
	if !r.Any() {
		r.Reason = nil
	}
}

// Stamp records who changed the overlay and when.
func (r *Restrictions) Stamp(actorUserID string, now time.Time) {
	now = now.UTC()
	r.OverlayUpdatedAt = &now
	if actorUserID != "" {
		r.OverlayActorUserID = &actorUserID
	}
}

// Cleared returns an empty overlay (full reinstatement).
func Cleared() Restrictions {
	return Restrictions{}
}

// Listing is the central marketplace entity.
type Listing struct {
	entity.BaseEntity

	// OwnerID is nullable: unowned listings exist transiently from
	// historical imports and are managed via the manage secret.
	OwnerID *string `db:"owner_id" json:"ownerId,omitempty"`

	Kind Kind `db:"kind" json:"kind"`

	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	Category    string `db:"category" json:"category"` // e.g. "cichlids", "corals", "shrimp"
	Location    string `db:"location" json:"location,omitempty"`

	// Price applies to sale listings, Budget to wanted posts.
	Price  *types.Money `db:"price" json:"price,omitempty"`
	Budget *types.Money `db:"budget" json:"budget,omitempty"`

	Status Status `db:"status" json:"status"`

	// PublishedAt is set the first time the listing becomes publicly
	// visible and is never cleared by later transitions.
	PublishedAt *time.Time `db:"published_at" json:"publishedAt,omitempty"`

	// ExpiresAt is the instant after which the sweep marks the listing expired.
	ExpiresAt *time.Time `db:"expires_at" json:"expiresAt,omitempty"`

	// DeletedAt is set once on the first transition into deleted.
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`

	// Featuring window. Featured with a nil FeaturedUntil is a legacy shape
	// normalized away on the next featuring write.
	Featured      bool       `db:"featured" json:"featured"`
	FeaturedUntil *time.Time `db:"featured_until" json:"featuredUntil,omitempty"`

	Restrictions

	// Views counts public non-owner detail reads.
	Views int64 `db:"views" json:"views"`

	// ManageTokenHash is the bcrypt hash of the manage secret minted on
	// create and re-minted on relist. Never serialized.
	ManageTokenHash string `db:"manage_token_hash" json:"-"`
}

// New creates a listing in the given initial status.
func New(kind Kind, ownerID *string, now time.Time) *Listing {
	return &Listing{
		BaseEntity: entity.NewBaseEntity(now),
		OwnerID:    ownerID,
		Kind:       kind,
		Status:     StatusDraft,
	}
}

// Validate implements entity.Validatable.
func (l *Listing) Validate(ctx context.Context) error {
	if l.Kind != KindSale && l.Kind != KindWanted {
		return apperror.NewValidation("kind must be sale or wanted").
			WithDetail("field", "kind")
	}
	if l.Title == "" {
		return apperror.NewValidation("title is required").
			WithDetail("field", "title")
	}
	if l.Kind == KindSale {
		if l.Price == nil || l.Price.IsNegative() {
			return apperror.NewValidation("sale listings require a non-negative price").
				WithDetail("field", "price")
		}
		if l.Budget != nil {
			return apperror.NewValidation("sale listings cannot carry a budget").
				WithDetail("field", "budget")
		}
	}
	if l.Kind == KindWanted {
		if l.Budget == nil || l.Budget.IsNegative() {
			return apperror.NewValidation("wanted posts require a non-negative budget").
				WithDetail("field", "budget")
		}
		if l.Price != nil {
			return apperror.NewValidation("wanted posts cannot carry a price").
				WithDetail("field", "price")
		}
	}
	if !ValidStatus(l.Status) {
		return apperror.NewValidation("unknown status").
			WithDetail("field", "status").WithDetail("status", string(l.Status))
	}
	return nil
}

// IsOwner reports whether userID owns the listing.
// Unowned listings have no owner; the manage secret is the only handle.
func (l *Listing) IsOwner(userID string) bool {
	return l.OwnerID != nil && userID != "" && *l.OwnerID == userID
}

// IsResolved reports whether the listing reached a resolved status.
func (l *Listing) IsResolved() bool {
	return l.Status == StatusSold || l.Status == StatusClosed
}

// ResolvedStatus returns the resolved status matching the listing kind.
func (l *Listing) ResolvedStatus() Status {
	if l.Kind == KindWanted {
		return StatusClosed
	}
	return StatusSold
}

// IsPublic reports whether the listing is visible to non-owners.
func (l *Listing) IsPublic() bool {
	return l.Status == StatusActive
}

// FeaturedActive reports whether the listing is inside its featuring window.
// A nil FeaturedUntil on a featured row is legacy "until admin clears".
func (l *Listing) FeaturedActive(now time.Time) bool {
	if !l.Featured {
		return false
	}
	return l.FeaturedUntil == nil || l.FeaturedUntil.After(now)
}

// --- Manage secrets ---

// MintManageSecret generates a fresh manage secret and its bcrypt hash.
// The plaintext secret is returned to the caller exactly once.
func MintManageSecret() (secret, hash string, err error) {
	secret = id.New().String()
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return secret, string(h), nil
}

// VerifyManageSecret reports whether secret matches the listing's token hash.
func (l *Listing) VerifyManageSecret(secret string) bool {
	if l.ManageTokenHash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(l.ManageTokenHash), []byte(secret)) == nil
}
