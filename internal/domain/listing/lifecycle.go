package listing

import (
	"fmt"
	"time"

	"aqualist/internal/core/apperror"
)

// Patch is the outcome of an accepted transition: the new status plus the
// side effects the engine decided on. Applied to the row in one statement.
type Patch struct {
	Status Status

	// SetPublishedAt stamps publishedAt on first publication.
	SetPublishedAt bool

	// SetDeletedAt stamps deletedAt on first entry into deleted.
	SetDeletedAt bool

	// Overlay, when non-nil, replaces the restriction overlay wholesale.
	// Used by admin status sets that auto-adjust the overlay.
	Overlay *Restrictions

	// NoOp marks idempotent re-entry into a terminal state: the call
	// succeeds but nothing is written.
	NoOp bool
}

// Apply mutates l according to the patch. now stamps timestamps and the
// version/updatedAt bump; NoOp patches leave the listing untouched.
func (p Patch) Apply(l *Listing, now time.Time) {
	if p.NoOp {
		return
	}
	now = now.UTC()
	l.Status = p.Status
	if p.SetPublishedAt && l.PublishedAt == nil {
		t := now
		l.PublishedAt = &t
	}
	if p.SetDeletedAt && l.DeletedAt == nil {
		t := now
		l.DeletedAt = &t
	}
	if p.Overlay != nil {
		l.Restrictions = *p.Overlay
		l.Restrictions.Normalize()
	}
	l.Touch(now)
}

// Transition decides whether the actor may move the listing into the
// requested status. It is a total function over (state, requested, tier):
// every combination yields either a patch or a rejection with a machine
// reason. The only accepted no-ops are idempotent re-entries into deleted
// and expired.
func Transition(l *Listing, requested Status, actor Actor, now time.Time) (Patch, error) {
	if !ValidStatus(requested) {
		return Patch{}, apperror.NewValidation("unknown status").
			WithDetail("status", string(requested))
	}

	switch requested {
	case StatusExpired:
		return transitionExpired(l, actor)
	case StatusDeleted:
		return transitionDeleted(l, actor)
	}

	// Everything below mutates a live row; deleted and expired rows are
	// immutable history for owners.
	if l.Status == StatusDeleted {
		if actor.Tier != TierAdmin {
			return Patch{}, apperror.NewRejection(apperror.CodeAlreadyDeleted,
				"Deleted listings cannot change status")
		}
	} else if l.Status == StatusExpired && actor.Tier != TierAdmin {
		return Patch{}, apperror.NewRejection(apperror.CodeAlreadyExpired,
			"Expired listings cannot change status")
	}

	if actor.Tier == TierAdmin {
		return adminSetStatus(l, requested, actor, now)
	}
	if actor.Tier == TierSystem {
		return Patch{}, illegal(l.Status, requested, "the system only expires listings")
	}
	return ownerTransition(l, requested)
}

// transitionExpired handles the sweep edge: system-only, idempotent.
func transitionExpired(l *Listing, actor Actor) (Patch, error) {
	if actor.Tier != TierSystem {
		return Patch{}, illegal(l.Status, StatusExpired, "only the expiry sweep marks listings expired")
	}
	switch l.Status {
	case StatusExpired:
		return Patch{Status: StatusExpired, NoOp: true}, nil
	case StatusDeleted:
		return Patch{}, apperror.NewRejection(apperror.CodeAlreadyDeleted,
			"Deleted listings are never expired")
	}
	return Patch{Status: StatusExpired}, nil
}

// transitionDeleted handles owner delete / admin force delete / pending reject.
// Re-entry is idempotent and never overwrites deletedAt.
func transitionDeleted(l *Listing, actor Actor) (Patch, error) {
	if actor.Tier == TierSystem {
		return Patch{}, illegal(l.Status, StatusDeleted, "the system only expires listings")
	}
	if l.Status == StatusDeleted {
		return Patch{Status: StatusDeleted, NoOp: true}, nil
	}
	if actor.Tier == TierOwner && l.BlockStatusChanges {
		return Patch{}, apperror.NewRestricted("Status changes are blocked by a moderator")
	}
	return Patch{Status: StatusDeleted, SetDeletedAt: true}, nil
}

// adminSetStatus is the superset operator: any status value may be set
// directly, with overlay side effects on paused and active.
func adminSetStatus(l *Listing, requested Status, actor Actor, now time.Time) (Patch, error) {
	// Resolution stays kind-correct even for admins; sold on a wanted post
	// is corrupt data, not an authority question.
	if err := checkKind(l, requested); err != nil {
		return Patch{}, err
	}

	p := Patch{Status: requested}
	switch requested {
	case StatusActive:
		p.SetPublishedAt = true
		// Full reinstatement: all four blocks and the reason are cleared.
		cleared := Cleared()
		cleared.Stamp(actor.UserID, now)
		p.Overlay = &cleared
	case StatusPaused:
		// An admin pause must not be silently undone or hidden behind
		// featuring; status-changes stay open so the owner can resolve
		// or delete.
		overlay := l.Restrictions
		overlay.BlockPauseResume = true
		overlay.BlockFeaturing = true
		overlay.BlockStatusChanges = false
		overlay.Stamp(actor.UserID, now)
		p.Overlay = &overlay
	}
	return p, nil
}

// ownerTransition walks the owner-facing edges of the state machine.
func ownerTransition(l *Listing, requested Status) (Patch, error) {
	switch requested {
	case StatusActive:
		switch l.Status {
		case StatusDraft:
			if l.BlockStatusChanges {
				return Patch{}, apperror.NewRestricted("Status changes are blocked by a moderator")
			}
			return Patch{Status: StatusActive, SetPublishedAt: true}, nil
		case StatusPaused:
			if l.BlockPauseResume {
				return Patch{}, apperror.NewRestricted("Pausing and resuming is blocked by a moderator")
			}
			return Patch{Status: StatusActive}, nil
		case StatusPending:
			return Patch{}, illegal(l.Status, requested, "pending listings await moderator approval")
		case StatusSold, StatusClosed:
			return Patch{}, apperror.NewRejection(apperror.CodeAlreadyResolved,
				"Resolved listings cannot be reactivated; relist instead")
		}
		return Patch{}, illegal(l.Status, requested, "")

	case StatusPending:
		if l.Status == StatusDraft {
			if l.BlockStatusChanges {
				return Patch{}, apperror.NewRestricted("Status changes are blocked by a moderator")
			}
			// First publish under the approval queue: publishedAt stays
			// unset until a moderator approves.
			return Patch{Status: StatusPending}, nil
		}
		return Patch{}, illegal(l.Status, requested, "")

	case StatusPaused:
		switch l.Status {
		case StatusActive:
			if l.BlockPauseResume {
				return Patch{}, apperror.NewRestricted("Pausing and resuming is blocked by a moderator")
			}
			return Patch{Status: StatusPaused}, nil
		case StatusSold, StatusClosed:
			return Patch{}, apperror.NewRejection(apperror.CodeAlreadyResolved,
				"Resolved listings cannot be paused")
		}
		return Patch{}, illegal(l.Status, requested, "only active listings can be paused")

	case StatusSold, StatusClosed:
		if err := checkKind(l, requested); err != nil {
			return Patch{}, err
		}
		switch l.Status {
		case StatusActive, StatusPaused, StatusPending:
			if l.BlockStatusChanges {
				return Patch{}, apperror.NewRestricted("Status changes are blocked by a moderator")
			}
			return Patch{Status: requested}, nil
		case StatusSold, StatusClosed:
			return Patch{}, apperror.NewRejection(apperror.CodeAlreadyResolved,
				"Listing is already resolved")
		case StatusDraft:
			return Patch{}, apperror.NewRejection(apperror.CodeDraftMustPublishFirst,
				"Draft listings must be published before they can be resolved")
		}
		return Patch{}, illegal(l.Status, requested, "")

	case StatusDraft:
		return Patch{}, illegal(l.Status, requested, "listings cannot return to draft")
	}

	return Patch{}, illegal(l.Status, requested, "")
}

// CanEdit reports whether the actor may mutate listing content
// (title, description, price and the like, not status).
func CanEdit(l *Listing, actor Actor) error {
	switch l.Status {
	case StatusDeleted:
		return apperror.NewRejection(apperror.CodeAlreadyDeleted,
			"Deleted listings cannot be edited")
	case StatusExpired:
		return apperror.NewRejection(apperror.CodeAlreadyExpired,
			"Expired listings cannot be edited")
	}
	if actor.Tier == TierOwner && l.BlockEdit {
		return apperror.NewRestricted("Editing is blocked by a moderator")
	}
	return nil
}

// checkKind rejects resolution statuses that do not match the listing kind.
func checkKind(l *Listing, requested Status) error {
	if requested == StatusSold && l.Kind != KindSale {
		return apperror.NewRejection(apperror.CodeKindMismatch,
			"Only sale listings can be marked sold")
	}
	if requested == StatusClosed && l.Kind != KindWanted {
		return apperror.NewRejection(apperror.CodeKindMismatch,
			"Only wanted posts can be closed")
	}
	return nil
}

// illegal builds the generic rejection for an edge that does not exist.
func illegal(from, to Status, hint string) error {
	msg := fmt.Sprintf("Cannot change status from %s to %s", from, to)
	if hint != "" {
		msg += ": " + hint
	}
	return apperror.NewRejection(apperror.CodeIllegalTransition, msg)
}
