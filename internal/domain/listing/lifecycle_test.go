package listing

import (
	"testing"
	"time"

	"aqualist/internal/core/apperror"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func makeListing(kind Kind, status Status) *Listing {
	owner := "user-1"
	l := New(kind, &owner, testNow)
	l.Title = "Breeding pair of apistogramma"
	l.Category = "cichlids"
	l.Status = status
	return l
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected rejection %s, got nil", code)
	}
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != code {
		t.Errorf("code mismatch\nwant: %s\ngot:  %s (%s)", code, appErr.Code, appErr.Message)
	}
}

func TestTransition_OwnerEdges(t *testing.T) {
	owner := OwnerActor("user-1")

	tests := []struct {
		name      string
		kind      Kind
		from      Status
		requested Status
		blocks    Restrictions
		wantErr   string // empty means accepted
		wantNoOp  bool
	}{
		{name: "publish draft", kind: KindSale, from: StatusDraft, requested: StatusActive},
		{name: "submit draft for approval", kind: KindSale, from: StatusDraft, requested: StatusPending},
		{name: "pause active", kind: KindSale, from: StatusActive, requested: StatusPaused},
		{name: "resume paused", kind: KindSale, from: StatusPaused, requested: StatusActive},
		{name: "sell active sale", kind: KindSale, from: StatusActive, requested: StatusSold},
		{name: "sell paused sale", kind: KindSale, from: StatusPaused, requested: StatusSold},
		{name: "sell pending sale", kind: KindSale, from: StatusPending, requested: StatusSold},
		{name: "close active wanted", kind: KindWanted, from: StatusActive, requested: StatusClosed},
		{name: "delete active", kind: KindSale, from: StatusActive, requested: StatusDeleted},
		{name: "delete draft", kind: KindSale, from: StatusDraft, requested: StatusDeleted},
		{name: "delete sold", kind: KindSale, from: StatusSold, requested: StatusDeleted},

		{name: "delete deleted is idempotent", kind: KindSale, from: StatusDeleted, requested: StatusDeleted, wantNoOp: true},

		{name: "pending cannot self-approve", kind: KindSale, from: StatusPending, requested: StatusActive, wantErr: apperror.CodeIllegalTransition},
		{name: "pause draft", kind: KindSale, from: StatusDraft, requested: StatusPaused, wantErr: apperror.CodeIllegalTransition},
		{name: "no return to draft", kind: KindSale, from: StatusActive, requested: StatusDraft, wantErr: apperror.CodeIllegalTransition},
		{name: "owner cannot expire", kind: KindSale, from: StatusActive, requested: StatusExpired, wantErr: apperror.CodeIllegalTransition},

		{name: "sold requires sale kind", kind: KindWanted, from: StatusActive, requested: StatusSold, wantErr: apperror.CodeKindMismatch},
		{name: "closed requires wanted kind", kind: KindSale, from: StatusActive, requested: StatusClosed, wantErr: apperror.CodeKindMismatch},

		{name: "resolve draft", kind: KindSale, from: StatusDraft, requested: StatusSold, wantErr: apperror.CodeDraftMustPublishFirst},
		{name: "resolve resolved", kind: KindSale, from: StatusSold, requested: StatusSold, wantErr: apperror.CodeAlreadyResolved},
		{name: "reactivate resolved", kind: KindSale, from: StatusSold, requested: StatusActive, wantErr: apperror.CodeAlreadyResolved},
		{name: "pause resolved", kind: KindWanted, from: StatusClosed, requested: StatusPaused, wantErr: apperror.CodeAlreadyResolved},

		{name: "deleted is immutable", kind: KindSale, from: StatusDeleted, requested: StatusActive, wantErr: apperror.CodeAlreadyDeleted},
		{name: "expired is immutable", kind: KindSale, from: StatusExpired, requested: StatusActive, wantErr: apperror.CodeAlreadyExpired},
		{name: "expired cannot resolve", kind: KindSale, from: StatusExpired, requested: StatusSold, wantErr: apperror.CodeAlreadyExpired},

		{
			name: "pause blocked by moderator",
			kind: KindSale, from: StatusActive, requested: StatusPaused,
			blocks:  Restrictions{BlockPauseResume: true},
			wantErr: apperror.CodeRestricted,
		},
		{
			name: "resume blocked by moderator",
			kind: KindSale, from: StatusPaused, requested: StatusActive,
			blocks:  Restrictions{BlockPauseResume: true},
			wantErr: apperror.CodeRestricted,
		},
		{
			name: "publish blocked by moderator",
			kind: KindSale, from: StatusDraft, requested: StatusActive,
			blocks:  Restrictions{BlockStatusChanges: true},
			wantErr: apperror.CodeRestricted,
		},
		{
			name: "resolve blocked by moderator",
			kind: KindSale, from: StatusActive, requested: StatusSold,
			blocks:  Restrictions{BlockStatusChanges: true},
			wantErr: apperror.CodeRestricted,
		},
		{
			name: "delete blocked by moderator",
			kind: KindSale, from: StatusActive, requested: StatusDeleted,
			blocks:  Restrictions{BlockStatusChanges: true},
			wantErr: apperror.CodeRestricted,
		},
		{
			name: "pause not gated by status-changes block",
			kind: KindSale, from: StatusActive, requested: StatusPaused,
			blocks: Restrictions{BlockStatusChanges: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := makeListing(tt.kind, tt.from)
			l.Restrictions = tt.blocks

			patch, err := Transition(l, tt.requested, owner, testNow)
			if tt.wantErr != "" {
				wantCode(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
			if patch.NoOp != tt.wantNoOp {
				t.Errorf("NoOp mismatch: want %v got %v", tt.wantNoOp, patch.NoOp)
			}
			if !patch.NoOp && patch.Status != tt.requested {
				t.Errorf("status mismatch: want %s got %s", tt.requested, patch.Status)
			}
		})
	}
}

func TestTransition_SystemExpiry(t *testing.T) {
	l := makeListing(KindSale, StatusActive)
	patch, err := Transition(l, StatusExpired, SystemActor, testNow)
	if err != nil {
		t.Fatalf("sweep should expire active listings: %v", err)
	}
	if patch.Status != StatusExpired || patch.NoOp {
		t.Fatalf("unexpected patch: %+v", patch)
	}

	// Re-expiry is a silent no-op.
	l.Status = StatusExpired
	patch, err = Transition(l, StatusExpired, SystemActor, testNow)
	if err != nil || !patch.NoOp {
		t.Fatalf("re-expiry should be a no-op, got patch=%+v err=%v", patch, err)
	}

	// Deleted rows never expire.
	l.Status = StatusDeleted
	_, err = Transition(l, StatusExpired, SystemActor, testNow)
	wantCode(t, err, apperror.CodeAlreadyDeleted)

	// The system has no other edges.
	l.Status = StatusActive
	_, err = Transition(l, StatusPaused, SystemActor, testNow)
	wantCode(t, err, apperror.CodeIllegalTransition)
}

func TestTransition_AdminSuperset(t *testing.T) {
	admin := AdminActor("admin-1")

	t.Run("approve pending", func(t *testing.T) {
		l := makeListing(KindSale, StatusPending)
		patch, err := Transition(l, StatusActive, admin, testNow)
		if err != nil {
			t.Fatalf("admin approval rejected: %v", err)
		}
		if !patch.SetPublishedAt {
			t.Error("approval should stamp publishedAt")
		}
	})

	t.Run("reinstate deleted clears overlay", func(t *testing.T) {
		l := makeListing(KindSale, StatusDeleted)
		reason := "spam"
		l.Restrictions = Restrictions{BlockEdit: true, BlockFeaturing: true, Reason: &reason}

		patch, err := Transition(l, StatusActive, admin, testNow)
		if err != nil {
			t.Fatalf("admin reinstatement rejected: %v", err)
		}

		patch.Apply(l, testNow)
		if l.Status != StatusActive {
			t.Errorf("status: want active got %s", l.Status)
		}
		if l.Restrictions.Any() {
			t.Errorf("overlay should be fully cleared, got %+v", l.Restrictions)
		}
		if l.Reason != nil {
			t.Error("reason should be cleared with the blocks")
		}
	})

	t.Run("admin pause imposes blocks", func(t *testing.T) {
		l := makeListing(KindSale, StatusActive)
		patch, err := Transition(l, StatusPaused, admin, testNow)
		if err != nil {
			t.Fatalf("admin pause rejected: %v", err)
		}

		patch.Apply(l, testNow)
		if !l.BlockPauseResume || !l.BlockFeaturing {
			t.Errorf("admin pause should block resume and featuring, got %+v", l.Restrictions)
		}
		if l.BlockStatusChanges {
			t.Error("owner must still be able to resolve or delete")
		}
	})

	t.Run("admin bypasses owner blocks", func(t *testing.T) {
		l := makeListing(KindSale, StatusActive)
		l.Restrictions = Restrictions{BlockStatusChanges: true}
		if _, err := Transition(l, StatusSold, admin, testNow); err != nil {
			t.Fatalf("admin should bypass status-changes block: %v", err)
		}
	})

	t.Run("kind mismatch binds admins too", func(t *testing.T) {
		l := makeListing(KindWanted, StatusActive)
		_, err := Transition(l, StatusSold, admin, testNow)
		wantCode(t, err, apperror.CodeKindMismatch)
	})

	t.Run("deleted delete stays idempotent", func(t *testing.T) {
		l := makeListing(KindSale, StatusDeleted)
		deletedAt := testNow.Add(-time.Hour)
		l.DeletedAt = &deletedAt

		patch, err := Transition(l, StatusDeleted, admin, testNow)
		if err != nil || !patch.NoOp {
			t.Fatalf("want no-op, got patch=%+v err=%v", patch, err)
		}

		patch.Apply(l, testNow)
		if !l.DeletedAt.Equal(deletedAt) {
			t.Error("deletedAt must never be overwritten")
		}
	})
}

func TestPatchApply(t *testing.T) {
	t.Run("publishedAt is write-once", func(t *testing.T) {
		l := makeListing(KindSale, StatusPaused)
		first := testNow.Add(-48 * time.Hour)
		l.PublishedAt = &first

		Patch{Status: StatusActive, SetPublishedAt: true}.Apply(l, testNow)
		if !l.PublishedAt.Equal(first) {
			t.Errorf("publishedAt overwritten: %v", l.PublishedAt)
		}
	})

	t.Run("apply advances updatedAt", func(t *testing.T) {
		l := makeListing(KindSale, StatusActive)

		Patch{Status: StatusPaused}.Apply(l, testNow.Add(time.Minute))
		if !l.UpdatedAt.After(testNow) {
			t.Errorf("updatedAt not advanced: %v", l.UpdatedAt)
		}
	})

	t.Run("overlay reason without blocks is dropped", func(t *testing.T) {
		l := makeListing(KindSale, StatusActive)
		reason := "resolved after appeal"
		overlay := Restrictions{Reason: &reason}

		Patch{Status: StatusActive, Overlay: &overlay}.Apply(l, testNow)
		if l.Reason != nil {
			t.Error("reason without any block must be normalized away")
		}
	})
}

func TestCanEdit(t *testing.T) {
	owner := OwnerActor("user-1")
	admin := AdminActor("admin-1")

	l := makeListing(KindSale, StatusActive)
	if err := CanEdit(l, owner); err != nil {
		t.Fatalf("owner should edit own active listing: %v", err)
	}

	l.Restrictions = Restrictions{BlockEdit: true}
	wantCode(t, CanEdit(l, owner), apperror.CodeRestricted)
	if err := CanEdit(l, admin); err != nil {
		t.Fatalf("edit block must not bind admins: %v", err)
	}

	l = makeListing(KindSale, StatusDeleted)
	wantCode(t, CanEdit(l, admin), apperror.CodeAlreadyDeleted)

	l = makeListing(KindSale, StatusExpired)
	wantCode(t, CanEdit(l, owner), apperror.CodeAlreadyExpired)
}
