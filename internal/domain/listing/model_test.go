package listing

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestValidate_KindCrossChecks(t *testing.T) {
	ctx := context.Background()
	owner := "user-1"

	tests := []struct {
		name    string
		mutate  func(l *Listing)
		wantErr bool
	}{
		{
			name:   "valid sale",
			mutate: func(l *Listing) { l.Price = money("10") },
		},
		{
			name: "valid wanted",
			mutate: func(l *Listing) {
				l.Kind = KindWanted
				l.Budget = money("10")
			},
		},
		{
			name:    "sale without price",
			mutate:  func(l *Listing) {},
			wantErr: true,
		},
		{
			name: "sale with budget",
			mutate: func(l *Listing) {
				l.Price = money("10")
				l.Budget = money("5")
			},
			wantErr: true,
		},
		{
			name: "wanted with price",
			mutate: func(l *Listing) {
				l.Kind = KindWanted
				l.Budget = money("10")
				l.Price = money("5")
			},
			wantErr: true,
		},
		{
			name: "negative price",
			mutate: func(l *Listing) {
				l.Price = money("-1")
			},
			wantErr: true,
		},
		{
			name: "missing title",
			mutate: func(l *Listing) {
				l.Price = money("10")
				l.Title = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(KindSale, &owner, testNow)
			l.Title = "Pair of kribensis"
			l.Category = "cichlids"
			tt.mutate(l)

			err := l.Validate(ctx)
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestManageSecretRoundtrip(t *testing.T) {
	secret, hash, err := MintManageSecret()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	l := makeListing(KindSale, StatusActive)
	l.ManageTokenHash = hash

	if !l.VerifyManageSecret(secret) {
		t.Error("minted secret should verify")
	}
	if l.VerifyManageSecret("wrong-secret") {
		t.Error("wrong secret should not verify")
	}
	if l.VerifyManageSecret("") {
		t.Error("empty secret should never verify")
	}

	l.ManageTokenHash = ""
	if l.VerifyManageSecret(secret) {
		t.Error("listing without hash should reject all secrets")
	}
}

func TestListingJSONKeepsBothTimestamps(t *testing.T) {
	l := makeListing(KindSale, StatusActive)
	l.Stamp("admin-1", testNow.Add(time.Hour))

	// The entity timestamp and the overlay stamp are distinct fields and
	// both must survive serialization (the redis cache round-trips this).
	if !l.UpdatedAt.Equal(testNow) {
		t.Fatalf("entity timestamp = %v, want %v", l.UpdatedAt, testNow)
	}

	raw, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["updatedAt"]; !ok {
		t.Error("updatedAt missing from listing JSON")
	}
	if _, ok := decoded["overlayUpdatedAt"]; !ok {
		t.Error("overlayUpdatedAt missing from listing JSON")
	}

	var back Listing
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal listing: %v", err)
	}
	if !back.UpdatedAt.Equal(l.UpdatedAt) {
		t.Errorf("entity timestamp lost in roundtrip: %v", back.UpdatedAt)
	}
	if back.OverlayUpdatedAt == nil || !back.OverlayUpdatedAt.Equal(*l.OverlayUpdatedAt) {
		t.Errorf("overlay stamp lost in roundtrip: %v", back.OverlayUpdatedAt)
	}
}

func TestRestrictionsNormalize(t *testing.T) {
	reason := "flagged"

	r := Restrictions{Reason: &reason}
	r.Normalize()
	if r.Reason != nil {
		t.Error("reason without blocks must be cleared")
	}

	r = Restrictions{BlockEdit: true, Reason: &reason}
	r.Normalize()
	if r.Reason == nil {
		t.Error("reason with an active block must survive")
	}
}
