package listing

import (
	"context"
	"fmt"
	"time"

	"aqualist/internal/core/apperror"
	"aqualist/internal/core/clock"
	"aqualist/internal/core/id"
	"aqualist/internal/core/tx"
	"aqualist/internal/core/types"
	"aqualist/internal/domain/audit"
	"aqualist/internal/domain/notify"
	"aqualist/internal/domain/settings"
	"aqualist/pkg/logger"
)

// Cache is a read-through cache for public listing detail.
// Get returns (nil, nil) on miss. Implementations are best-effort.
type Cache interface {
	Get(ctx context.Context, listingID id.ID) (*Listing, error)
	Set(ctx context.Context, l *Listing) error
	Delete(ctx context.Context, listingID id.ID) error
}

// Principal identifies the caller of a service operation.
// ManageSecret carries the secret-link token for unowned listings.
type Principal struct {
	UserID       string
	IsAdmin      bool
	ManageSecret string
}

// Anonymous is the unauthenticated principal.
var Anonymous = Principal{}

// actorFor resolves the principal into a lifecycle actor for the listing.
func (p Principal) actorFor(l *Listing) (Actor, error) {
	if p.IsAdmin {
		return AdminActor(p.UserID), nil
	}
	if l.IsOwner(p.UserID) || l.VerifyManageSecret(p.ManageSecret) {
		return OwnerActor(p.UserID), nil
	}
	return Actor{}, apperror.NewForbidden("you do not control this listing")
}

// canSee reports whether the principal may read the listing at all.
func (p Principal) canSee(l *Listing) bool {
	if p.IsAdmin || l.IsOwner(p.UserID) || l.VerifyManageSecret(p.ManageSecret) {
		return true
	}
	return l.IsPublic()
}

// countsAsPublicView reports whether this read increments the views counter.
func (p Principal) countsAsPublicView(l *Listing) bool {
	return l.IsPublic() && !p.IsAdmin && !l.IsOwner(p.UserID)
}

// Service orchestrates the listing lifecycle: it runs the expiry sweep ahead
// of every operation, evaluates transitions through the engine, persists the
// outcome, and informs the best-effort emitters.
type Service struct {
	repo      Repository
	settings  settings.Provider
	txManager tx.Manager
	clock     clock.Clock
	auditor   audit.Recorder
	notifier  notify.Notifier
	cache     Cache // optional
}

// NewService creates a listing service. cache may be nil.
func NewService(
	repo Repository,
	settingsProvider settings.Provider,
	txManager tx.Manager,
	clk clock.Clock,
	auditor audit.Recorder,
	notifier notify.Notifier,
	cache Cache,
) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if auditor == nil {
		auditor = audit.Nop{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		repo:      repo,
		settings:  settingsProvider,
		txManager: txManager,
		clock:     clk,
		auditor:   auditor,
		notifier:  notifier,
		cache:     cache,
	}
}

// sweep lazily discovers expiry before any read or write touches listings.
// Owners of freshly expired listings are notified on the side channel.
func (s *Service) sweep(ctx context.Context) error {
	swept, err := s.repo.SweepExpired(ctx, s.clock.Now())
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("expiry sweep: %w", err))
	}
	if len(swept) == 0 {
		return nil
	}
	logger.Info(ctx, "expiry sweep advanced listings", "count", len(swept))
	for _, sl := range swept {
		s.invalidate(ctx, sl.ID)
		if sl.OwnerID == nil {
			continue
		}
		s.notify(ctx, *sl.OwnerID, notify.KindListingExpired, sl.Title, map[string]any{
			"listing_id": sl.ID.String(),
			"status":     string(StatusExpired),
		})
	}
	return nil
}

// --- Create ---

// CreateInput carries the content of a new listing.
type CreateInput struct {
	Kind        Kind
	Title       string
	Description string
	Category    string
	Location    string
	Price       *types.Money
	Budget      *types.Money

	// Publish submits the listing immediately instead of keeping a draft.
	Publish bool
}

// Create builds and persists a new listing. The returned secret is the
// plaintext manage token, shown to the caller exactly once.
func (s *Service) Create(ctx context.Context, in CreateInput, p Principal) (*Listing, string, error) {
	now := s.clock.Now()

	var ownerID *string
	if p.UserID != "" {
		uid := p.UserID
		ownerID = &uid
	}

	l := New(in.Kind, ownerID, now)
	l.Title = in.Title
	l.Description = in.Description
	l.Category = in.Category
	l.Location = in.Location
	l.Price = in.Price
	l.Budget = in.Budget

	if err := l.Validate(ctx); err != nil {
		return nil, "", err
	}

	secret, hash, err := MintManageSecret()
	if err != nil {
		return nil, "", apperror.NewInternal(fmt.Errorf("mint manage secret: %w", err))
	}
	l.ManageTokenHash = hash

	if in.Publish {
		cfg, err := s.settings.Get(ctx)
		if err != nil {
			return nil, "", apperror.NewInternal(fmt.Errorf("load settings: %w", err))
		}
		if cfg.RequireApproval {
			l.Status = StatusPending
		} else {
			l.Status = StatusActive
			t := now
			l.PublishedAt = &t
		}
		exp := now.Add(time.Duration(cfg.ListingTTLDays) * 24 * time.Hour)
		l.ExpiresAt = &exp
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, l)
	})
	if err != nil {
		return nil, "", wrapRepoErr(err)
	}

	logger.Info(ctx, "listing created",
		"id", l.ID, "kind", l.Kind, "status", l.Status)
	s.emitAudit(ctx, p.UserID, "listing.create", l, nil)

	return l, secret, nil
}

// --- Reads ---

// GetByID returns the listing as seen by the principal. Non-owners only see
// public listings (expired and paused rows return not-found to them) and
// their reads increment the views counter.
func (s *Service) GetByID(ctx context.Context, listingID id.ID, p Principal) (*Listing, error) {
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	if l := s.cachedPublicRead(ctx, listingID, p); l != nil {
		return l, nil
	}

	l, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return nil, wrapRepoErr(err)
	}

	if !p.canSee(l) {
		return nil, apperror.NewNotFound("listing", listingID.String())
	}

	if p.countsAsPublicView(l) {
		if err := s.repo.IncrementViews(ctx, l.ID); err != nil {
			logger.Warn(ctx, "views increment failed", "id", l.ID, "error", err)
		} else {
			l.Views++
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, l); err != nil {
				logger.Warn(ctx, "cache set failed", "id", l.ID, "error", err)
			}
		}
	}

	return l, nil
}

// cachedPublicRead serves anonymous/public detail reads from the cache.
// The featuring/expiry windows are re-checked against the clock so a stale
// entry never resurrects an expired listing.
func (s *Service) cachedPublicRead(ctx context.Context, listingID id.ID, p Principal) *Listing {
	if s.cache == nil || p.UserID != "" || p.ManageSecret != "" {
		return nil
	}
	l, err := s.cache.Get(ctx, listingID)
	if err != nil {
		logger.Warn(ctx, "cache get failed", "id", listingID, "error", err)
		return nil
	}
	if l == nil || !l.IsPublic() {
		return nil
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(s.clock.Now()) {
		return nil
	}
	if err := s.repo.IncrementViews(ctx, l.ID); err == nil {
		l.Views++
	}
	return l
}

// List returns listings visible to the principal. Requests for somebody
// else's non-public listings are silently narrowed to public statuses.
func (s *Service) List(ctx context.Context, filter ListFilter, p Principal) (ListResult, error) {
	if err := s.sweep(ctx); err != nil {
		return ListResult{}, err
	}

	ownListings := filter.OwnerID != nil && (p.IsAdmin || (p.UserID != "" && *filter.OwnerID == p.UserID))
	if !p.IsAdmin && !ownListings {
		filter.Statuses = PublicStatuses
	}
	if len(filter.Statuses) == 0 {
		if ownListings || p.IsAdmin {
			// My-listings and moderation views show the whole lifecycle
			// unless a status was asked for.
			filter.Statuses = AllStatuses
		} else {
			filter.Statuses = PublicStatuses
		}
	}
	if filter.FeaturedOnly {
		filter.Now = s.clock.Now()
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListFilter().Limit
	}

	res, err := s.repo.List(ctx, filter)
	if err != nil {
		return ListResult{}, wrapRepoErr(err)
	}
	return res, nil
}

// --- Owner status operations ---

// Publish submits a draft: straight to active, or into the pending queue
// when the site requires approval. A fresh expiry window starts either way.
func (s *Service) Publish(ctx context.Context, listingID id.ID, p Principal) (*Listing, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("load settings: %w", err))
	}
	requested := StatusActive
	if cfg.RequireApproval {
		requested = StatusPending
	}
	return s.changeStatus(ctx, listingID, p, func(l *Listing) Status { return requested },
		withFreshExpiry(cfg.ListingTTLDays))
}

// Pause hides an active listing from the public without resolving it.
func (s *Service) Pause(ctx context.Context, listingID id.ID, p Principal) (*Listing, error) {
	return s.changeStatus(ctx, listingID, p, func(*Listing) Status { return StatusPaused })
}

// Resume returns a paused listing to the public.
func (s *Service) Resume(ctx context.Context, listingID id.ID, p Principal) (*Listing, error) {
	return s.changeStatus(ctx, listingID, p, func(*Listing) Status { return StatusActive })
}

// Resolve marks a sale listing sold or a wanted post closed.
func (s *Service) Resolve(ctx context.Context, listingID id.ID, p Principal) (*Listing, error) {
	return s.changeStatus(ctx, listingID, p, func(l *Listing) Status { return l.ResolvedStatus() })
}

// Delete soft-deletes the listing. Idempotent: deleting twice succeeds and
// never overwrites deletedAt.
func (s *Service) Delete(ctx context.Context, listingID id.ID, p Principal) (*Listing, error) {
	return s.changeStatus(ctx, listingID, p, func(*Listing) Status { return StatusDeleted })
}

// statusOption mutates the listing after an accepted transition, before the
// row is written.
type statusOption func(l *Listing, now time.Time)

func withFreshExpiry(ttlDays int) statusOption {
	return func(l *Listing, now time.Time) {
		exp := now.Add(time.Duration(ttlDays) * 24 * time.Hour)
		l.ExpiresAt = &exp
	}
}

// changeStatus is the shared sweep → load → decide → persist → emit path for
// every status transition.
func (s *Service) changeStatus(
	ctx context.Context,
	listingID id.ID,
	p Principal,
	pick func(l *Listing) Status,
	opts ...statusOption,
) (*Listing, error) {
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	l, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return nil, wrapRepoErr(err)
	}

	actor, err := p.actorFor(l)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	requested := pick(l)
	patch, err := Transition(l, requested, actor, now)
	if err != nil {
		return nil, err
	}
	if patch.NoOp {
		return l, nil
	}

	prev := l.Status
	patch.Apply(l, now)
	for _, opt := range opts {
		opt(l, now)
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, l)
	})
	if err != nil {
		return nil, wrapRepoErr(err)
	}

	s.invalidate(ctx, l.ID)
	logger.Info(ctx, "listing status changed",
		"id", l.ID, "from", prev, "to", l.Status, "tier", actor.Tier)
	s.emitAudit(ctx, actor.UserID, "listing.status."+string(l.Status), l,
		map[string]any{"from": string(prev)})
	s.notifyOwner(ctx, l, actor, statusNotification(prev, l.Status))

	return l, nil
}

// --- Admin operations ---

// AdminSetStatus is the superset operator: it may set any status directly
// and auto-adjusts the restriction overlay on paused and active.
func (s *Service) AdminSetStatus(ctx context.Context, listingID id.ID, requested Status, reason string, p Principal) (*Listing, error) {
	if !p.IsAdmin {
		return nil, apperror.NewForbidden("admin privileges required")
	}
	return s.changeStatus(ctx, listingID, p,
		func(*Listing) Status { return requested },
		func(l *Listing, _ time.Time) {
			if reason != "" && l.Restrictions.Any() {
				r := reason
				l.Restrictions.Reason = &r
			}
		})
}

// SetRestrictions overwrites the moderation overlay. Admin only. The caller
// passes the complete desired overlay; there is no merging with prior state.
func (s *Service) SetRestrictions(ctx context.Context, listingID id.ID, next Restrictions, p Principal) (*Listing, error) {
	if !p.IsAdmin {
		return nil, apperror.NewForbidden("admin privileges required")
	}
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	l, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return nil, wrapRepoErr(err)
	}

	now := s.clock.Now()
	next.Normalize()
	next.Stamp(p.UserID, now)
	l.Restrictions = next
	l.Touch(now)

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, l)
	})
	if err != nil {
		return nil, wrapRepoErr(err)
	}

	s.invalidate(ctx, l.ID)
	s.emitAudit(ctx, p.UserID, "listing.restrictions", l, map[string]any{
		"block_edit":           next.BlockEdit,
		"block_pause_resume":   next.BlockPauseResume,
		"block_status_changes": next.BlockStatusChanges,
		"block_featuring":      next.BlockFeaturing,
	})
	s.notifyOwner(ctx, l, AdminActor(p.UserID), notify.KindRestrictionsSet)

	return l, nil
}

// --- Featuring ---

// FeatureInput describes a featuring request. Featured false closes the
// window; Featured true with a nil Until applies the configured default.
type FeatureInput struct {
	Featured bool
	Until    *time.Time
}

// SetFeatured opens or closes the featuring window. An admin un-feature also
// blocks further owner featuring. Legacy rows with featured set but no window
// are normalized by any write landing here.
func (s *Service) SetFeatured(ctx context.Context, listingID id.ID, in FeatureInput, p Principal) (*Listing, error) {
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	l, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return nil, wrapRepoErr(err)
	}

	actor, err := p.actorFor(l)
	if err != nil {
		return nil, err
	}

	switch l.Status {
	case StatusDeleted:
		return nil, apperror.NewRejection(apperror.CodeAlreadyDeleted,
			"Deleted listings cannot be featured")
	case StatusExpired:
		if actor.Tier != TierAdmin {
			return nil, apperror.NewRejection(apperror.CodeAlreadyExpired,
				"Expired listings cannot be featured")
		}
	}

	now := s.clock.Now()
	if !in.Featured {
		l.Featured = false
		l.FeaturedUntil = nil
		if actor.Tier == TierAdmin {
			// Owner must not silently re-feature after an admin removal.
			l.BlockFeaturing = true
			l.Restrictions.Stamp(actor.UserID, now)
		}
	} else {
		if actor.Tier == TierOwner && l.BlockFeaturing {
			return nil, apperror.NewRestricted("Featuring is blocked by a moderator")
		}
		until := in.Until
		if until == nil {
			cfg, err := s.settings.Get(ctx)
			if err != nil {
				return nil, wrapRepoErr(err)
			}
			u := now.Add(time.Duration(cfg.FeaturedDefaultDays) * 24 * time.Hour)
			until = &u
		}
		if !until.After(now) {
			return nil, apperror.NewValidation("featuredUntil must be in the future").
				WithDetail("field", "featuredUntil")
		}
		u := until.UTC()
		l.Featured = true
		l.FeaturedUntil = &u
	}
	l.Touch(now)

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, l)
	})
	if err != nil {
		return nil, wrapRepoErr(err)
	}

	s.invalidate(ctx, l.ID)
	s.emitAudit(ctx, actor.UserID, "listing.feature", l, map[string]any{
		"featured": l.Featured,
	})
	if l.Featured {
		s.notifyOwner(ctx, l, actor, notify.KindListingFeatured)
	}

	return l, nil
}

// --- Content edits ---

// ContentPatch carries the mutable content fields; nil means unchanged.
type ContentPatch struct {
	Title       *string
	Description *string
	Category    *string
	Location    *string
	Price       *types.Money
	Budget      *types.Money
}

// UpdateContent applies a content edit. Status never changes here.
func (s *Service) UpdateContent(ctx context.Context, listingID id.ID, patch ContentPatch, p Principal) (*Listing, error) {
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	l, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return nil, wrapRepoErr(err)
	}

	actor, err := p.actorFor(l)
	if err != nil {
		return nil, err
	}
	if err := CanEdit(l, actor); err != nil {
		return nil, err
	}

	if patch.Title != nil {
		l.Title = *patch.Title
	}
	if patch.Description != nil {
		l.Description = *patch.Description
	}
	if patch.Category != nil {
		l.Category = *patch.Category
	}
	if patch.Location != nil {
		l.Location = *patch.Location
	}
	if patch.Price != nil {
		l.Price = patch.Price
	}
	if patch.Budget != nil {
		l.Budget = patch.Budget
	}

	if err := l.Validate(ctx); err != nil {
		return nil, err
	}
	l.Touch(s.clock.Now())

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, l)
	})
	if err != nil {
		return nil, wrapRepoErr(err)
	}

	s.invalidate(ctx, l.ID)
	s.emitAudit(ctx, actor.UserID, "listing.edit", l, nil)
	return l, nil
}

// --- Relist ---

// Relist archives a resolved listing and creates a fresh paused copy.
// The original is moved to deleted and frozen; the copy gets a new id, a
// fresh expiry window and a fresh manage secret.
func (s *Service) Relist(ctx context.Context, listingID id.ID, p Principal) (*Listing, string, error) {
	if err := s.sweep(ctx); err != nil {
		return nil, "", err
	}

	orig, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return nil, "", wrapRepoErr(err)
	}

	actor, err := p.actorFor(orig)
	if err != nil {
		return nil, "", err
	}

	if !orig.IsResolved() {
		return nil, "", apperror.NewRejection(apperror.CodeNotResolved,
			"Only resolved listings can be relisted")
	}

	now := s.clock.Now()
	archive, err := Transition(orig, StatusDeleted, actor, now)
	if err != nil {
		return nil, "", err
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, "", apperror.NewInternal(fmt.Errorf("load settings: %w", err))
	}

	fresh := New(orig.Kind, orig.OwnerID, now)
	fresh.Title = orig.Title
	fresh.Description = orig.Description
	fresh.Category = orig.Category
	fresh.Location = orig.Location
	fresh.Price = orig.Price
	fresh.Budget = orig.Budget
	fresh.Status = StatusPaused
	exp := now.Add(time.Duration(cfg.ListingTTLDays) * 24 * time.Hour)
	fresh.ExpiresAt = &exp

	secret, hash, err := MintManageSecret()
	if err != nil {
		return nil, "", apperror.NewInternal(fmt.Errorf("mint manage secret: %w", err))
	}
	fresh.ManageTokenHash = hash

	if err := fresh.Validate(ctx); err != nil {
		return nil, "", err
	}

	// Archive and copy are one atomic unit: a relist must never leave a
	// resolved original without its replacement, or vice versa.
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		archive.Apply(orig, now)
		if err := s.repo.Update(ctx, orig); err != nil {
			return fmt.Errorf("archive original: %w", err)
		}
		if err := s.repo.Create(ctx, fresh); err != nil {
			return fmt.Errorf("create relisted copy: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", wrapRepoErr(err)
	}

	s.invalidate(ctx, orig.ID)
	logger.Info(ctx, "listing relisted",
		"original_id", orig.ID, "new_id", fresh.ID)
	s.emitAudit(ctx, actor.UserID, "listing.relist", fresh,
		map[string]any{"original_id": orig.ID.String()})

	return fresh, secret, nil
}

// --- Emitters / cache ---

func (s *Service) invalidate(ctx context.Context, listingID id.ID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, listingID); err != nil {
		logger.Warn(ctx, "cache invalidation failed", "id", listingID, "error", err)
	}
}

// emitAudit records the action on a detached context so a slow or failing
// audit store never blocks or cancels the finished transition.
func (s *Service) emitAudit(ctx context.Context, actorUserID, action string, l *Listing, meta map[string]any) {
	bg := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(bg, 5*time.Second)
		defer cancel()
		s.auditor.Record(ctx, actorUserID, action, "listing", l.ID.String(), meta)
	}()
}

// notifyOwner informs the listing owner, skipping self-notifications.
func (s *Service) notifyOwner(ctx context.Context, l *Listing, actor Actor, kind string) {
	if kind == "" || l.OwnerID == nil || *l.OwnerID == actor.UserID {
		return
	}
	s.notify(ctx, *l.OwnerID, kind, l.Title, map[string]any{
		"listing_id": l.ID.String(),
		"status":     string(l.Status),
	})
}

// notify sends on a detached context so a slow broker never blocks a request.
func (s *Service) notify(ctx context.Context, toUser, kind, title string, meta map[string]any) {
	bg := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(bg, 5*time.Second)
		defer cancel()
		s.notifier.Notify(ctx, toUser, kind, title, "", meta)
	}()
}

// statusNotification maps a transition to the owner-facing notification kind.
func statusNotification(from, to Status) string {
	switch {
	case from == StatusPending && to == StatusActive:
		return notify.KindListingApproved
	case from == StatusPending && to == StatusDeleted:
		return notify.KindListingRejected
	case to == StatusPaused:
		return notify.KindListingPaused
	case to == StatusActive:
		return notify.KindListingRestored
	}
	return ""
}

// wrapRepoErr keeps structured errors and hides raw database failures.
func wrapRepoErr(err error) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err)
}
