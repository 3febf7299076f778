package listing

import (
	"context"
	"testing"
	"time"

	"aqualist/internal/core/apperror"
	"aqualist/internal/core/clock"
	"aqualist/internal/core/id"
	"aqualist/internal/core/types"
	"aqualist/internal/domain/notify"
	"aqualist/internal/domain/settings"
)

func money(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}

// --- test doubles ---

type memRepo struct {
	items map[id.ID]*Listing
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[id.ID]*Listing)}
}

func (r *memRepo) Create(_ context.Context, l *Listing) error {
	cp := *l
	r.items[l.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, listingID id.ID) (*Listing, error) {
	l, ok := r.items[listingID]
	if !ok {
		return nil, apperror.NewNotFound("listings", listingID.String())
	}
	cp := *l
	return &cp, nil
}

func (r *memRepo) Update(_ context.Context, l *Listing) error {
	stored, ok := r.items[l.ID]
	if !ok || stored.Version != l.Version {
		return apperror.NewConcurrentModification("listings", l.ID)
	}
	cp := *l
	cp.Views = stored.Views
	cp.Version = l.Version + 1
	r.items[l.ID] = &cp
	l.SetVersion(l.Version + 1)
	return nil
}

func (r *memRepo) List(_ context.Context, filter ListFilter) (ListResult, error) {
	res := ListResult{Limit: filter.Limit, Offset: filter.Offset}
	for _, l := range r.items {
		if !matchesStatus(l, filter.Statuses) {
			continue
		}
		if filter.OwnerID != nil && (l.OwnerID == nil || *l.OwnerID != *filter.OwnerID) {
			continue
		}
		if filter.FeaturedOnly && !l.FeaturedActive(filter.Now) {
			continue
		}
		cp := *l
		res.Items = append(res.Items, &cp)
	}
	res.TotalCount = int64(len(res.Items))
	return res, nil
}

func matchesStatus(l *Listing, statuses []Status) bool {
	for _, s := range statuses {
		if l.Status == s {
			return true
		}
	}
	return false
}

func (r *memRepo) SweepExpired(_ context.Context, now time.Time) ([]SweptListing, error) {
	var swept []SweptListing
	for _, l := range r.items {
		if l.Status == StatusExpired || l.Status == StatusDeleted {
			continue
		}
		if l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
			l.Status = StatusExpired
			l.Touch(now)
			swept = append(swept, SweptListing{ID: l.ID, OwnerID: l.OwnerID, Title: l.Title})
		}
	}
	return swept, nil
}

func (r *memRepo) IncrementViews(_ context.Context, listingID id.ID) error {
	l, ok := r.items[listingID]
	if !ok {
		return apperror.NewNotFound("listings", listingID.String())
	}
	l.Views++
	return nil
}

type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type staticSettings struct {
	cfg settings.Settings
}

func (s staticSettings) Get(context.Context) (settings.Settings, error) {
	return s.cfg, nil
}

type fixture struct {
	repo  *memRepo
	clock *clock.Fake
	svc   *Service
}

func newFixture(t *testing.T, cfg settings.Settings) *fixture {
	t.Helper()
	repo := newMemRepo()
	clk := clock.NewFake(testNow)
	svc := NewService(repo, staticSettings{cfg}, passthroughTx{}, clk, nil, nil, nil)
	return &fixture{repo: repo, clock: clk, svc: svc}
}

func defaultSettings() settings.Settings {
	return settings.Default()
}

var (
	asOwner = Principal{UserID: "user-1"}
	asOther = Principal{UserID: "user-2"}
	asAdmin = Principal{UserID: "admin-1", IsAdmin: true}
)

func createActive(t *testing.T, f *fixture) *Listing {
	t.Helper()
	l, _, err := f.svc.Create(context.Background(), CreateInput{
		Kind:     KindSale,
		Title:    "Colony of neocaridina shrimp",
		Category: "shrimp",
		Price:    money("24.50"),
		Publish:  true,
	}, asOwner)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return l
}

// --- tests ---

func TestService_CreateDraftAndPublish(t *testing.T) {
	f := newFixture(t, defaultSettings())
	ctx := context.Background()

	l, secret, err := f.svc.Create(ctx, CreateInput{
		Kind:     KindWanted,
		Title:    "Looking for bristlenose plecos",
		Category: "catfish",
		Budget:   money("40"),
	}, asOwner)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.Status != StatusDraft {
		t.Errorf("new listing should start as draft, got %s", l.Status)
	}
	if secret == "" {
		t.Error("create must mint a manage secret")
	}
	if l.ExpiresAt != nil {
		t.Error("drafts have no expiry window")
	}

	published, err := f.svc.Publish(ctx, l.ID, asOwner)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Status != StatusActive {
		t.Errorf("status: want active got %s", published.Status)
	}
	if published.PublishedAt == nil || !published.PublishedAt.Equal(testNow) {
		t.Errorf("publishedAt: want %v got %v", testNow, published.PublishedAt)
	}
	wantExpiry := testNow.Add(30 * 24 * time.Hour)
	if published.ExpiresAt == nil || !published.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expiresAt: want %v got %v", wantExpiry, published.ExpiresAt)
	}
}

func TestService_PublishRoutesThroughApprovalQueue(t *testing.T) {
	cfg := defaultSettings()
	cfg.RequireApproval = true
	f := newFixture(t, cfg)
	ctx := context.Background()

	l, _, err := f.svc.Create(ctx, CreateInput{
		Kind:     KindSale,
		Title:    "Juvenile discus group",
		Category: "cichlids",
		Price:    money("180"),
		Publish:  true,
	}, asOwner)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.Status != StatusPending {
		t.Errorf("approval queue: want pending got %s", l.Status)
	}
	if l.PublishedAt != nil {
		t.Error("publishedAt must wait for moderator approval")
	}

	approved, err := f.svc.AdminSetStatus(ctx, l.ID, StatusActive, "", asAdmin)
	if err != nil {
		t.Fatalf("admin approve: %v", err)
	}
	if approved.Status != StatusActive || approved.PublishedAt == nil {
		t.Errorf("approval should activate and stamp publishedAt: %+v", approved)
	}
}

func TestService_ExpiryScenario(t *testing.T) {
	f := newFixture(t, defaultSettings())
	ctx := context.Background()

	l := createActive(t, f)

	// Day 31: the listing is past its window. Any read triggers the sweep.
	f.clock.Advance(31 * 24 * time.Hour)

	_, err := f.svc.GetByID(ctx, l.ID, asOther)
	if !apperror.IsNotFound(err) {
		t.Fatalf("strangers should see 404 after expiry, got %v", err)
	}

	mine, err := f.svc.GetByID(ctx, l.ID, asOwner)
	if err != nil {
		t.Fatalf("owner read after expiry: %v", err)
	}
	if mine.Status != StatusExpired {
		t.Errorf("owner sees expired status, got %s", mine.Status)
	}

	// The sweep is idempotent: a second pass moves nothing.
	swept, err := f.repo.SweepExpired(ctx, f.clock.Now())
	if err != nil || len(swept) != 0 {
		t.Errorf("second sweep should be a no-op, moved %d err=%v", len(swept), err)
	}

	// And the expired row rejects owner mutations.
	_, err = f.svc.Pause(ctx, l.ID, asOwner)
	wantCode(t, err, apperror.CodeAlreadyExpired)
}

type notifyEvent struct {
	toUser string
	kind   string
}

type capturingNotifier struct {
	ch chan notifyEvent
}

func (n *capturingNotifier) Notify(_ context.Context, toUserID, kind, title, body string, meta map[string]any) {
	n.ch <- notifyEvent{toUser: toUserID, kind: kind}
}

func TestService_SweepNotifiesExpiredOwners(t *testing.T) {
	repo := newMemRepo()
	clk := clock.NewFake(testNow)
	notifier := &capturingNotifier{ch: make(chan notifyEvent, 4)}
	svc := NewService(repo, staticSettings{defaultSettings()}, passthroughTx{}, clk, nil, notifier, nil)
	f := &fixture{repo: repo, clock: clk, svc: svc}

	l := createActive(t, f)
	clk.Advance(31 * 24 * time.Hour)

	// Any read triggers the sweep; the owner hears about the expiry.
	if _, err := svc.GetByID(context.Background(), l.ID, asOwner); err != nil {
		t.Fatalf("read after expiry: %v", err)
	}

	select {
	case ev := <-notifier.ch:
		if ev.kind != notify.KindListingExpired || ev.toUser != "user-1" {
			t.Errorf("got notification %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no expiry notification emitted")
	}
}

func TestService_DeleteIsIdempotent(t *testing.T) {
	f := newFixture(t, defaultSettings())
	ctx := context.Background()

	l := createActive(t, f)

	first, err := f.svc.Delete(ctx, l.ID, asOwner)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	deletedAt := first.DeletedAt
	if deletedAt == nil {
		t.Fatal("delete must stamp deletedAt")
	}

	f.clock.Advance(time.Hour)
	second, err := f.svc.Delete(ctx, l.ID, asOwner)
	if err != nil {
		t.Fatalf("second delete should succeed: %v", err)
	}
	if !second.DeletedAt.Equal(*deletedAt) {
		t.Errorf("deletedAt overwritten: %v vs %v", second.DeletedAt, deletedAt)
	}
}

func TestService_ActorResolution(t *testing.T) {
	f := newFixture(t, defaultSettings())
	ctx := context.Background()

	l, secret, err := f.svc.Create(ctx, CreateInput{
		Kind:     KindSale,
		Title:    "Anubias on driftwood",
		Category: "plants",
		Price:    money("15"),
		Publish:  true,
	}, asOwner)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.Pause(ctx, l.ID, asOther); !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("stranger mutation: want FORBIDDEN got %v", err)
	}

	// The manage secret grants owner-tier control without a login.
	bySecret := Principal{ManageSecret: secret}
	if _, err := f.svc.Pause(ctx, l.ID, bySecret); err != nil {
		t.Errorf("manage secret should grant control: %v", err)
	}

	if _, err := f.svc.Resume(ctx, l.ID, asAdmin); err != nil {
		t.Errorf("admin control: %v", err)
	}
}

func TestService_Relist(t *testing.T) {
	f := newFixture(t, defaultSettings())
	ctx := context.Background()

	l := createActive(t, f)

	// Only resolved listings relist.
	_, _, err := f.svc.Relist(ctx, l.ID, asOwner)
	wantCode(t, err, apperror.CodeNotResolved)

	if _, err := f.svc.Resolve(ctx, l.ID, asOwner); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	f.clock.Advance(24 * time.Hour)
	fresh, secret, err := f.svc.Relist(ctx, l.ID, asOwner)
	if err != nil {
		t.Fatalf("relist: %v", err)
	}

	if fresh.ID == l.ID {
		t.Error("relist must mint a new id")
	}
	if secret == "" {
		t.Error("relist must mint a fresh manage secret")
	}
	if fresh.Status != StatusPaused {
		t.Errorf("copy starts paused, got %s", fresh.Status)
	}
	if fresh.PublishedAt != nil || fresh.Views != 0 {
		t.Error("copy must not inherit history")
	}
	wantExpiry := f.clock.Now().Add(30 * 24 * time.Hour)
	if fresh.ExpiresAt == nil || !fresh.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("copy expiry: want %v got %v", wantExpiry, fresh.ExpiresAt)
	}

	// The original is archived and frozen.
	orig, err := f.svc.GetByID(ctx, l.ID, asOwner)
	if err != nil {
		t.Fatalf("read original: %v", err)
	}
	if orig.Status != StatusDeleted {
		t.Errorf("original: want deleted got %s", orig.Status)
	}
	_, _, err = f.svc.Relist(ctx, l.ID, asOwner)
	wantCode(t, err, apperror.CodeNotResolved)
}

func featureUntil(u time.Time) FeatureInput {
	return FeatureInput{Featured: true, Until: &u}
}

func TestService_Featuring(t *testing.T) {
	f := newFixture(t, defaultSettings())
	ctx := context.Background()

	l := createActive(t, f)

	past := testNow.Add(-time.Hour)
	if _, err := f.svc.SetFeatured(ctx, l.ID, featureUntil(past), asOwner); !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("past window: want VALIDATION_ERROR got %v", err)
	}

	until := testNow.Add(7 * 24 * time.Hour)
	featured, err := f.svc.SetFeatured(ctx, l.ID, featureUntil(until), asOwner)
	if err != nil {
		t.Fatalf("feature: %v", err)
	}
	if !featured.Featured || featured.FeaturedUntil == nil {
		t.Fatalf("featuring window not opened: %+v", featured)
	}
	if !featured.FeaturedActive(testNow) {
		t.Error("inside the window the listing is featured")
	}
	if featured.FeaturedActive(until.Add(time.Second)) {
		t.Error("past the window the listing is not featured")
	}

	// Admin un-feature blocks further owner featuring.
	unfeatured, err := f.svc.SetFeatured(ctx, l.ID, FeatureInput{}, asAdmin)
	if err != nil {
		t.Fatalf("admin unfeature: %v", err)
	}
	if unfeatured.Featured || unfeatured.FeaturedUntil != nil {
		t.Errorf("window not closed: %+v", unfeatured)
	}
	if !unfeatured.BlockFeaturing {
		t.Error("admin removal must block owner re-featuring")
	}

	_, err = f.svc.SetFeatured(ctx, l.ID, featureUntil(until), asOwner)
	wantCode(t, err, apperror.CodeRestricted)

	// An admin can still feature it.
	if _, err := f.svc.SetFeatured(ctx, l.ID, featureUntil(until), asAdmin); err != nil {
		t.Errorf("admin featuring past block: %v", err)
	}
}

func TestService_FeaturingDefaultWindow(t *testing.T) {
	cfg := defaultSettings()
	cfg.FeaturedDefaultDays = 3
	f := newFixture(t, cfg)
	ctx := context.Background()

	l := createActive(t, f)

	// No explicit until: the configured default window applies.
	featured, err := f.svc.SetFeatured(ctx, l.ID, FeatureInput{Featured: true}, asAdmin)
	if err != nil {
		t.Fatalf("feature with default window: %v", err)
	}
	if featured.FeaturedUntil == nil {
		t.Fatal("default window must stamp a concrete until")
	}
	want := testNow.Add(3 * 24 * time.Hour)
	if !featured.FeaturedUntil.Equal(want) {
		t.Errorf("featuredUntil = %v, want %v", featured.FeaturedUntil, want)
	}
	if !featured.FeaturedActive(want.Add(-time.Second)) || featured.FeaturedActive(want.Add(time.Second)) {
		t.Error("default window boundaries wrong")
	}
}

func TestService_LegacyFeaturedNormalizedOnRead(t *testing.T) {
	f := newFixture(t, defaultSettings())
	ctx := context.Background()

	l := createActive(t, f)

	// Legacy shape: featured with no window means "until an admin clears".
	stored := f.repo.items[l.ID]
	stored.Featured = true
	stored.FeaturedUntil = nil

	got, err := f.svc.GetByID(ctx, l.ID, asOwner)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !got.FeaturedActive(f.clock.Now().Add(1000 * time.Hour)) {
		t.Error("legacy featured rows stay featured indefinitely")
	}
}

func TestService_SetRestrictions(t *testing.T) {
	f := newFixture(t, defaultSettings())
	ctx := context.Background()

	l := createActive(t, f)

	reason := "reported for mislabeled species"
	next := Restrictions{BlockEdit: true, Reason: &reason}

	if _, err := f.svc.SetRestrictions(ctx, l.ID, next, asOwner); !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Fatalf("owner must not set restrictions, got %v", err)
	}

	restricted, err := f.svc.SetRestrictions(ctx, l.ID, next, asAdmin)
	if err != nil {
		t.Fatalf("set restrictions: %v", err)
	}
	if !restricted.BlockEdit || restricted.Reason == nil {
		t.Errorf("overlay not applied: %+v", restricted.Restrictions)
	}
	if restricted.OverlayUpdatedAt == nil {
		t.Error("overlay writes must be stamped")
	}

	// Edits by the owner now bounce.
	title := "renamed"
	_, err = f.svc.UpdateContent(ctx, l.ID, ContentPatch{Title: &title}, asOwner)
	wantCode(t, err, apperror.CodeRestricted)

	// Clearing all blocks also clears the reason.
	cleared, err := f.svc.SetRestrictions(ctx, l.ID, Restrictions{Reason: &reason}, asAdmin)
	if err != nil {
		t.Fatalf("clear restrictions: %v", err)
	}
	if cleared.Restrictions.Any() || cleared.Reason != nil {
		t.Errorf("overlay not cleared: %+v", cleared.Restrictions)
	}
}

func TestService_ViewsCountPublicReadsOnly(t *testing.T) {
	f := newFixture(t, defaultSettings())
	ctx := context.Background()

	l := createActive(t, f)

	if _, err := f.svc.GetByID(ctx, l.ID, asOwner); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := f.svc.GetByID(ctx, l.ID, asAdmin); err != nil {
		t.Fatalf("admin read: %v", err)
	}
	got, err := f.svc.GetByID(ctx, l.ID, asOther)
	if err != nil {
		t.Fatalf("public read: %v", err)
	}
	if got.Views != 1 {
		t.Errorf("views: want 1 (public read only) got %d", got.Views)
	}
}

func TestService_ListVisibility(t *testing.T) {
	f := newFixture(t, defaultSettings())
	ctx := context.Background()

	l := createActive(t, f)
	if _, err := f.svc.Pause(ctx, l.ID, asOwner); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// Strangers asking for paused listings get silently narrowed to public.
	res, err := f.svc.List(ctx, ListFilter{Statuses: []Status{StatusPaused}}, asOther)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("paused listings leaked to a stranger: %d items", len(res.Items))
	}

	// The owner sees their own paused listings.
	ownerID := asOwner.UserID
	res, err = f.svc.List(ctx, ListFilter{Statuses: []Status{StatusPaused}, OwnerID: &ownerID}, asOwner)
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(res.Items) != 1 {
		t.Errorf("owner should see 1 paused listing, got %d", len(res.Items))
	}

	// Without a status filter the my-listings view spans the whole
	// lifecycle, not just the public statuses.
	res, err = f.svc.List(ctx, ListFilter{OwnerID: &ownerID}, asOwner)
	if err != nil {
		t.Fatalf("list mine without status: %v", err)
	}
	if len(res.Items) != 1 {
		t.Errorf("owner should see their paused listing by default, got %d", len(res.Items))
	}

	// A stranger browsing without a status filter still only sees public rows.
	res, err = f.svc.List(ctx, ListFilter{}, asOther)
	if err != nil {
		t.Fatalf("public list: %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("paused listing leaked into the public browse: %d items", len(res.Items))
	}
}
