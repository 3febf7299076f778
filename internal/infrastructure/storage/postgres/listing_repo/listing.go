// Package listing_repo provides the PostgreSQL implementation of the
// listing repository.
package listing_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"aqualist/internal/core/apperror"
	"aqualist/internal/core/id"
	"aqualist/internal/domain/listing"
	"aqualist/internal/infrastructure/storage/postgres"
)

const tableName = "listings"

// Compile-time check.
var _ listing.Repository = (*Repo)(nil)

// Repo is the PostgreSQL listing repository.
type Repo struct {
	txManager  *postgres.TxManager
	selectCols []string
}

// NewRepo creates a listing repository backed by the given transaction manager.
func NewRepo(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager:  txManager,
		selectCols: postgres.ExtractDBColumns[listing.Listing](),
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) baseSelect() squirrel.SelectBuilder {
	return r.Builder().
		Select(r.selectCols...).
		From(tableName)
}

// Create inserts a new listing using its "db" tags.
func (r *Repo) Create(ctx context.Context, l *listing.Listing) error {
	data := postgres.StructToMap(l)
	if len(data) == 0 {
		return fmt.Errorf("no db tags found in listing")
	}

	filteredData := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filteredData[col] = val
		}
	}

	q := r.Builder().
		Insert(tableName).
		SetMap(filteredData)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", tableName, err)
	}

	return nil
}

// GetByID retrieves a listing by ID.
func (r *Repo) GetByID(ctx context.Context, listingID id.ID) (*listing.Listing, error) {
	l := &listing.Listing{}

	q := r.baseSelect().
		Where(squirrel.Eq{"id": listingID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, l, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableName, listingID.String())
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}

	return l, nil
}

// Update writes the listing back with optimistic locking. The row version
// must match the in-memory version the listing was loaded with; the write
// bumps it by one.
func (r *Repo) Update(ctx context.Context, l *listing.Listing) error {
	data := postgres.StructToMap(l)
	if len(data) == 0 {
		return fmt.Errorf("no db tags found in listing")
	}

	version, ok := data["version"].(int)
	if !ok {
		return fmt.Errorf("listing has no version field")
	}

	filteredData := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		switch col {
		case "id", "version":
			continue
		case "views":
			// Views move through IncrementViews only, so a stale in-memory
			// counter never clobbers concurrent reads.
			continue
		}
		if val, ok := data[col]; ok {
			filteredData[col] = val
		}
	}

	q := r.Builder().
		Update(tableName).
		SetMap(filteredData).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": l.ID}).
		Where(squirrel.Eq{"version": version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", tableName, err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(tableName, l.ID)
	}

	l.SetVersion(version + 1)
	return nil
}

// SweepExpired advances every live listing whose expiry instant has passed.
// One statement, idempotent, safe to run on every request. RETURNING hands
// the moved rows back so the service can notify their owners.
func (r *Repo) SweepExpired(ctx context.Context, now time.Time) ([]listing.SweptListing, error) {
	sql, args, err := r.sweepQuery(now).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sweep: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("sweep expired: %w", err)
	}
	defer rows.Close()

	var swept []listing.SweptListing
	for rows.Next() {
		var s listing.SweptListing
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Title); err != nil {
			return nil, fmt.Errorf("scan swept row: %w", err)
		}
		swept = append(swept, s)
	}

	return swept, rows.Err()
}

func (r *Repo) sweepQuery(now time.Time) squirrel.UpdateBuilder {
	return r.Builder().
		Update(tableName).
		Set("status", listing.StatusExpired).
		Set("updated_at", now.UTC()).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.NotEq{"status": []listing.Status{listing.StatusExpired, listing.StatusDeleted}}).
		Where(squirrel.NotEq{"expires_at": nil}).
		Where(squirrel.LtOrEq{"expires_at": now.UTC()}).
		Suffix("RETURNING id, owner_id, title")
}

// IncrementViews bumps the views counter without touching the row version,
// so detail reads never conflict with concurrent edits.
func (r *Repo) IncrementViews(ctx context.Context, listingID id.ID) error {
	q := r.Builder().
		Update(tableName).
		Set("views", squirrel.Expr("views + 1")).
		Where(squirrel.Eq{"id": listingID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build increment views: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(tableName, listingID.String())
	}

	return nil
}

// List retrieves listings with filtering and pagination.
func (r *Repo) List(ctx context.Context, filter listing.ListFilter) (listing.ListResult, error) {
	result := listing.ListResult{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.baseSelect()
	q = r.applyFilter(q, filter)

	// Count total (before pagination)
	countQ := r.Builder().
		Select("COUNT(*)").
		FromSelect(q, "sub")

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	orderBy, err := r.parseOrderBy(filter.OrderBy)
	if err != nil {
		return result, err
	}
	q = q.OrderBy(orderBy)

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list: %w", err)
	}

	return result, nil
}

// applyFilter translates ListFilter into WHERE clauses.
func (r *Repo) applyFilter(q squirrel.SelectBuilder, filter listing.ListFilter) squirrel.SelectBuilder {
	if len(filter.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": filter.Statuses})
	}

	if filter.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": *filter.Kind})
	}

	if filter.OwnerID != nil {
		q = q.Where(squirrel.Eq{"owner_id": *filter.OwnerID})
	}

	if filter.Category != "" {
		q = q.Where(squirrel.Eq{"category": filter.Category})
	}

	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"title": pattern},
			squirrel.ILike{"description": pattern},
		})
	}

	if filter.FeaturedOnly {
		// Rows with featured set but no window are legacy "until cleared"
		// entries and stay in the rail.
		q = q.Where(squirrel.Eq{"featured": true})
		q = q.Where(squirrel.Or{
			squirrel.Eq{"featured_until": nil},
			squirrel.Gt{"featured_until": filter.Now.UTC()},
		})
	}

	return q
}

func (r *Repo) parseOrderBy(orderBy string) (string, error) {
	allowed := map[string]struct{}{
		"created_at":   {},
		"updated_at":   {},
		"published_at": {},
		"expires_at":   {},
		"price":        {},
		"views":        {},
		"title":        {},
	}

	if orderBy == "" {
		return "published_at DESC NULLS LAST", nil
	}

	direction := "ASC"
	field := orderBy
	if strings.HasPrefix(orderBy, "-") {
		direction = "DESC"
		field = strings.TrimPrefix(orderBy, "-")
	} else if strings.HasPrefix(orderBy, "+") {
		field = strings.TrimPrefix(orderBy, "+")
	}

	field = strings.TrimSpace(field)
	if _, ok := allowed[field]; !ok {
		return "", apperror.NewValidation("invalid orderBy").WithDetail("orderBy", orderBy)
	}

	if field == "published_at" || field == "expires_at" {
		return field + " " + direction + " NULLS LAST", nil
	}
	return field + " " + direction, nil
}
