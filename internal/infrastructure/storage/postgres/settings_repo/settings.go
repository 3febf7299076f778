// Package settings_repo persists the singleton site settings row.
package settings_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"aqualist/internal/core/apperror"
	"aqualist/internal/domain/settings"
	"aqualist/internal/infrastructure/storage/postgres"
)

const tableName = "site_settings"

// The table holds at most one row, keyed by a fixed singleton id.
const singletonID = 1

var _ settings.Repository = (*Repo)(nil)

// Repo is the PostgreSQL settings repository.
type Repo struct {
	txManager *postgres.TxManager
}

// NewRepo creates a settings repository.
func NewRepo(txManager *postgres.TxManager) *Repo {
	return &Repo{txManager: txManager}
}

func (r *Repo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Get returns the stored settings, or defaults when none were ever saved.
func (r *Repo) Get(ctx context.Context) (settings.Settings, error) {
	q := r.builder().
		Select("require_approval", "listing_ttl_days", "featured_default_days", "version").
		From(tableName).
		Where(squirrel.Eq{"id": singletonID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return settings.Settings{}, fmt.Errorf("build query: %w", err)
	}

	var s settings.Settings
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return settings.Default(), nil
		}
		return settings.Settings{}, fmt.Errorf("get settings: %w", err)
	}

	return s, nil
}

// Save upserts the singleton row with optimistic locking on version.
func (r *Repo) Save(ctx context.Context, s settings.Settings) error {
	q := r.builder().
		Insert(tableName).
		Columns("id", "require_approval", "listing_ttl_days", "featured_default_days", "version").
		Values(singletonID, s.RequireApproval, s.ListingTTLDays, s.FeaturedDefaultDays, s.Version+1).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			require_approval = EXCLUDED.require_approval,
			listing_ttl_days = EXCLUDED.listing_ttl_days,
			featured_default_days = EXCLUDED.featured_default_days,
			version = EXCLUDED.version
			WHERE `+tableName+`.version = ?`, s.Version)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(tableName, singletonID)
	}

	return nil
}
