package settings

import (
	"context"
	"fmt"

	"aqualist/internal/core/apperror"
	"aqualist/internal/core/tx"
	"aqualist/pkg/logger"
)

// Provider is the read side consumed by the listing service.
type Provider interface {
	Get(ctx context.Context) (Settings, error)
}

// Service provides read/update access to site settings.
type Service struct {
	repo      Repository
	txManager tx.Manager
}

// NewService creates a settings service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{repo: repo, txManager: txManager}
}

// Get returns current settings, falling back to defaults.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	return s.repo.Get(ctx)
}

// Update overwrites the settings row. Admin-only; the handler enforces that.
func (s *Service) Update(ctx context.Context, next Settings) error {
	if err := next.Validate(ctx); err != nil {
		return err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Save(ctx, next); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		return nil
	})
	if err != nil {
		if apperror.IsAppError(err) {
			return err
		}
		return apperror.NewInternal(err)
	}

	logger.Info(ctx, "site settings updated",
		"require_approval", next.RequireApproval,
		"listing_ttl_days", next.ListingTTLDays)
	return nil
}
