package settings

import "context"

// Repository persists the singleton settings row.
type Repository interface {
	// Get returns the current settings, or (Default(), nil) when the row
	// does not exist yet.
	Get(ctx context.Context) (Settings, error)

	// Save upserts the settings row with optimistic locking on version.
	Save(ctx context.Context, s Settings) error
}
