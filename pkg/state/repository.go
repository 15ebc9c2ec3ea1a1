package state

import "context"

// Repository persists checkpoints.
type Repository interface {
	// Load retrieves the last saved checkpoint.
	// Returns an empty state and nil error if none exists.
	// Returns an error only for actual read failures.
	Load(ctx context.Context) (State, error)

	// Save persists the checkpoint atomically, so a crash leaves either
	// the previous or the new checkpoint on disk.
	Save(ctx context.Context, state State) error
}
