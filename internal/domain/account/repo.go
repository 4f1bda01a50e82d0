package account

import (
	"context"
	"time"
)

// Repository persists reset tokens and runs the retention purges of the
// cleanup job.
type Repository interface {
	CreateToken(ctx context.Context, t *ResetToken) error
	// GetValidToken returns the token row only while it is unused and
	// unexpired.
	GetValidToken(ctx context.Context, token string) (*ResetToken, error)
	DeleteUnusedTokens(ctx context.Context, userID int64) error
	MarkUsed(ctx context.Context, id int64) error

	// PurgeTokens removes used and expired reset tokens.
	PurgeTokens(ctx context.Context) (int64, error)
	// PurgeDeactivated permanently deletes non-admin accounts that were
	// deactivated before the cutoff.
	PurgeDeactivated(ctx context.Context, before time.Time) (int64, error)
}
