package stats

import (
	"context"
	"time"

	"github.com/Rawan567/blood-diagnosis-api/internal/domain/message"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/user"
)

// DayCount is one day's registration total as stored, before the chart
// formatting.
type DayCount struct {
	Day   time.Time
	Count int
}

// Repository holds the aggregate queries dashboards are built from.
// Per-test and per-history numbers come from those domains' repos.
type Repository interface {
	UserCounts(ctx context.Context) (*UserCounts, error)
	CountTests(ctx context.Context) (int, error)
	MessageCounts(ctx context.Context) (total, unread int, err error)

	// RegistrationsByDay groups user signups per calendar day from the
	// given instant on. Days without signups are absent.
	RegistrationsByDay(ctx context.Context, since time.Time) ([]DayCount, error)
	GenderDistribution(ctx context.Context) ([]LabelCount, error)
	BloodTypeDistribution(ctx context.Context) ([]LabelCount, error)

	RecentUsers(ctx context.Context, limit int) ([]*user.User, error)
	RecentMessages(ctx context.Context, limit int) ([]*message.Message, error)

	CountLinkedActivePatients(ctx context.Context, doctorID int64) (int, error)
	RecentLinkedPatients(ctx context.Context, doctorID int64, limit int) ([]*user.User, error)
}
