package medtest

import (
	"context"
	"time"
)

// Repository is the persistence contract for tests, their files and the
// diagnostic model cards.
type Repository interface {
	CreateTest(ctx context.Context, t *Test) error
	GetTest(ctx context.Context, id int64) (*Test, error)
	// UpdateReview writes the review fields of t: status, reviewer,
	// timestamp, result and comment.
	UpdateReview(ctx context.Context, t *Test) error
	SetReviewRequest(ctx context.Context, testID, doctorID int64, at time.Time) error

	// Report listings join reviewer and model names, newest first.
	ReportsByPatient(ctx context.Context, patientID int64) ([]*Report, error)
	RecentByPatient(ctx context.Context, patientID int64, limit int) ([]*Report, error)
	CountByPatient(ctx context.Context, patientID int64) (int, error)
	CountPendingByPatient(ctx context.Context, patientID int64) (int, error)

	// Doctor-side listings cover the tests of the doctor's linked
	// patients.
	PendingForDoctor(ctx context.Context, doctorID int64, limit int) ([]*Report, error)
	CountPendingForDoctor(ctx context.Context, doctorID int64) (int, error)
	ReviewRequestsForDoctor(ctx context.Context, doctorID int64, limit int) ([]*ReviewRequest, error)
	CountReviewRequestsForDoctor(ctx context.Context, doctorID int64) (int, error)
	ReviewedByDoctor(ctx context.Context, doctorID int64, limit int) ([]*Report, error)

	AddFile(ctx context.Context, f *TestFile) error
	FilesByTest(ctx context.Context, testID int64) ([]*TestFile, error)
	FilesForTests(ctx context.Context, testIDs []int64) (map[int64][]*TestFile, error)

	ModelByName(ctx context.Context, name string) (*Model, error)
	ModelByID(ctx context.Context, id int64) (*Model, error)
	ListModels(ctx context.Context) ([]*Model, error)
	IncrementTestsCount(ctx context.Context, modelID int64) error
	CreateModel(ctx context.Context, m *Model) error
}
