package user

import (
	"context"

	"github.com/Rawan567/blood-diagnosis-api/pkg/pagination"
)

// Repository is the persistence contract for accounts and doctor details.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateProfileImage(ctx context.Context, id int64, path *string) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error

	// UsernameTaken and EmailTaken report whether another account already
	// holds the value; excludeID ignores one account (0 excludes none).
	UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error)
	EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error)

	ListDoctors(ctx context.Context, f DoctorFilter, pg pagination.Params) ([]*Doctor, int, error)
	ListPatients(ctx context.Context, f PatientFilter, pg pagination.Params) ([]*PatientSummary, int, error)
	GetDoctor(ctx context.Context, id int64) (*Doctor, error)

	UpsertDoctorInfo(ctx context.Context, info *DoctorInfo) error
	GetDoctorInfo(ctx context.Context, userID int64) (*DoctorInfo, error)
	Specializations(ctx context.Context) ([]string, error)
}
