package user

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/storage"
	"github.com/Rawan567/blood-diagnosis-api/pkg/pagination"
)

// Sentinel errors surfaced to users verbatim through flash messages, so
// their text matches the UI copy rather than Go error conventions.
var (
	ErrNotFound         = errors.New("account not found")
	ErrCredentialsTaken = errors.New("Email or username already exists")
	ErrEmailExists      = errors.New("A user with this email already exists")
	ErrEmailTaken       = errors.New("Email already exists for another user")
	ErrWrongPassword    = errors.New("Current password is incorrect")
	ErrPasswordMismatch = errors.New("New passwords do not match")
	ErrPasswordTooShort = errors.New("Password must be at least 8 characters long")
	ErrBadImageType     = errors.New("Invalid file type. Only JPG, PNG, and GIF are allowed")
)

// MinPasswordLength applies to password changes and resets.
const MinPasswordLength = 8

type Service struct {
	users Repository
	store storage.Store
	tx    db.TxRunner
}

func NewService(users Repository, store storage.Store, tx db.TxRunner) *Service {
	return &Service{users: users, store: store, tx: tx}
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// LoadPrincipal adapts the account row into the session principal. It is
// installed as the session middleware's lookup.
func (s *Service) LoadPrincipal(ctx context.Context, username string) (*auth.Principal, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	p := &auth.Principal{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		FName:    u.FName,
		LName:    u.LName,
		Email:    u.Email,
		Active:   u.IsActive,
	}
	if u.ProfileImage != nil {
		p.ProfileImage = *u.ProfileImage
	}
	return p, nil
}

// -- Doctors --

// NewDoctor is the admin "add doctor" form payload.
type NewDoctor struct {
	FName          string
	LName          string
	Email          string
	Username       string
	Password       string
	Gender         string
	BloodType      string
	Phone          string
	Address        string
	Specialization string
	LicenseNumber  string
}

func (s *Service) CreateDoctor(ctx context.Context, in NewDoctor) (*User, error) {
	if taken, err := s.users.EmailTaken(ctx, in.Email, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrCredentialsTaken
	}
	if taken, err := s.users.UsernameTaken(ctx, in.Username, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrCredentialsTaken
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Username:  in.Username,
		Password:  hash,
		FName:     in.FName,
		LName:     in.LName,
		Gender:    optional(in.Gender),
		Email:     in.Email,
		Role:      RoleDoctor,
		BloodType: optional(in.BloodType),
		Phone:     optional(in.Phone),
		Address:   optional(in.Address),
		IsActive:  true,
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		return s.users.UpsertDoctorInfo(ctx, &DoctorInfo{
			UserID:         u.ID,
			LicenseNumber:  in.LicenseNumber,
			Specialization: in.Specialization,
		})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter, pg pagination.Params) ([]*Doctor, int, error) {
	return s.users.ListDoctors(ctx, f, pg)
}

func (s *Service) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	d, err := s.users.GetDoctor(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *Service) Specializations(ctx context.Context) ([]string, error) {
	return s.users.Specializations(ctx)
}

// -- Patients --

// NewPatient is the "add patient" form payload shared by the admin and
// doctor flows.
type NewPatient struct {
	FName     string
	LName     string
	Email     string
	Phone     string
	Gender    string
	Address   string
	BloodType string
}

// CreatedPatient carries the generated credentials back to the handler so
// they can be shown once.
type CreatedPatient struct {
	Patient      *User
	TempPassword string
}

// CreatePatient registers a patient account with a username derived from
// the email local part and a random temporary password.
func (s *Service) CreatePatient(ctx context.Context, in NewPatient) (*CreatedPatient, error) {
	if taken, err := s.users.EmailTaken(ctx, in.Email, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailExists
	}

	username, err := s.uniqueUsername(ctx, in.Email)
	if err != nil {
		return nil, err
	}

	tempPassword, err := auth.GenerateTempPassword(auth.TempPasswordLength)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(tempPassword)
	if err != nil {
		return nil, err
	}

	u := &User{
		Username:  username,
		Password:  hash,
		FName:     in.FName,
		LName:     in.LName,
		Gender:    optional(in.Gender),
		Email:     in.Email,
		Role:      RolePatient,
		BloodType: optional(in.BloodType),
		Phone:     optional(in.Phone),
		Address:   optional(in.Address),
		IsActive:  true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return &CreatedPatient{Patient: u, TempPassword: tempPassword}, nil
}

// uniqueUsername derives a username from the email local part, appending a
// counter until it is free.
func (s *Service) uniqueUsername(ctx context.Context, email string) (string, error) {
	base := email
	if at := strings.Index(email, "@"); at > 0 {
		base = email[:at]
	}
	username := base
	for counter := 1; ; counter++ {
		taken, err := s.users.UsernameTaken(ctx, username, 0)
		if err != nil {
			return "", err
		}
		if !taken {
			return username, nil
		}
		username = base + strconv.Itoa(counter)
	}
}

func (s *Service) ListPatients(ctx context.Context, f PatientFilter, pg pagination.Params) ([]*PatientSummary, int, error) {
	return s.users.ListPatients(ctx, f, pg)
}

// GetPatient loads an account and confirms it is a patient.
func (s *Service) GetPatient(ctx context.Context, id int64) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != RolePatient {
		return nil, ErrNotFound
	}
	return u, nil
}

// ToggleActive flips the active flag of an account with the given role and
// returns it with the new state applied.
func (s *Service) ToggleActive(ctx context.Context, id int64, role string) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != role {
		return nil, ErrNotFound
	}
	if err := s.users.SetActive(ctx, id, !u.IsActive); err != nil {
		return nil, err
	}
	u.IsActive = !u.IsActive
	return u, nil
}

// DeletePatient removes a patient account permanently. Linked tests,
// history and files go with it through the schema's cascades.
func (s *Service) DeletePatient(ctx context.Context, id int64) (*User, error) {
	u, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return nil, err
	}
	return u, nil
}

// -- Profile --

// ProfileUpdate is the self-service account form. Specialization only
// applies to doctors and is ignored for other roles.
type ProfileUpdate struct {
	FName          string
	LName          string
	Email          string
	Phone          string
	Address        string
	Specialization string
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileUpdate) error {
	if taken, err := s.users.EmailTaken(ctx, in.Email, userID); err != nil {
		return err
	} else if taken {
		return ErrEmailTaken
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	u.FName = in.FName
	u.LName = in.LName
	u.Email = in.Email
	u.Phone = optional(in.Phone)
	u.Address = optional(in.Address)
	if err := s.users.Update(ctx, u); err != nil {
		return err
	}

	if u.Role == RoleDoctor && in.Specialization != "" {
		// Accounts registered before licensing was collected get a
		// placeholder license number.
		license := "TEMP-" + strconv.FormatInt(u.ID, 10)
		if info, err := s.users.GetDoctorInfo(ctx, u.ID); err == nil {
			license = info.LicenseNumber
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		return s.users.UpsertDoctorInfo(ctx, &DoctorInfo{
			UserID:         u.ID,
			LicenseNumber:  license,
			Specialization: in.Specialization,
		})
	}
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, userID int64, current, newPassword, confirm string) error {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(current, u.Password) {
		return ErrWrongPassword
	}
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

// UpdateProfileImage stores the uploaded image, replaces the account's
// previous one and returns the stored file.
func (s *Service) UpdateProfileImage(ctx context.Context, userID int64, filename string, r io.Reader) (*storage.StoredFile, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.Save(ctx, storage.KindProfileImage, filename, r)
	if err != nil {
		if errors.Is(err, storage.ErrBadExtension) {
			return nil, ErrBadImageType
		}
		return nil, fmt.Errorf("save profile image: %w", err)
	}

	if u.ProfileImage != nil && *u.ProfileImage != "" {
		// Best effort; a missing old file should not fail the update.
		_ = s.store.Remove(ctx, *u.ProfileImage)
	}

	if err := s.users.UpdateProfileImage(ctx, userID, &stored.Path); err != nil {
		return nil, err
	}
	return stored, nil
}

// optional maps an empty form value to NULL.
func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
