package user

import (
	"strings"
	"time"
)

// Account roles. Every user carries exactly one.
const (
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// User is an account row. Password holds the bcrypt hash and never
// leaves the server.
type User struct {
	ID            int64      `db:"id" json:"id"`
	Username      string     `db:"username" json:"username"`
	Password      string     `db:"password" json:"-"`
	FName         string     `db:"fname" json:"fname"`
	LName         string     `db:"lname" json:"lname"`
	Gender        *string    `db:"gender" json:"gender,omitempty"`
	Email         string     `db:"email" json:"email"`
	Role          string     `db:"role" json:"role"`
	BloodType     *string    `db:"blood_type" json:"blood_type,omitempty"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	Address       *string    `db:"address" json:"address,omitempty"`
	ProfileImage  *string    `db:"profile_image" json:"profile_image,omitempty"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// FullName returns the display name, e.g. "Sarah Connor".
func (u *User) FullName() string {
	return strings.TrimSpace(u.FName + " " + u.LName)
}

// Initials returns the one-letter initials used in list avatars.
func (u *User) Initials() string {
	var b strings.Builder
	if u.FName != "" {
		b.WriteString(strings.ToUpper(u.FName[:1]))
	}
	if u.LName != "" {
		b.WriteString(strings.ToUpper(u.LName[:1]))
	}
	return b.String()
}

// DoctorInfo carries the professional details attached to a doctor account.
type DoctorInfo struct {
	UserID         int64  `db:"user_id" json:"user_id"`
	LicenseNumber  string `db:"license_number" json:"license_number"`
	Specialization string `db:"specialization" json:"specialization"`
}

// Doctor is a doctor account joined with its professional details and the
// number of patients linked to it. License and specialization are pointers
// because the info row may not exist yet; templates fall back to "N/A".
type Doctor struct {
	User
	LicenseNumber  *string `db:"license_number" json:"license_number,omitempty"`
	Specialization *string `db:"specialization" json:"specialization,omitempty"`
	PatientCount   int     `db:"patient_count" json:"patient_count"`
}

// DisplayName returns the doctor name with the title prefix.
func (d *Doctor) DisplayName() string {
	return "Dr. " + d.FullName()
}

// PatientSummary is a patient account joined with the counts shown on the
// admin patients list.
type PatientSummary struct {
	User
	DoctorCount int `db:"doctor_count" json:"doctor_count"`
	TestCount   int `db:"test_count" json:"test_count"`
}

// DoctorFilter narrows the admin doctors list. Zero values and "all" match
// everything.
type DoctorFilter struct {
	Search         string
	Specialization string
	Status         string
}

// PatientFilter narrows the admin patients list.
type PatientFilter struct {
	Search string
	Status string
}
