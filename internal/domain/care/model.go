// Package care manages the doctor/patient links and the access policy
// built on top of them.
package care

import (
	"strings"
	"time"
)

// LinkedDoctor is a doctor row as shown on a patient's profile. The
// professional fields fall back to placeholders when no details row exists.
type LinkedDoctor struct {
	ID             int64     `db:"id" json:"id"`
	FName          string    `db:"fname" json:"fname"`
	LName          string    `db:"lname" json:"lname"`
	Email          string    `db:"email" json:"email"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	Specialization string    `db:"specialization" json:"specialization"`
	LicenseNumber  string    `db:"license_number" json:"license_number"`
	ProfileImage   *string   `db:"profile_image" json:"profile_image,omitempty"`
	LinkedAt       time.Time `db:"linked_at" json:"linked_at"`
}

// Name returns the doctor's display name with the title prefix.
func (d *LinkedDoctor) Name() string {
	return "Dr. " + strings.TrimSpace(d.FName+" "+d.LName)
}

// PatientCard is one row of the doctor's patient roster. Linked reports
// whether the viewing doctor holds the link.
type PatientCard struct {
	ID           int64     `db:"id" json:"id"`
	FName        string    `db:"fname" json:"fname"`
	LName        string    `db:"lname" json:"lname"`
	Email        string    `db:"email" json:"email"`
	Gender       *string   `db:"gender" json:"gender,omitempty"`
	BloodType    *string   `db:"blood_type" json:"blood_type,omitempty"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	ProfileImage *string   `db:"profile_image" json:"profile_image,omitempty"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	Linked       bool      `db:"linked" json:"linked"`
}

// FullName returns the patient's display name.
func (p *PatientCard) FullName() string {
	return strings.TrimSpace(p.FName + " " + p.LName)
}

// Initials returns the avatar initials.
func (p *PatientCard) Initials() string {
	var b strings.Builder
	if p.FName != "" {
		b.WriteString(strings.ToUpper(p.FName[:1]))
	}
	if p.LName != "" {
		b.WriteString(strings.ToUpper(p.LName[:1]))
	}
	return b.String()
}

// RosterFilter narrows the doctor's patient roster.
type RosterFilter struct {
	Search    string
	BloodType string
	Gender    string
	MineOnly  bool
}

// Denial reasons. Handlers translate these into redirects and messages.
const (
	ReasonDeactivated        = "deactivated"
	ReasonDeactivatedPatient = "deactivated_patient"
	ReasonNotLinked          = "not_linked"
	ReasonUnauthorized       = "unauthorized"
	ReasonPatientNotFound    = "patient_not_found"
	ReasonRecordNotFound     = "record_not_found"
	ReasonNotOwner           = "not_owner"
)

// Decision is a policy outcome. Reason is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// LinkResult describes a link attempt. A patient holds at most one doctor
// link, so an existing link blocks new ones.
type LinkResult struct {
	Patient     *AccountState
	Created     bool
	AlreadyMine bool
	OtherDoctor *LinkedDoctor
}

// AccountState is the slim user projection policy checks and link flows
// read.
type AccountState struct {
	ID     int64
	Role   string
	Active bool
	FName  string
	LName  string
}

// FullName returns the account's display name.
func (a *AccountState) FullName() string {
	return strings.TrimSpace(a.FName + " " + a.LName)
}
