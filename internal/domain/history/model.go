// Package history manages diagnosis records, the per-patient medical
// history doctors maintain.
package history

import (
	"strings"
	"time"
)

// MedicalHistory is one diagnosis record. DoctorID goes NULL when the
// author's account is removed; the record itself stays with the patient.
type MedicalHistory struct {
	ID        int64     `db:"id"`
	PatientID int64     `db:"patient_id"`
	DoctorID  *int64    `db:"doctor_id"`
	Condition string    `db:"medical_condition"`
	Treatment *string   `db:"treatment"`
	Notes     *string   `db:"notes"`
	CreatedAt time.Time `db:"created_at"`
}

// Entry is a record joined with its author's name for listings.
type Entry struct {
	MedicalHistory
	DoctorFName *string
	DoctorLName *string
}

// DoctorName renders the author for display, "Unknown" once the account
// is gone.
func (e *Entry) DoctorName() string {
	if e.DoctorFName == nil && e.DoctorLName == nil {
		return "Unknown"
	}
	name := "Dr."
	if e.DoctorFName != nil {
		name += " " + *e.DoctorFName
	}
	if e.DoctorLName != nil {
		name += " " + *e.DoctorLName
	}
	return strings.Join(strings.Fields(name), " ")
}
