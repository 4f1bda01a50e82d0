package history

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Rawan567/blood-diagnosis-api/internal/domain/care"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
)

// Sentinel errors surfaced to users verbatim when diagnosis operations
// are denied or fail.
var (
	ErrAccountDeactivated = errors.New("Your account is deactivated")
	ErrPatientDeactivated = errors.New("Patient's account is deactivated")
	ErrPatientNotFound    = errors.New("Patient not found")
	ErrNotLinked          = errors.New("You don't have access to this patient")
	ErrCannotAdd          = errors.New("Unauthorized to add diagnosis")
	ErrRecordNotFound     = errors.New("Medical record not found")
	ErrUpdateNotOwner     = errors.New("You can only update your own diagnosis records")
	ErrCannotUpdate       = errors.New("Unauthorized to update this diagnosis")
	ErrDeleteNotOwner     = errors.New("You can only delete your own diagnosis records")
	ErrCannotDelete       = errors.New("Unauthorized to delete this diagnosis")
)

type Service struct {
	records Repository
	policy  *care.Service
}

func NewService(records Repository, policy *care.Service) *Service {
	return &Service{records: records, policy: policy}
}

// DiagnosisForm carries the submitted diagnosis fields.
type DiagnosisForm struct {
	Condition string
	Treatment string
	Notes     string
}

// Create records a diagnosis for the patient with p as the author.
func (s *Service) Create(ctx context.Context, p *auth.Principal, patientID int64, in DiagnosisForm) (*MedicalHistory, error) {
	d, err := s.policy.CanAddDiagnosis(ctx, p, patientID)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, addDenied(d.Reason)
	}

	doctorID := p.ID
	rec := &MedicalHistory{
		PatientID: patientID,
		DoctorID:  &doctorID,
		Condition: in.Condition,
		Treatment: optional(in.Treatment),
		Notes:     optional(in.Notes),
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges the submitted fields into an existing record. Blank fields
// keep their stored value. The returned patient id is set whenever the
// record was found, including on denials, so callers can redirect back to
// the patient's profile.
func (s *Service) Update(ctx context.Context, p *auth.Principal, recordID int64, in DiagnosisForm) (int64, error) {
	d, err := s.policy.CanModifyDiagnosis(ctx, p, recordID)
	if err != nil {
		return 0, err
	}
	if d.Reason == care.ReasonRecordNotFound {
		return 0, ErrRecordNotFound
	}

	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRecordNotFound
		}
		return 0, err
	}
	if !d.Allowed {
		return rec.PatientID, updateDenied(d.Reason)
	}

	if in.Condition != "" {
		rec.Condition = in.Condition
	}
	if in.Treatment != "" {
		rec.Treatment = optional(in.Treatment)
	}
	if in.Notes != "" {
		rec.Notes = optional(in.Notes)
	}
	if err := s.records.Update(ctx, rec); err != nil {
		return rec.PatientID, err
	}
	return rec.PatientID, nil
}

// Delete removes a record. Doctors may only delete their own records.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, recordID int64) (int64, error) {
	d, err := s.policy.CanModifyDiagnosis(ctx, p, recordID)
	if err != nil {
		return 0, err
	}
	if d.Reason == care.ReasonRecordNotFound {
		return 0, ErrRecordNotFound
	}

	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRecordNotFound
		}
		return 0, err
	}
	if !d.Allowed {
		return rec.PatientID, deleteDenied(d.Reason)
	}

	if err := s.records.Delete(ctx, recordID); err != nil {
		return rec.PatientID, err
	}
	return rec.PatientID, nil
}

// ListForPatient returns the patient's diagnosis history, newest first.
func (s *Service) ListForPatient(ctx context.Context, patientID int64) ([]*Entry, error) {
	return s.records.ListByPatient(ctx, patientID)
}

func addDenied(reason string) error {
	switch reason {
	case care.ReasonDeactivated:
		return ErrAccountDeactivated
	case care.ReasonDeactivatedPatient:
		return ErrPatientDeactivated
	case care.ReasonPatientNotFound:
		return ErrPatientNotFound
	case care.ReasonNotLinked:
		return ErrNotLinked
	}
	return ErrCannotAdd
}

func updateDenied(reason string) error {
	if reason == care.ReasonNotOwner {
		return ErrUpdateNotOwner
	}
	return ErrCannotUpdate
}

func deleteDenied(reason string) error {
	if reason == care.ReasonNotOwner {
		return ErrDeleteNotOwner
	}
	return ErrCannotDelete
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
