package care

import (
	"context"
	"errors"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
)

// ErrPatientNotFound is returned by link operations on a missing or
// non-patient account.
var ErrPatientNotFound = errors.New("patient not found")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// -- Links --

// LinkPatient attaches a patient to a doctor. A patient holds at most one
// doctor link; attempts against a claimed patient report the holder.
func (s *Service) LinkPatient(ctx context.Context, doctorID, patientID int64) (*LinkResult, error) {
	patient, err := s.requirePatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	doctors, err := s.repo.DoctorsOfPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(doctors) > 0 {
		if doctors[0].ID == doctorID {
			return &LinkResult{Patient: patient, AlreadyMine: true}, nil
		}
		return &LinkResult{Patient: patient, OtherDoctor: doctors[0]}, nil
	}

	created, err := s.repo.Link(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	return &LinkResult{Patient: patient, Created: created}, nil
}

// UnlinkPatient detaches a patient from a doctor and reports whether a
// link existed.
func (s *Service) UnlinkPatient(ctx context.Context, doctorID, patientID int64) (bool, *AccountState, error) {
	patient, err := s.requirePatient(ctx, patientID)
	if err != nil {
		return false, nil, err
	}
	removed, err := s.repo.Unlink(ctx, doctorID, patientID)
	if err != nil {
		return false, nil, err
	}
	return removed, patient, nil
}

// UnlinkFromDoctors drops every link the patient holds and returns the
// doctor the patient was linked to, or nil when there was none.
func (s *Service) UnlinkFromDoctors(ctx context.Context, patientID int64) (*LinkedDoctor, error) {
	doctors, err := s.repo.DoctorsOfPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(doctors) == 0 {
		return nil, nil
	}
	if _, err := s.repo.UnlinkAll(ctx, patientID); err != nil {
		return nil, err
	}
	return doctors[0], nil
}

func (s *Service) IsLinked(ctx context.Context, doctorID, patientID int64) (bool, error) {
	return s.repo.IsLinked(ctx, doctorID, patientID)
}

func (s *Service) DoctorsOfPatient(ctx context.Context, patientID int64) ([]*LinkedDoctor, error) {
	return s.repo.DoctorsOfPatient(ctx, patientID)
}

// Roster lists the patients visible to a doctor. Admins pass doctorID 0
// and see everyone.
func (s *Service) Roster(ctx context.Context, doctorID int64, f RosterFilter) ([]*PatientCard, error) {
	return s.repo.Roster(ctx, doctorID, f)
}

func (s *Service) requirePatient(ctx context.Context, patientID int64) (*AccountState, error) {
	a, err := s.repo.AccountState(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.Role != "patient" {
		return nil, ErrPatientNotFound
	}
	return a, nil
}

// -- Policy --

// CanViewPatient decides whether p may open a patient's data. Admins see
// everyone, patients see themselves, doctors see linked patients.
func (s *Service) CanViewPatient(ctx context.Context, p *auth.Principal, patientID int64) (Decision, error) {
	if !p.Active {
		return deny(ReasonDeactivated), nil
	}

	patient, err := s.repo.AccountState(ctx, patientID)
	if err != nil {
		return Decision{}, err
	}
	if patient == nil || patient.Role != "patient" {
		return deny(ReasonPatientNotFound), nil
	}
	if !patient.Active {
		return deny(ReasonDeactivatedPatient), nil
	}

	switch p.Role {
	case "admin":
		return allow(), nil
	case "patient":
		if p.ID == patientID {
			return allow(), nil
		}
		return deny(ReasonUnauthorized), nil
	case "doctor":
		linked, err := s.repo.IsLinked(ctx, p.ID, patientID)
		if err != nil {
			return Decision{}, err
		}
		if linked {
			return allow(), nil
		}
		return deny(ReasonNotLinked), nil
	}
	return deny(ReasonUnauthorized), nil
}

// CanAddDiagnosis decides whether p may write a medical history record for
// the patient.
func (s *Service) CanAddDiagnosis(ctx context.Context, p *auth.Principal, patientID int64) (Decision, error) {
	if !p.Active {
		return deny(ReasonDeactivated), nil
	}
	if p.Role != "doctor" && p.Role != "admin" {
		return deny(ReasonUnauthorized), nil
	}

	patient, err := s.repo.AccountState(ctx, patientID)
	if err != nil {
		return Decision{}, err
	}
	if patient == nil || patient.Role != "patient" {
		return deny(ReasonPatientNotFound), nil
	}
	if !patient.Active {
		return deny(ReasonDeactivatedPatient), nil
	}

	if p.Role == "admin" {
		return allow(), nil
	}
	linked, err := s.repo.IsLinked(ctx, p.ID, patientID)
	if err != nil {
		return Decision{}, err
	}
	if !linked {
		return deny(ReasonNotLinked), nil
	}
	return allow(), nil
}

// CanModifyDiagnosis decides whether p may update or delete a medical
// history record. Doctors may only touch their own records.
func (s *Service) CanModifyDiagnosis(ctx context.Context, p *auth.Principal, recordID int64) (Decision, error) {
	if !p.Active {
		return deny(ReasonDeactivated), nil
	}
	if p.Role != "doctor" && p.Role != "admin" {
		return deny(ReasonUnauthorized), nil
	}

	ownerID, found, err := s.repo.HistoryRecordOwner(ctx, recordID)
	if err != nil {
		return Decision{}, err
	}
	if !found {
		return deny(ReasonRecordNotFound), nil
	}
	if p.Role == "admin" {
		return allow(), nil
	}
	if ownerID == nil || *ownerID != p.ID {
		return deny(ReasonNotOwner), nil
	}
	return allow(), nil
}

// CanUploadTest decides whether p may submit tests at all.
func (s *Service) CanUploadTest(p *auth.Principal) Decision {
	if !p.Active {
		return deny(ReasonDeactivated)
	}
	switch p.Role {
	case "doctor", "patient", "admin":
		return allow()
	}
	return deny(ReasonUnauthorized)
}

// CanManageUsers decides whether p may administer accounts.
func (s *Service) CanManageUsers(p *auth.Principal) Decision {
	if !p.Active {
		return deny(ReasonDeactivated)
	}
	if p.Role != "admin" {
		return deny(ReasonUnauthorized)
	}
	return allow()
}
