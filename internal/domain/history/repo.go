package history

import "context"

type Repository interface {
	Create(ctx context.Context, rec *MedicalHistory) error
	GetByID(ctx context.Context, id int64) (*MedicalHistory, error)
	Update(ctx context.Context, rec *MedicalHistory) error
	Delete(ctx context.Context, id int64) error
	// ListByPatient returns the patient's records newest first, joined
	// with the author names.
	ListByPatient(ctx context.Context, patientID int64) ([]*Entry, error)
}
