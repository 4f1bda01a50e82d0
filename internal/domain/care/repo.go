package care

import "context"

// Repository is the persistence contract for links and the read-only
// account lookups the policy checks need.
type Repository interface {
	// Link creates the association and reports whether a row was added.
	Link(ctx context.Context, doctorID, patientID int64) (bool, error)
	// Unlink removes the association and reports whether one existed.
	Unlink(ctx context.Context, doctorID, patientID int64) (bool, error)
	// UnlinkAll removes every doctor link a patient holds.
	UnlinkAll(ctx context.Context, patientID int64) (int64, error)
	IsLinked(ctx context.Context, doctorID, patientID int64) (bool, error)

	DoctorsOfPatient(ctx context.Context, patientID int64) ([]*LinkedDoctor, error)
	// Roster lists the patients a doctor may see: unclaimed patients plus
	// their own. A zero doctorID (admin view) lists every patient.
	Roster(ctx context.Context, doctorID int64, f RosterFilter) ([]*PatientCard, error)

	// AccountState loads the slim account projection; nil when the
	// account does not exist.
	AccountState(ctx context.Context, userID int64) (*AccountState, error)
	// HistoryRecordOwner reports the doctor who wrote a medical history
	// record; the pointer is nil when the author was removed.
	HistoryRecordOwner(ctx context.Context, recordID int64) (doctorID *int64, found bool, err error)
}
