package care

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
)

type careRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &careRepoPG{pool: pool}
}

func (r *careRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *careRepoPG) Link(ctx context.Context, doctorID, patientID int64) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_patients (doctor_id, patient_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		doctorID, patientID,
	)
	if err != nil {
		return false, fmt.Errorf("link patient: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *careRepoPG) Unlink(ctx context.Context, doctorID, patientID int64) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM doctor_patients WHERE doctor_id = $1 AND patient_id = $2`,
		doctorID, patientID,
	)
	if err != nil {
		return false, fmt.Errorf("unlink patient: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *careRepoPG) UnlinkAll(ctx context.Context, patientID int64) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_patients WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, fmt.Errorf("unlink all: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *careRepoPG) IsLinked(ctx context.Context, doctorID, patientID int64) (bool, error) {
	var linked bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM doctor_patients WHERE doctor_id = $1 AND patient_id = $2)`,
		doctorID, patientID,
	).Scan(&linked)
	if err != nil {
		return false, fmt.Errorf("is linked: %w", err)
	}
	return linked, nil
}

func (r *careRepoPG) DoctorsOfPatient(ctx context.Context, patientID int64) ([]*LinkedDoctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT u.id, u.fname, u.lname, u.email, u.phone,
			COALESCE(d.specialization, 'General') AS specialization,
			COALESCE(d.license_number, 'N/A') AS license_number,
			u.profile_image, dp.created_at
		FROM doctor_patients dp
		JOIN users u ON u.id = dp.doctor_id AND u.role = 'doctor'
		LEFT JOIN doctors_info d ON d.user_id = u.id
		WHERE dp.patient_id = $1
		ORDER BY dp.created_at`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("doctors of patient: %w", err)
	}
	defer rows.Close()

	var doctors []*LinkedDoctor
	for rows.Next() {
		var d LinkedDoctor
		err := rows.Scan(&d.ID, &d.FName, &d.LName, &d.Email, &d.Phone,
			&d.Specialization, &d.LicenseNumber, &d.ProfileImage, &d.LinkedAt)
		if err != nil {
			return nil, fmt.Errorf("doctors of patient: %w", err)
		}
		doctors = append(doctors, &d)
	}
	return doctors, rows.Err()
}

func (r *careRepoPG) Roster(ctx context.Context, doctorID int64, f RosterFilter) ([]*PatientCard, error) {
	where := []string{`u.role = 'patient'`}
	args := []any{doctorID}

	if doctorID != 0 {
		if f.MineOnly {
			where = append(where,
				`EXISTS (SELECT 1 FROM doctor_patients dp WHERE dp.patient_id = u.id AND dp.doctor_id = $1)`)
		} else {
			// A patient claimed by another doctor is hidden unless also
			// linked to this one.
			where = append(where,
				`(NOT EXISTS (SELECT 1 FROM doctor_patients dp WHERE dp.patient_id = u.id AND dp.doctor_id <> $1)
				OR EXISTS (SELECT 1 FROM doctor_patients dp WHERE dp.patient_id = u.id AND dp.doctor_id = $1))`)
		}
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(u.fname ILIKE $%d OR u.lname ILIKE $%d OR u.email ILIKE $%d)`, n, n, n))
	}
	if f.BloodType != "" {
		args = append(args, f.BloodType)
		where = append(where, fmt.Sprintf(`u.blood_type = $%d`, len(args)))
	}
	if f.Gender != "" {
		args = append(args, f.Gender)
		where = append(where, fmt.Sprintf(`u.gender = $%d`, len(args)))
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT u.id, u.fname, u.lname, u.email, u.gender, u.blood_type, u.phone,
			u.profile_image, u.is_active, u.created_at,
			EXISTS (SELECT 1 FROM doctor_patients dp WHERE dp.patient_id = u.id AND dp.doctor_id = $1) AS linked
		FROM users u
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY u.created_at DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("patient roster: %w", err)
	}
	defer rows.Close()

	var patients []*PatientCard
	for rows.Next() {
		var p PatientCard
		err := rows.Scan(&p.ID, &p.FName, &p.LName, &p.Email, &p.Gender, &p.BloodType,
			&p.Phone, &p.ProfileImage, &p.IsActive, &p.CreatedAt, &p.Linked)
		if err != nil {
			return nil, fmt.Errorf("patient roster: %w", err)
		}
		patients = append(patients, &p)
	}
	return patients, rows.Err()
}

func (r *careRepoPG) AccountState(ctx context.Context, userID int64) (*AccountState, error) {
	var a AccountState
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, role, is_active, fname, lname FROM users WHERE id = $1`, userID,
	).Scan(&a.ID, &a.Role, &a.Active, &a.FName, &a.LName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("account state: %w", err)
	}
	return &a, nil
}

func (r *careRepoPG) HistoryRecordOwner(ctx context.Context, recordID int64) (*int64, bool, error) {
	var doctorID *int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT doctor_id FROM medical_history WHERE id = $1`, recordID).
		Scan(&doctorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("history record owner: %w", err)
	}
	return doctorID, true, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
