package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
)

type historyRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &historyRepoPG{pool: pool}
}

func (r *historyRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const historyCols = "id, patient_id, doctor_id, medical_condition, treatment, notes, created_at"

func (r *historyRepoPG) Create(ctx context.Context, rec *MedicalHistory) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_history (patient_id, doctor_id, medical_condition, treatment, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		rec.PatientID, rec.DoctorID, rec.Condition, rec.Treatment, rec.Notes,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("history create: %w", err)
	}
	return nil
}

func (r *historyRepoPG) GetByID(ctx context.Context, id int64) (*MedicalHistory, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+historyCols+` FROM medical_history WHERE id = $1`, id)
	rec, err := scanHistory(row)
	if err != nil {
		return nil, fmt.Errorf("history get by id: %w", err)
	}
	return rec, nil
}

func (r *historyRepoPG) Update(ctx context.Context, rec *MedicalHistory) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_history
		SET medical_condition = $2, treatment = $3, notes = $4
		WHERE id = $1`,
		rec.ID, rec.Condition, rec.Treatment, rec.Notes,
	)
	if err != nil {
		return fmt.Errorf("history update: %w", err)
	}
	return nil
}

func (r *historyRepoPG) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM medical_history WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("history delete: %w", err)
	}
	return nil
}

func (r *historyRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT h.id, h.patient_id, h.doctor_id, h.medical_condition, h.treatment, h.notes, h.created_at,
		       u.fname, u.lname
		FROM medical_history h
		LEFT JOIN users u ON u.id = h.doctor_id
		WHERE h.patient_id = $1
		ORDER BY h.created_at DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("history list by patient: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.PatientID, &e.DoctorID, &e.Condition, &e.Treatment, &e.Notes, &e.CreatedAt,
			&e.DoctorFName, &e.DoctorLName,
		)
		if err != nil {
			return nil, fmt.Errorf("history list by patient: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history list by patient: %w", err)
	}
	return entries, nil
}

func scanHistory(row pgx.Row) (*MedicalHistory, error) {
	var rec MedicalHistory
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.DoctorID, &rec.Condition, &rec.Treatment, &rec.Notes, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
