package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rawan567/blood-diagnosis-api/internal/domain/message"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/user"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
)

type statsRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &statsRepoPG{pool: pool}
}

func (r *statsRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *statsRepoPG) UserCounts(ctx context.Context) (*UserCounts, error) {
	var c UserCounts
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE role = 'admin'),
		       COUNT(*) FILTER (WHERE role = 'doctor'),
		       COUNT(*) FILTER (WHERE role = 'patient'),
		       COUNT(*) FILTER (WHERE created_at >= now() - interval '30 days')
		FROM users`,
	).Scan(&c.Total, &c.Admins, &c.Doctors, &c.Patients, &c.NewLast30Days)
	if err != nil {
		return nil, fmt.Errorf("stats user counts: %w", err)
	}
	return &c, nil
}

func (r *statsRepoPG) CountTests(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM tests`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("stats count tests: %w", err)
	}
	return n, nil
}

func (r *statsRepoPG) MessageCounts(ctx context.Context) (int, int, error) {
	var total, unread int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_read = FALSE)
		FROM messages`,
	).Scan(&total, &unread)
	if err != nil {
		return 0, 0, fmt.Errorf("stats message counts: %w", err)
	}
	return total, unread, nil
}

func (r *statsRepoPG) RegistrationsByDay(ctx context.Context, since time.Time) ([]DayCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT created_at::date AS day, COUNT(*)
		FROM users
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day`, since)
	if err != nil {
		return nil, fmt.Errorf("stats registrations by day: %w", err)
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Day, &d.Count); err != nil {
			return nil, fmt.Errorf("stats registrations by day: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *statsRepoPG) GenderDistribution(ctx context.Context) ([]LabelCount, error) {
	return r.distribution(ctx, "gender")
}

func (r *statsRepoPG) BloodTypeDistribution(ctx context.Context) ([]LabelCount, error) {
	return r.distribution(ctx, "blood_type")
}

// distribution groups users over one nullable column. The column name
// comes from the two callers above, never from input.
func (r *statsRepoPG) distribution(ctx context.Context, column string) ([]LabelCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+column+`, COUNT(*)
		FROM users
		WHERE `+column+` IS NOT NULL
		GROUP BY `+column+`
		ORDER BY `+column)
	if err != nil {
		return nil, fmt.Errorf("stats %s distribution: %w", column, err)
	}
	defer rows.Close()

	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, fmt.Errorf("stats %s distribution: %w", column, err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func (r *statsRepoPG) RecentUsers(ctx context.Context, limit int) ([]*user.User, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, fname, lname, role, created_at
		FROM users
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("stats recent users: %w", err)
	}
	defer rows.Close()

	var out []*user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.FName, &u.LName, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("stats recent users: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (r *statsRepoPG) RecentMessages(ctx context.Context, limit int) ([]*message.Message, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, email, subject, message, is_read, created_at
		FROM messages
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("stats recent messages: %w", err)
	}
	defer rows.Close()

	var out []*message.Message
	for rows.Next() {
		var m message.Message
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Subject, &m.Body, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("stats recent messages: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *statsRepoPG) CountLinkedActivePatients(ctx context.Context, doctorID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM users u
		JOIN doctor_patients dp ON dp.patient_id = u.id
		WHERE dp.doctor_id = $1 AND u.role = 'patient' AND u.is_active = TRUE`,
		doctorID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("stats linked patients count: %w", err)
	}
	return n, nil
}

func (r *statsRepoPG) RecentLinkedPatients(ctx context.Context, doctorID int64, limit int) ([]*user.User, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT u.id, u.fname, u.lname, u.role, u.created_at
		FROM users u
		JOIN doctor_patients dp ON dp.patient_id = u.id
		WHERE dp.doctor_id = $1 AND u.role = 'patient' AND u.is_active = TRUE
		ORDER BY u.created_at DESC
		LIMIT $2`, doctorID, limit)
	if err != nil {
		return nil, fmt.Errorf("stats recent linked patients: %w", err)
	}
	defer rows.Close()

	var out []*user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.FName, &u.LName, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("stats recent linked patients: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
