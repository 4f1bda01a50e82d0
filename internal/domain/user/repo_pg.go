package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
	"github.com/Rawan567/blood-diagnosis-api/pkg/pagination"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const userCols = `id, username, password, fname, lname, gender, email, role, blood_type,
	phone, address, profile_image, is_active, deactivated_at, created_at`

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (username, password, fname, lname, gender, email, role, blood_type,
			phone, address, profile_image, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id, created_at`,
		u.Username, u.Password, u.FName, u.LName, u.Gender, u.Email, u.Role, u.BloodType,
		u.Phone, u.Address, u.ProfileImage, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("user create: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Username, &u.Password, &u.FName, &u.LName, &u.Gender, &u.Email, &u.Role,
		&u.BloodType, &u.Phone, &u.Address, &u.ProfileImage, &u.IsActive, &u.DeactivatedAt,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("user get by id: %w", err)
	}
	return u, nil
}

func (r *userRepoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, fmt.Errorf("user get by username: %w", err)
	}
	return u, nil
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, fmt.Errorf("user get by email: %w", err)
	}
	return u, nil
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users
		SET username = $2, fname = $3, lname = $4, gender = $5, email = $6,
			blood_type = $7, phone = $8, address = $9
		WHERE id = $1`,
		u.ID, u.Username, u.FName, u.LName, u.Gender, u.Email, u.BloodType, u.Phone, u.Address,
	)
	if err != nil {
		return fmt.Errorf("user update: %w", err)
	}
	return nil
}

func (r *userRepoPG) UpdatePassword(ctx context.Context, id int64, hash string) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE users SET password = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("user update password: %w", err)
	}
	return nil
}

func (r *userRepoPG) UpdateProfileImage(ctx context.Context, id int64, path *string) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE users SET profile_image = $2 WHERE id = $1`, id, path)
	if err != nil {
		return fmt.Errorf("user update profile image: %w", err)
	}
	return nil
}

// SetActive flips the account flag and stamps deactivated_at so the cleanup
// job can tell how long an account has been switched off.
func (r *userRepoPG) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users
		SET is_active = $2,
			deactivated_at = CASE WHEN $2 THEN NULL ELSE NOW() END
		WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return fmt.Errorf("user set active: %w", err)
	}
	return nil
}

func (r *userRepoPG) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("user delete: %w", err)
	}
	return nil
}

func (r *userRepoPG) UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND id <> $2)`,
		username, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("username taken: %w", err)
	}
	return taken, nil
}

func (r *userRepoPG) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> $2)`,
		email, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("email taken: %w", err)
	}
	return taken, nil
}

const doctorCols = `u.id, u.username, u.password, u.fname, u.lname, u.gender, u.email, u.role, u.blood_type,
	u.phone, u.address, u.profile_image, u.is_active, u.deactivated_at, u.created_at,
	d.license_number, d.specialization,
	(SELECT COUNT(*) FROM doctor_patients dp WHERE dp.doctor_id = u.id) AS patient_count`

func scanDoctorRows(rows pgx.Rows) (*Doctor, error) {
	var d Doctor
	err := rows.Scan(
		&d.ID, &d.Username, &d.Password, &d.FName, &d.LName, &d.Gender, &d.Email, &d.Role,
		&d.BloodType, &d.Phone, &d.Address, &d.ProfileImage, &d.IsActive, &d.DeactivatedAt,
		&d.CreatedAt, &d.LicenseNumber, &d.Specialization, &d.PatientCount,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func doctorWhere(f DoctorFilter) (string, []any) {
	where := []string{`u.role = 'doctor'`}
	var args []any
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(u.fname ILIKE $%d OR u.lname ILIKE $%d OR u.email ILIKE $%d)`, n, n, n))
	}
	if f.Specialization != "" && f.Specialization != "all" {
		args = append(args, f.Specialization)
		where = append(where, fmt.Sprintf(`d.specialization = $%d`, len(args)))
	}
	switch f.Status {
	case "active":
		where = append(where, `u.is_active = TRUE`)
	case "inactive":
		where = append(where, `u.is_active = FALSE`)
	}
	return strings.Join(where, " AND "), args
}

func (r *userRepoPG) ListDoctors(ctx context.Context, f DoctorFilter, pg pagination.Params) ([]*Doctor, int, error) {
	where, args := doctorWhere(f)

	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM users u LEFT JOIN doctors_info d ON d.user_id = u.id WHERE `+where,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("doctor list: %w", err)
	}

	args = append(args, pg.Limit, pg.Offset)
	q := fmt.Sprintf(`SELECT `+doctorCols+`
		FROM users u
		LEFT JOIN doctors_info d ON d.user_id = u.id
		WHERE `+where+`
		ORDER BY u.created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("doctor list: %w", err)
	}
	defer rows.Close()

	var doctors []*Doctor
	for rows.Next() {
		d, err := scanDoctorRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("doctor list: %w", err)
		}
		doctors = append(doctors, d)
	}
	return doctors, total, rows.Err()
}

func (r *userRepoPG) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+`
		FROM users u
		LEFT JOIN doctors_info d ON d.user_id = u.id
		WHERE u.id = $1 AND u.role = 'doctor'`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("doctor get: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("doctor get: %w", err)
		}
		return nil, fmt.Errorf("doctor get: %w", pgx.ErrNoRows)
	}
	d, err := scanDoctorRows(rows)
	if err != nil {
		return nil, fmt.Errorf("doctor get: %w", err)
	}
	return d, nil
}

const patientCols = `u.id, u.username, u.password, u.fname, u.lname, u.gender, u.email, u.role, u.blood_type,
	u.phone, u.address, u.profile_image, u.is_active, u.deactivated_at, u.created_at,
	(SELECT COUNT(*) FROM doctor_patients dp WHERE dp.patient_id = u.id) AS doctor_count,
	(SELECT COUNT(*) FROM tests t WHERE t.patient_id = u.id) AS test_count`

func scanPatientRows(rows pgx.Rows) (*PatientSummary, error) {
	var p PatientSummary
	err := rows.Scan(
		&p.ID, &p.Username, &p.Password, &p.FName, &p.LName, &p.Gender, &p.Email, &p.Role,
		&p.BloodType, &p.Phone, &p.Address, &p.ProfileImage, &p.IsActive, &p.DeactivatedAt,
		&p.CreatedAt, &p.DoctorCount, &p.TestCount,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func patientWhere(f PatientFilter) (string, []any) {
	where := []string{`u.role = 'patient'`}
	var args []any
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(u.fname ILIKE $%d OR u.lname ILIKE $%d OR u.email ILIKE $%d)`, n, n, n))
	}
	switch f.Status {
	case "active":
		where = append(where, `u.is_active = TRUE`)
	case "inactive":
		where = append(where, `u.is_active = FALSE`)
	}
	return strings.Join(where, " AND "), args
}

func (r *userRepoPG) ListPatients(ctx context.Context, f PatientFilter, pg pagination.Params) ([]*PatientSummary, int, error) {
	where, args := patientWhere(f)

	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users u WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("patient list: %w", err)
	}

	args = append(args, pg.Limit, pg.Offset)
	q := fmt.Sprintf(`SELECT `+patientCols+`
		FROM users u
		WHERE `+where+`
		ORDER BY u.created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("patient list: %w", err)
	}
	defer rows.Close()

	var patients []*PatientSummary
	for rows.Next() {
		p, err := scanPatientRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("patient list: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func (r *userRepoPG) UpsertDoctorInfo(ctx context.Context, info *DoctorInfo) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctors_info (user_id, license_number, specialization)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET license_number = EXCLUDED.license_number, specialization = EXCLUDED.specialization`,
		info.UserID, info.LicenseNumber, info.Specialization,
	)
	if err != nil {
		return fmt.Errorf("doctor info upsert: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetDoctorInfo(ctx context.Context, userID int64) (*DoctorInfo, error) {
	var info DoctorInfo
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT user_id, license_number, specialization FROM doctors_info WHERE user_id = $1`,
		userID,
	).Scan(&info.UserID, &info.LicenseNumber, &info.Specialization)
	if err != nil {
		return nil, fmt.Errorf("doctor info get: %w", err)
	}
	return &info, nil
}

func (r *userRepoPG) Specializations(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT DISTINCT specialization FROM doctors_info WHERE specialization <> '' ORDER BY specialization`,
	)
	if err != nil {
		return nil, fmt.Errorf("specializations: %w", err)
	}
	defer rows.Close()

	var specs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("specializations: %w", err)
		}
		specs = append(specs, s)
	}
	return specs, rows.Err()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
