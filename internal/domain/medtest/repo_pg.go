package medtest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
)

type testRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &testRepoPG{pool: pool}
}

func (r *testRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const testCols = "id, patient_id, model_id, notes, created_at, reviewed_by, reviewed_at, " +
	"review_status, result, comment, confidence, review_requested_from, review_requested_at"

// reportQuery joins every test with its reviewer and model names.
const reportQuery = `
	SELECT t.id, t.patient_id, t.model_id, t.notes, t.created_at, t.reviewed_by, t.reviewed_at,
	       t.review_status, t.result, t.comment, t.confidence, t.review_requested_from, t.review_requested_at,
	       u.fname, u.lname, m.name
	FROM tests t
	LEFT JOIN users u ON u.id = t.reviewed_by
	LEFT JOIN models m ON m.id = t.model_id`

func (r *testRepoPG) CreateTest(ctx context.Context, t *Test) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO tests (patient_id, model_id, notes, review_status, result, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		t.PatientID, t.ModelID, t.Notes, t.ReviewStatus, t.Result, t.Confidence,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("test create: %w", err)
	}
	return nil
}

func (r *testRepoPG) GetTest(ctx context.Context, id int64) (*Test, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+testCols+` FROM tests WHERE id = $1`, id)
	t, err := scanTest(row)
	if err != nil {
		return nil, fmt.Errorf("test get: %w", err)
	}
	return t, nil
}

func (r *testRepoPG) UpdateReview(ctx context.Context, t *Test) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE tests
		SET review_status = $2, reviewed_by = $3, reviewed_at = $4, result = $5, comment = $6
		WHERE id = $1`,
		t.ID, t.ReviewStatus, t.ReviewedBy, t.ReviewedAt, t.Result, t.Comment,
	)
	if err != nil {
		return fmt.Errorf("test review update: %w", err)
	}
	return nil
}

func (r *testRepoPG) SetReviewRequest(ctx context.Context, testID, doctorID int64, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE tests SET review_requested_from = $2, review_requested_at = $3 WHERE id = $1`,
		testID, doctorID, at,
	)
	if err != nil {
		return fmt.Errorf("review request set: %w", err)
	}
	return nil
}

func (r *testRepoPG) ReportsByPatient(ctx context.Context, patientID int64) ([]*Report, error) {
	rows, err := r.conn(ctx).Query(ctx,
		reportQuery+` WHERE t.patient_id = $1 ORDER BY t.created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("reports by patient: %w", err)
	}
	return collectReports(rows, "reports by patient")
}

func (r *testRepoPG) RecentByPatient(ctx context.Context, patientID int64, limit int) ([]*Report, error) {
	rows, err := r.conn(ctx).Query(ctx,
		reportQuery+` WHERE t.patient_id = $1 ORDER BY t.created_at DESC LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent tests: %w", err)
	}
	return collectReports(rows, "recent tests")
}

func (r *testRepoPG) CountByPatient(ctx context.Context, patientID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM tests WHERE patient_id = $1`, patientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("test count: %w", err)
	}
	return n, nil
}

func (r *testRepoPG) CountPendingByPatient(ctx context.Context, patientID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM tests WHERE patient_id = $1 AND review_status = 'pending'`,
		patientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pending test count: %w", err)
	}
	return n, nil
}

func (r *testRepoPG) PendingForDoctor(ctx context.Context, doctorID int64, limit int) ([]*Report, error) {
	rows, err := r.conn(ctx).Query(ctx, reportQuery+`
		WHERE t.review_status = 'pending'
		  AND t.patient_id IN (SELECT patient_id FROM doctor_patients WHERE doctor_id = $1)
		ORDER BY t.created_at DESC
		LIMIT $2`,
		doctorID, limit)
	if err != nil {
		return nil, fmt.Errorf("pending tests for doctor: %w", err)
	}
	return collectReports(rows, "pending tests for doctor")
}

func (r *testRepoPG) CountPendingForDoctor(ctx context.Context, doctorID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM tests
		WHERE review_status = 'pending'
		  AND patient_id IN (SELECT patient_id FROM doctor_patients WHERE doctor_id = $1)`,
		doctorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pending count for doctor: %w", err)
	}
	return n, nil
}

func (r *testRepoPG) ReviewRequestsForDoctor(ctx context.Context, doctorID int64, limit int) ([]*ReviewRequest, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT t.id, t.patient_id, u.fname || ' ' || u.lname, t.review_requested_at, t.notes
		FROM tests t
		JOIN users u ON u.id = t.patient_id
		WHERE t.review_requested_from = $1 AND t.review_status = 'pending'
		ORDER BY t.review_requested_at DESC
		LIMIT $2`,
		doctorID, limit)
	if err != nil {
		return nil, fmt.Errorf("review requests: %w", err)
	}
	defer rows.Close()

	var requests []*ReviewRequest
	for rows.Next() {
		var rr ReviewRequest
		err := rows.Scan(&rr.TestID, &rr.PatientID, &rr.PatientName, &rr.RequestedAt, &rr.Notes)
		if err != nil {
			return nil, fmt.Errorf("review requests: %w", err)
		}
		requests = append(requests, &rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("review requests: %w", err)
	}
	return requests, nil
}

func (r *testRepoPG) CountReviewRequestsForDoctor(ctx context.Context, doctorID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM tests WHERE review_requested_from = $1 AND review_status = 'pending'`,
		doctorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("review request count: %w", err)
	}
	return n, nil
}

func (r *testRepoPG) ReviewedByDoctor(ctx context.Context, doctorID int64, limit int) ([]*Report, error) {
	rows, err := r.conn(ctx).Query(ctx,
		reportQuery+` WHERE t.reviewed_by = $1 ORDER BY t.created_at DESC LIMIT $2`, doctorID, limit)
	if err != nil {
		return nil, fmt.Errorf("reviewed tests: %w", err)
	}
	return collectReports(rows, "reviewed tests")
}

func (r *testRepoPG) AddFile(ctx context.Context, f *TestFile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO test_files (test_id, name, extension, path, type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		f.TestID, f.Name, f.Extension, f.Path, f.Type,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("test file add: %w", err)
	}
	return nil
}

const fileCols = "id, test_id, name, extension, path, type, created_at"

func (r *testRepoPG) FilesByTest(ctx context.Context, testID int64) ([]*TestFile, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+fileCols+` FROM test_files WHERE test_id = $1 ORDER BY created_at, id`, testID)
	if err != nil {
		return nil, fmt.Errorf("test files: %w", err)
	}
	return collectFiles(rows)
}

func (r *testRepoPG) FilesForTests(ctx context.Context, testIDs []int64) (map[int64][]*TestFile, error) {
	if len(testIDs) == 0 {
		return map[int64][]*TestFile{}, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+fileCols+` FROM test_files WHERE test_id = ANY($1) ORDER BY created_at, id`, testIDs)
	if err != nil {
		return nil, fmt.Errorf("test files: %w", err)
	}
	files, err := collectFiles(rows)
	if err != nil {
		return nil, err
	}
	byTest := make(map[int64][]*TestFile, len(testIDs))
	for _, f := range files {
		byTest[f.TestID] = append(byTest[f.TestID], f)
	}
	return byTest, nil
}

const modelCols = "id, name, accuracy, tests_count, created_at"

func (r *testRepoPG) ModelByName(ctx context.Context, name string) (*Model, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+modelCols+` FROM models WHERE name = $1`, name)
	m, err := scanModel(row)
	if err != nil {
		return nil, fmt.Errorf("model get: %w", err)
	}
	return m, nil
}

func (r *testRepoPG) ModelByID(ctx context.Context, id int64) (*Model, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+modelCols+` FROM models WHERE id = $1`, id)
	m, err := scanModel(row)
	if err != nil {
		return nil, fmt.Errorf("model get: %w", err)
	}
	return m, nil
}

func (r *testRepoPG) ListModels(ctx context.Context) ([]*Model, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+modelCols+` FROM models ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("models list: %w", err)
	}
	defer rows.Close()

	var models []*Model
	for rows.Next() {
		var m Model
		err := rows.Scan(&m.ID, &m.Name, &m.Accuracy, &m.TestsCount, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("models list: %w", err)
		}
		models = append(models, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("models list: %w", err)
	}
	return models, nil
}

func (r *testRepoPG) IncrementTestsCount(ctx context.Context, modelID int64) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE models SET tests_count = tests_count + 1 WHERE id = $1`, modelID)
	if err != nil {
		return fmt.Errorf("model tests count: %w", err)
	}
	return nil
}

func (r *testRepoPG) CreateModel(ctx context.Context, m *Model) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO models (name, accuracy)
		VALUES ($1, $2)
		RETURNING id, tests_count, created_at`,
		m.Name, m.Accuracy,
	).Scan(&m.ID, &m.TestsCount, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("model create: %w", err)
	}
	return nil
}

func scanTest(row pgx.Row) (*Test, error) {
	var t Test
	err := row.Scan(
		&t.ID, &t.PatientID, &t.ModelID, &t.Notes, &t.CreatedAt, &t.ReviewedBy, &t.ReviewedAt,
		&t.ReviewStatus, &t.Result, &t.Comment, &t.Confidence, &t.ReviewRequestedFrom, &t.ReviewRequestedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanModel(row pgx.Row) (*Model, error) {
	var m Model
	err := row.Scan(&m.ID, &m.Name, &m.Accuracy, &m.TestsCount, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectReports(rows pgx.Rows, op string) ([]*Report, error) {
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		var rep Report
		err := rows.Scan(
			&rep.ID, &rep.PatientID, &rep.ModelID, &rep.Notes, &rep.CreatedAt, &rep.ReviewedBy, &rep.ReviewedAt,
			&rep.ReviewStatus, &rep.Result, &rep.Comment, &rep.Confidence, &rep.ReviewRequestedFrom, &rep.ReviewRequestedAt,
			&rep.ReviewerFName, &rep.ReviewerLName, &rep.ModelName,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		reports = append(reports, &rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return reports, nil
}

func collectFiles(rows pgx.Rows) ([]*TestFile, error) {
	defer rows.Close()

	var files []*TestFile
	for rows.Next() {
		var f TestFile
		err := rows.Scan(&f.ID, &f.TestID, &f.Name, &f.Extension, &f.Path, &f.Type, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("test files: %w", err)
		}
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("test files: %w", err)
	}
	return files, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
