// Package medtest manages diagnostic test records: CBC sheet analysis,
// blood smear image uploads, the stored result files, and the review
// workflow between patients and doctors.
package medtest

import (
	"fmt"
	"strings"
	"time"
)

// Review statuses a test moves through. Every test starts pending; a
// reviewing doctor marks it accepted or rejected, or resets it.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Roles a stored file plays for its test.
const (
	FileInput  = "input"
	FileOutput = "output"
)

// Names of the seeded diagnostic models.
const (
	CBCModelName   = "CBC Anemia Detection"
	ImageModelName = "Blood Cell Image Classification"
)

// Test is one diagnostic record owned by a patient. Result and
// Confidence hold the screening outcome from upload time; a reviewing
// doctor may overwrite Result with their own wording.
type Test struct {
	ID                  int64      `db:"id"`
	PatientID           int64      `db:"patient_id"`
	ModelID             *int64     `db:"model_id"`
	Notes               *string    `db:"notes"`
	CreatedAt           time.Time  `db:"created_at"`
	ReviewedBy          *int64     `db:"reviewed_by"`
	ReviewedAt          *time.Time `db:"reviewed_at"`
	ReviewStatus        string     `db:"review_status"`
	Result              *string    `db:"result"`
	Comment             *string    `db:"comment"`
	Confidence          *float64   `db:"confidence"`
	ReviewRequestedFrom *int64     `db:"review_requested_from"`
	ReviewRequestedAt   *time.Time `db:"review_requested_at"`
}

// ResultLabel renders the stored result, "Pending" while there is none.
func (t *Test) ResultLabel() string {
	if t.Result == nil || *t.Result == "" {
		return "Pending"
	}
	return *t.Result
}

// NotesLabel renders the notes with a placeholder for empty ones.
func (t *Test) NotesLabel() string {
	if t.Notes == nil || *t.Notes == "" {
		return "No notes"
	}
	return *t.Notes
}

// ConfidenceLabel renders the screening confidence as a percentage,
// empty when the test carries none.
func (t *Test) ConfidenceLabel() string {
	if t.Confidence == nil {
		return ""
	}
	return fmt.Sprintf("%.1f%%", *t.Confidence*100)
}

// TestFile is one stored artifact of a test: the uploaded input or the
// annotated output sheet. Path is relative to the uploads root.
type TestFile struct {
	ID        int64     `db:"id"`
	TestID    int64     `db:"test_id"`
	Name      string    `db:"name"`
	Extension string    `db:"extension"`
	Path      string    `db:"path"`
	Type      string    `db:"type"`
	CreatedAt time.Time `db:"created_at"`
}

// Model is a diagnostic model card as shown on the public models page.
type Model struct {
	ID         int64     `db:"id"`
	Name       string    `db:"name"`
	Accuracy   float64   `db:"accuracy"`
	TestsCount int64     `db:"tests_count"`
	CreatedAt  time.Time `db:"created_at"`
}

// Report is a test joined with its reviewer and model names for
// listings. Files is populated only where the view shows them.
type Report struct {
	Test
	ReviewerFName *string
	ReviewerLName *string
	ModelName     *string
	Files         []*TestFile
}

// ReviewerName renders the reviewing doctor, empty when unreviewed.
func (r *Report) ReviewerName() string {
	if r.ReviewerFName == nil && r.ReviewerLName == nil {
		return ""
	}
	name := "Dr."
	if r.ReviewerFName != nil {
		name += " " + *r.ReviewerFName
	}
	if r.ReviewerLName != nil {
		name += " " + *r.ReviewerLName
	}
	return strings.Join(strings.Fields(name), " ")
}

// ReviewRequest is a pending review ask as listed on the doctor
// dashboard.
type ReviewRequest struct {
	TestID      int64
	PatientID   int64
	PatientName string
	RequestedAt *time.Time
	Notes       *string
}

// NotesLabel renders the request notes with a placeholder.
func (r *ReviewRequest) NotesLabel() string {
	if r.Notes == nil || *r.Notes == "" {
		return "No notes"
	}
	return *r.Notes
}

// ModelsOverview aggregates the public models page.
type ModelsOverview struct {
	Models      []*Model
	TotalModels int
	AvgAccuracy float64
	TotalTests  int64
}
