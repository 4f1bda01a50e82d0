package medtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Rawan567/blood-diagnosis-api/internal/cbc"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/care"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/history"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/user"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/storage"
	"github.com/Rawan567/blood-diagnosis-api/pkg/pagination"
)

// Sentinel errors surfaced to users verbatim through flash messages.
// ErrUnreadable and ErrBadSheet are wrapped with the parse detail.
var (
	ErrNoFile      = errors.New("No file was selected. Please select a file to upload.")
	ErrNoImage     = errors.New("No file was selected.")
	ErrBadCBCFile  = errors.New("Invalid file type. Please upload a file with one of these extensions: .csv")
	ErrBadImage    = errors.New("Invalid file type. Supported: .jpg, .jpeg, .png, .bmp, .tiff")
	ErrEmptySheet  = errors.New("The uploaded file is empty. Please upload a valid file with CBC data.")
	ErrSheetTooBig = errors.New("The file is too large. Maximum allowed size is 5 MB.")
	ErrNoSheetData = errors.New("The file contains no data. Please ensure your file has CBC test results.")
	ErrNoValidRows = errors.New("No valid data rows found. Please check your file format and CBC parameter names.")
	ErrUnreadable  = errors.New("Error reading file")
	ErrBadSheet    = errors.New("File validation error")
	ErrBadValues   = errors.New("Invalid CBC values provided. Please check your input.")

	ErrCBCModelMissing   = errors.New("CBC Anemia Detection model not found.")
	ErrImageModelMissing = errors.New("Blood Cell Image Classification model not found.")

	ErrTestNotFound      = errors.New("Test not found")
	ErrPatientNotFound   = errors.New("Patient not found")
	ErrNoPatientAccess   = errors.New("You don't have access to this patient's tests")
	ErrNoTestAccess      = errors.New("You don't have access to this test")
	ErrBadReviewStatus   = errors.New("Invalid review status")
	ErrDoctorUnavailable = errors.New("Doctor not found or inactive")
	ErrNotYourDoctor     = errors.New("You can only request review from your linked doctor")
)

type Service struct {
	tests   Repository
	users   user.Repository
	links   *care.Service
	records *history.Service
	store   storage.Store
	tx      db.TxRunner
	log     zerolog.Logger
}

func NewService(tests Repository, users user.Repository, links *care.Service, records *history.Service, store storage.Store, tx db.TxRunner, log zerolog.Logger) *Service {
	return &Service{
		tests:   tests,
		users:   users,
		links:   links,
		records: records,
		store:   store,
		tx:      tx,
		log:     log,
	}
}

// Patient loads a patient account, rejecting missing users and other
// roles alike.
func (s *Service) Patient(ctx context.Context, patientID int64) (*user.User, error) {
	u, err := s.users.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	if u.Role != user.RolePatient {
		return nil, ErrPatientNotFound
	}
	return u, nil
}

// CanViewPatient exposes the link policy for upload and profile pages.
func (s *Service) CanViewPatient(ctx context.Context, p *auth.Principal, patientID int64) (care.Decision, error) {
	return s.links.CanViewPatient(ctx, p, patientID)
}

// -- CBC analysis --

// RunCBCFromCSV analyzes an uploaded result sheet and records the test:
// the raw upload and the annotated sheet are stored as test files, the
// screening outcome lands in result/confidence, and the CBC model's
// counter moves. The returned string is the success flash.
func (s *Service) RunCBCFromCSV(ctx context.Context, patientID int64, filename string, content io.Reader, notes string) (*Test, string, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, "", ErrNoFile
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !storage.KindCBCResult.Allows(ext) {
		return nil, "", ErrBadCBCFile
	}

	raw, err := io.ReadAll(io.LimitReader(content, storage.MaxCSVSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if len(raw) == 0 {
		return nil, "", ErrEmptySheet
	}
	if int64(len(raw)) > storage.MaxCSVSize {
		return nil, "", ErrSheetTooBig
	}

	table, err := cbc.ParseCSV(bytes.NewReader(raw))
	if err != nil {
		return nil, "", sheetError(err)
	}
	results := cbc.ClassifyAll(table)
	annotated, err := cbc.WriteAnnotatedCSV(table, results)
	if err != nil {
		return nil, "", err
	}

	model, err := s.cbcModel(ctx)
	if err != nil {
		return nil, "", err
	}

	input, err := s.store.Save(ctx, storage.KindCBCResult, filename, bytes.NewReader(raw))
	if err != nil {
		return nil, "", err
	}
	output, err := s.store.Save(ctx, storage.KindCBCResult, filename, bytes.NewReader(annotated))
	if err != nil {
		return nil, "", err
	}

	if notes == "" {
		notes = "CBC test uploaded via " + strings.ToUpper(ext)
	}
	diagnosis, confidence := overallOutcome(results)
	t := &Test{
		PatientID:    patientID,
		ModelID:      &model.ID,
		Notes:        &notes,
		ReviewStatus: StatusPending,
		Result:       &diagnosis,
		Confidence:   &confidence,
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.tests.CreateTest(ctx, t); err != nil {
			return err
		}
		if err := s.tests.AddFile(ctx, fileRecord(t.ID, input, FileInput)); err != nil {
			return err
		}
		if err := s.tests.AddFile(ctx, fileRecord(t.ID, output, FileOutput)); err != nil {
			return err
		}
		return s.tests.IncrementTestsCount(ctx, model.ID)
	})
	if err != nil {
		return nil, "", err
	}

	msg := fmt.Sprintf("CBC analysis completed successfully! Analyzed %d sample(s) from %s file.",
		len(results), strings.ToUpper(ext))
	return t, msg, nil
}

// ManualInput carries the eight CBC parameters of the manual entry form.
type ManualInput struct {
	RBC  float64
	HGB  float64
	PCV  float64
	MCV  float64
	MCH  float64
	MCHC float64
	TLC  float64
	PLT  float64
}

// RunCBCManual analyzes hand-entered values. The annotated single-row
// sheet is stored so the detail page renders the same way as for
// uploads.
func (s *Service) RunCBCManual(ctx context.Context, patientID int64, in ManualInput, notes string) (*Test, string, error) {
	for _, v := range []float64{in.RBC, in.HGB, in.PCV, in.MCV, in.MCH, in.MCHC, in.TLC, in.PLT} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, "", ErrBadValues
		}
	}

	sample := cbc.NewSample(in.RBC, in.HGB, in.PCV, in.MCV, in.MCH, in.MCHC, in.TLC, in.PLT)
	result := cbc.Classify(sample)
	table := &cbc.Table{Samples: []cbc.Sample{sample}}
	annotated, err := cbc.WriteAnnotatedCSV(table, []cbc.Result{result})
	if err != nil {
		return nil, "", err
	}

	model, err := s.cbcModel(ctx)
	if err != nil {
		return nil, "", err
	}

	output, err := s.store.Save(ctx, storage.KindManualCBC, "manual.csv", bytes.NewReader(annotated))
	if err != nil {
		return nil, "", err
	}

	if notes == "" {
		notes = "CBC test entered manually"
	}
	diagnosis, confidence := overallOutcome([]cbc.Result{result})
	t := &Test{
		PatientID:    patientID,
		ModelID:      &model.ID,
		Notes:        &notes,
		ReviewStatus: StatusPending,
		Result:       &diagnosis,
		Confidence:   &confidence,
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.tests.CreateTest(ctx, t); err != nil {
			return err
		}
		if err := s.tests.AddFile(ctx, fileRecord(t.ID, output, FileOutput)); err != nil {
			return err
		}
		return s.tests.IncrementTestsCount(ctx, model.ID)
	})
	if err != nil {
		return nil, "", err
	}
	return t, "CBC analysis completed successfully!", nil
}

// UploadBloodImage stores a blood smear photo as a pending test. The
// classification itself waits for a doctor's review.
func (s *Service) UploadBloodImage(ctx context.Context, patientID int64, filename string, content io.Reader, description string) (*Test, string, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, "", ErrNoImage
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !storage.KindBloodImage.Allows(ext) {
		return nil, "", ErrBadImage
	}

	model, err := s.tests.ModelByName(ctx, ImageModelName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrImageModelMissing
		}
		return nil, "", err
	}

	stored, err := s.store.Save(ctx, storage.KindBloodImage, filename, content)
	if err != nil {
		return nil, "", err
	}

	if description == "" {
		description = "Blood cell image uploaded"
	}
	t := &Test{
		PatientID:    patientID,
		ModelID:      &model.ID,
		Notes:        &description,
		ReviewStatus: StatusPending,
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.tests.CreateTest(ctx, t); err != nil {
			return err
		}
		if err := s.tests.AddFile(ctx, fileRecord(t.ID, stored, FileInput)); err != nil {
			return err
		}
		return s.tests.IncrementTestsCount(ctx, model.ID)
	})
	if err != nil {
		return nil, "", err
	}
	return t, "Blood cell image uploaded successfully!", nil
}

func (s *Service) cbcModel(ctx context.Context) (*Model, error) {
	model, err := s.tests.ModelByName(ctx, CBCModelName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCBCModelMissing
		}
		return nil, err
	}
	return model, nil
}

// -- Test views --

// ResultRow is one analyzed sheet row as the detail pages render it.
type ResultRow struct {
	Index       int
	Sample      cbc.Sample
	Diagnosis   string
	Probability string
	Report      string
}

// TestDetail aggregates everything a test detail page shows. The
// doctor-facing fields (Patient) and patient-facing ones (Doctors,
// RequestedDoctor, IsLinked) are each populated by their view.
type TestDetail struct {
	Test            *Test
	Patient         *user.User
	Files           []*TestFile
	CSVFile         *TestFile
	Rows            []ResultRow
	Reviewer        *user.User
	RequestedDoctor *user.User
	Doctors         []*care.LinkedDoctor
	ModelName       string
	IsLinked        bool
}

// DoctorTestView loads a test for the reviewing doctor. Doctors only
// see tests of their linked patients; admins see all.
func (s *Service) DoctorTestView(ctx context.Context, p *auth.Principal, testID int64) (*TestDetail, error) {
	t, err := s.getTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if p.Role == user.RoleDoctor {
		linked, err := s.links.IsLinked(ctx, p.ID, t.PatientID)
		if err != nil {
			return nil, err
		}
		if !linked {
			return nil, ErrNoPatientAccess
		}
	}

	det := &TestDetail{Test: t}
	det.Patient, err = s.users.GetByID(ctx, t.PatientID)
	if err != nil {
		return nil, err
	}
	if err := s.attachCommon(ctx, det); err != nil {
		return nil, err
	}
	return det, nil
}

// PatientTestView loads a test for its owner. The doctors list feeds
// the review-request form: the linked doctors, or every active doctor
// while the patient is unclaimed.
func (s *Service) PatientTestView(ctx context.Context, p *auth.Principal, testID int64) (*TestDetail, error) {
	t, err := s.getTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if p.Role != user.RoleAdmin && t.PatientID != p.ID {
		return nil, ErrNoTestAccess
	}

	det := &TestDetail{Test: t}
	if err := s.attachCommon(ctx, det); err != nil {
		return nil, err
	}

	if t.ReviewRequestedFrom != nil {
		det.RequestedDoctor, err = s.users.GetByID(ctx, *t.ReviewRequestedFrom)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	linked, err := s.links.DoctorsOfPatient(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	det.IsLinked = len(linked) > 0
	if det.IsLinked {
		det.Doctors = linked
	} else {
		det.Doctors, err = s.activeDoctors(ctx)
		if err != nil {
			return nil, err
		}
	}
	return det, nil
}

func (s *Service) getTest(ctx context.Context, testID int64) (*Test, error) {
	t, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}
	return t, nil
}

// attachCommon loads the files, parsed sheet rows, reviewer and model
// name shared by both detail views.
func (s *Service) attachCommon(ctx context.Context, det *TestDetail) error {
	files, err := s.tests.FilesByTest(ctx, det.Test.ID)
	if err != nil {
		return err
	}
	det.Files = files
	for _, f := range files {
		if f.Extension == ".csv" && f.Type == FileOutput {
			det.CSVFile = f
			break
		}
	}
	det.Rows = s.resultRows(ctx, det.CSVFile)

	if det.Test.ReviewedBy != nil {
		det.Reviewer, err = s.users.GetByID(ctx, *det.Test.ReviewedBy)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	}
	if det.Test.ModelID != nil {
		model, err := s.tests.ModelByID(ctx, *det.Test.ModelID)
		if err == nil {
			det.ModelName = model.Name
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	}
	return nil
}

// resultRows re-screens the stored annotated sheet. The classifier is
// deterministic, so the rows match what the upload recorded. A missing
// or corrupt sheet degrades to an empty listing.
func (s *Service) resultRows(ctx context.Context, f *TestFile) []ResultRow {
	if f == nil {
		return nil
	}
	rc, err := s.store.Open(ctx, f.Path)
	if err != nil {
		s.log.Warn().Err(err).Str("path", f.Path).Msg("result sheet open failed")
		return nil
	}
	defer rc.Close()

	table, err := cbc.ParseCSV(rc)
	if err != nil {
		s.log.Warn().Err(err).Str("path", f.Path).Msg("result sheet parse failed")
		return nil
	}
	results := cbc.ClassifyAll(table)
	rows := make([]ResultRow, 0, len(results))
	for i, r := range results {
		rows = append(rows, ResultRow{
			Index:       i,
			Sample:      r.Sample,
			Diagnosis:   r.Diagnosis,
			Probability: cbc.FormatProbability(r.Probability),
			Report:      cbc.BuildReport(r),
		})
	}
	return rows
}

func (s *Service) activeDoctors(ctx context.Context) ([]*care.LinkedDoctor, error) {
	all, _, err := s.users.ListDoctors(ctx, user.DoctorFilter{Status: "active"},
		pagination.Params{Limit: pagination.MaxLimit})
	if err != nil {
		return nil, err
	}
	doctors := make([]*care.LinkedDoctor, 0, len(all))
	for _, d := range all {
		ld := &care.LinkedDoctor{
			ID:             d.ID,
			FName:          d.FName,
			LName:          d.LName,
			Email:          d.Email,
			Phone:          d.Phone,
			Specialization: "General",
			LicenseNumber:  "N/A",
			ProfileImage:   d.ProfileImage,
		}
		if d.Specialization != nil {
			ld.Specialization = *d.Specialization
		}
		if d.LicenseNumber != nil {
			ld.LicenseNumber = *d.LicenseNumber
		}
		doctors = append(doctors, ld)
	}
	return doctors, nil
}

// -- Review workflow --

// Review records a doctor's verdict on a test and returns the patient
// id for the redirect. Blank result and comment keep the stored values.
func (s *Service) Review(ctx context.Context, p *auth.Principal, testID int64, status, result, comment string) (int64, error) {
	t, err := s.getTest(ctx, testID)
	if err != nil {
		return 0, err
	}
	if p.Role == user.RoleDoctor {
		linked, err := s.links.IsLinked(ctx, p.ID, t.PatientID)
		if err != nil {
			return 0, err
		}
		if !linked {
			return 0, ErrNoPatientAccess
		}
	}
	if status != StatusAccepted && status != StatusRejected && status != StatusPending {
		return 0, ErrBadReviewStatus
	}

	reviewer := p.ID
	now := time.Now().UTC()
	t.ReviewStatus = status
	t.ReviewedBy = &reviewer
	t.ReviewedAt = &now
	if result != "" {
		t.Result = &result
	}
	if comment != "" {
		t.Comment = &comment
	}
	if err := s.tests.UpdateReview(ctx, t); err != nil {
		return 0, err
	}
	return t.PatientID, nil
}

// RequestReview lets a patient ask a doctor to review a test. An
// unclaimed patient gets linked to the chosen doctor in the same
// transaction. Returns the doctor's display name for the flash.
func (s *Service) RequestReview(ctx context.Context, p *auth.Principal, testID, doctorID int64) (string, error) {
	t, err := s.getTest(ctx, testID)
	if err != nil {
		return "", err
	}
	if p.Role != user.RoleAdmin && t.PatientID != p.ID {
		return "", ErrNoTestAccess
	}

	doctor, err := s.users.GetByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrDoctorUnavailable
		}
		return "", err
	}
	if doctor.Role != user.RoleDoctor || !doctor.IsActive {
		return "", ErrDoctorUnavailable
	}

	linked, err := s.links.DoctorsOfPatient(ctx, t.PatientID)
	if err != nil {
		return "", err
	}
	if len(linked) > 0 {
		mine := false
		for _, d := range linked {
			if d.ID == doctorID {
				mine = true
				break
			}
		}
		if !mine {
			return "", ErrNotYourDoctor
		}
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.tests.SetReviewRequest(ctx, testID, doctorID, time.Now().UTC()); err != nil {
			return err
		}
		if len(linked) == 0 {
			if _, err := s.links.LinkPatient(ctx, doctorID, t.PatientID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return "Dr. " + doctor.FullName(), nil
}

// -- Listings --

// Reports lists a patient's tests newest first with reviewer and model
// names.
func (s *Service) Reports(ctx context.Context, patientID int64) ([]*Report, error) {
	return s.tests.ReportsByPatient(ctx, patientID)
}

// ReportsWithFiles loads the patient and their tests with the stored
// files attached, for the admin report view.
func (s *Service) ReportsWithFiles(ctx context.Context, patientID int64) (*user.User, []*Report, error) {
	patient, err := s.Patient(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	reports, err := s.tests.ReportsByPatient(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]int64, len(reports))
	for i, rep := range reports {
		ids[i] = rep.Test.ID
	}
	files, err := s.tests.FilesForTests(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	for _, rep := range reports {
		rep.Files = files[rep.Test.ID]
	}
	return patient, reports, nil
}

// PatientProfile aggregates the doctor's view of one patient: account,
// linked doctors, medical history and the latest tests.
type PatientProfile struct {
	Patient     *user.User
	Doctors     []*care.LinkedDoctor
	History     []*history.Entry
	RecentTests []*Report
	IsLinked    bool
}

func (s *Service) PatientProfile(ctx context.Context, p *auth.Principal, patientID int64) (*PatientProfile, error) {
	patient, err := s.Patient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	prof := &PatientProfile{Patient: patient}
	switch p.Role {
	case user.RoleAdmin:
		prof.IsLinked = true
	case user.RoleDoctor:
		prof.IsLinked, err = s.links.IsLinked(ctx, p.ID, patientID)
		if err != nil {
			return nil, err
		}
	}

	prof.Doctors, err = s.links.DoctorsOfPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	prof.History, err = s.records.ListForPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	prof.RecentTests, err = s.tests.RecentByPatient(ctx, patientID, 5)
	if err != nil {
		return nil, err
	}
	return prof, nil
}

// ModelsOverview aggregates the public models page: the cards plus
// totals and the average accuracy rounded to two decimals.
func (s *Service) ModelsOverview(ctx context.Context) (*ModelsOverview, error) {
	models, err := s.tests.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	o := &ModelsOverview{Models: models, TotalModels: len(models)}
	var sum float64
	for _, m := range models {
		sum += m.Accuracy
		o.TotalTests += m.TestsCount
	}
	if len(models) > 0 {
		o.AvgAccuracy = math.Round(sum/float64(len(models))*100) / 100
	}
	return o, nil
}

// -- helpers --

func sheetError(err error) error {
	switch {
	case errors.Is(err, cbc.ErrNoData):
		return ErrNoSheetData
	case errors.Is(err, cbc.ErrNoValidRows):
		return ErrNoValidRows
	}
	var missing *cbc.MissingColumnsError
	if errors.As(err, &missing) {
		return fmt.Errorf("%w: %v", ErrBadSheet, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreadable, err)
}

// overallOutcome folds per-row screenings into the stored outcome: any
// anemic row marks the test, and confidence reflects the deciding row.
func overallOutcome(results []cbc.Result) (string, float64) {
	anemic := false
	var maxP float64
	for _, r := range results {
		if r.Anemic {
			anemic = true
		}
		if r.Probability > maxP {
			maxP = r.Probability
		}
	}
	if anemic {
		return "Anemia", round4(maxP)
	}
	return "Normal", round4(1 - maxP)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func fileRecord(testID int64, stored *storage.StoredFile, role string) *TestFile {
	return &TestFile{
		TestID:    testID,
		Name:      path.Base(stored.Path),
		Extension: stored.Extension,
		Path:      stored.Path,
		Type:      role,
	}
}
