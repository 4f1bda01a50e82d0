package medtest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Rawan567/blood-diagnosis-api/internal/domain/care"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/user"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/flash"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterDoctorRoutes mounts the doctor-side test endpoints. The group
// also admits admins acting on any patient.
func (h *Handler) RegisterDoctorRoutes(g *echo.Group) {
	g.GET("/upload-test/:id", h.DoctorUploadChoicePage)
	g.GET("/upload-cbc/:id", h.DoctorUploadCBCPage)
	g.GET("/upload-image/:id", h.DoctorUploadImagePage)
	g.POST("/upload-cbc-csv/:id", h.DoctorUploadCSV)
	g.POST("/upload-cbc-manual/:id", h.DoctorUploadManual)
	g.POST("/upload-blood-image/:id", h.DoctorUploadImage)
	g.GET("/patient/:id", h.PatientProfilePage)
	g.GET("/test/:id", h.DoctorTestPage)
	g.POST("/test/:id/review", h.ReviewTest)
}

// RegisterPatientRoutes mounts the self-service endpoints.
func (h *Handler) RegisterPatientRoutes(g *echo.Group) {
	g.GET("/upload-test", h.PatientUploadChoicePage)
	g.GET("/upload-cbc", h.PatientUploadCBCPage)
	g.GET("/upload-image", h.PatientUploadImagePage)
	g.POST("/upload-cbc-csv", h.PatientUploadCSV)
	g.POST("/upload-cbc-manual", h.PatientUploadManual)
	g.POST("/upload-blood-image", h.PatientUploadImage)
	g.GET("/tests", h.PatientTestsPage)
	g.GET("/test/:id", h.PatientTestPage)
	g.POST("/test/:id/request-review", h.RequestReview)
}

// RegisterAdminRoutes mounts the report archive view.
func (h *Handler) RegisterAdminRoutes(g *echo.Group) {
	g.GET("/patients/:id/reports", h.AdminReportsPage)
}

// RegisterPublicRoutes mounts the models showcase page.
func (h *Handler) RegisterPublicRoutes(e *echo.Echo) {
	e.GET("/models", h.ModelsPage)
}

// -- Doctor upload pages --

func (h *Handler) DoctorUploadChoicePage(c echo.Context) error {
	patient, ok, err := h.uploadGate(c)
	if err != nil || !ok {
		return err
	}
	pid := patient.ID
	return c.Render(http.StatusOK, "shared/upload_test", echo.Map{
		"Patient":  patient,
		"CBCURL":   fmt.Sprintf("/doctor/upload-cbc/%d", pid),
		"ImageURL": fmt.Sprintf("/doctor/upload-image/%d", pid),
		"BackURL":  fmt.Sprintf("/doctor/patient/%d", pid),
	})
}

func (h *Handler) DoctorUploadCBCPage(c echo.Context) error {
	patient, ok, err := h.uploadGate(c)
	if err != nil || !ok {
		return err
	}
	pid := patient.ID
	return c.Render(http.StatusOK, "shared/upload_cbc", echo.Map{
		"Patient":      patient,
		"CSVAction":    fmt.Sprintf("/doctor/upload-cbc-csv/%d", pid),
		"ManualAction": fmt.Sprintf("/doctor/upload-cbc-manual/%d", pid),
		"BackURL":      fmt.Sprintf("/doctor/upload-test/%d", pid),
	})
}

func (h *Handler) DoctorUploadImagePage(c echo.Context) error {
	patient, ok, err := h.uploadGate(c)
	if err != nil || !ok {
		return err
	}
	pid := patient.ID
	return c.Render(http.StatusOK, "shared/upload_image", echo.Map{
		"Patient":    patient,
		"FormAction": fmt.Sprintf("/doctor/upload-blood-image/%d", pid),
		"BackURL":    fmt.Sprintf("/doctor/upload-test/%d", pid),
	})
}

// uploadGate resolves the :id patient and enforces the link policy for
// doctor-side upload routes. ok reports whether the caller may proceed;
// when false the response has already been written.
func (h *Handler) uploadGate(c echo.Context) (*user.User, bool, error) {
	p := auth.CurrentUser(c)
	patientID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, ErrPatientNotFound.Error())
		return nil, false, c.Redirect(http.StatusSeeOther, "/doctor/patients")
	}

	patient, err := h.svc.Patient(c.Request().Context(), patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			flash.Error(c, err.Error())
			return nil, false, c.Redirect(http.StatusSeeOther, "/doctor/patients")
		}
		return nil, false, err
	}

	d, err := h.svc.CanViewPatient(c.Request().Context(), p, patientID)
	if err != nil {
		return nil, false, err
	}
	if !d.Allowed {
		return nil, false, denyPatientAccess(c, d)
	}
	return patient, true, nil
}

// denyPatientAccess translates a link-policy denial into the response
// the pages use: deactivated accounts bounce to their notice, missing
// links get a 403 page.
func denyPatientAccess(c echo.Context, d care.Decision) error {
	switch d.Reason {
	case care.ReasonDeactivated:
		return c.Redirect(http.StatusSeeOther, "/account-deactivated")
	case care.ReasonDeactivatedPatient:
		flash.Error(c, "This patient's account is deactivated.")
		return c.Redirect(http.StatusSeeOther, "/doctor/patients")
	case care.ReasonPatientNotFound:
		flash.Error(c, ErrPatientNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/doctor/patients")
	case care.ReasonNotLinked:
		return c.Render(http.StatusForbidden, "errors/403", echo.Map{
			"Message": "You don't have access to this patient",
		})
	}
	return c.Render(http.StatusForbidden, "errors/403", echo.Map{
		"Message": "You don't have permission to access this resource",
	})
}

// -- Doctor uploads --

func (h *Handler) DoctorUploadCSV(c echo.Context) error {
	patient, ok, err := h.uploadGate(c)
	if err != nil || !ok {
		return err
	}
	return h.runCSV(c, patient.ID,
		fmt.Sprintf("/doctor/upload-cbc/%d", patient.ID), "/doctor/test/%d")
}

func (h *Handler) DoctorUploadManual(c echo.Context) error {
	patient, ok, err := h.uploadGate(c)
	if err != nil || !ok {
		return err
	}
	return h.runManual(c, patient.ID,
		fmt.Sprintf("/doctor/upload-cbc/%d", patient.ID), "/doctor/test/%d")
}

// DoctorUploadImage stores a smear photo and returns to the patient
// profile either way.
func (h *Handler) DoctorUploadImage(c echo.Context) error {
	patientID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, ErrPatientNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/doctor/patients")
	}
	back := fmt.Sprintf("/doctor/patient/%d", patientID)
	return h.runImage(c, patientID, back, back)
}

// -- Patient uploads --

// activeGate bounces deactivated accounts off the self-service upload
// routes. ok reports whether the caller may proceed.
func activeGate(c echo.Context) (*auth.Principal, bool, error) {
	p := auth.CurrentUser(c)
	if !p.Active {
		return nil, false, c.Redirect(http.StatusSeeOther, "/account-deactivated")
	}
	return p, true, nil
}

func (h *Handler) PatientUploadChoicePage(c echo.Context) error {
	if _, ok, err := activeGate(c); err != nil || !ok {
		return err
	}
	return c.Render(http.StatusOK, "shared/upload_test", echo.Map{
		"CBCURL":   "/patient/upload-cbc",
		"ImageURL": "/patient/upload-image",
		"BackURL":  "/patient/dashboard",
	})
}

func (h *Handler) PatientUploadCBCPage(c echo.Context) error {
	if _, ok, err := activeGate(c); err != nil || !ok {
		return err
	}
	return c.Render(http.StatusOK, "shared/upload_cbc", echo.Map{
		"CSVAction":    "/patient/upload-cbc-csv",
		"ManualAction": "/patient/upload-cbc-manual",
		"BackURL":      "/patient/upload-test",
	})
}

func (h *Handler) PatientUploadImagePage(c echo.Context) error {
	if _, ok, err := activeGate(c); err != nil || !ok {
		return err
	}
	return c.Render(http.StatusOK, "shared/upload_image", echo.Map{
		"FormAction": "/patient/upload-blood-image",
		"BackURL":    "/patient/upload-test",
	})
}

func (h *Handler) PatientUploadCSV(c echo.Context) error {
	p, ok, err := activeGate(c)
	if err != nil || !ok {
		return err
	}
	return h.runCSV(c, p.ID, "/patient/upload-cbc", "/patient/test/%d")
}

func (h *Handler) PatientUploadManual(c echo.Context) error {
	p, ok, err := activeGate(c)
	if err != nil || !ok {
		return err
	}
	return h.runManual(c, p.ID, "/patient/upload-cbc", "/patient/test/%d")
}

func (h *Handler) PatientUploadImage(c echo.Context) error {
	p, ok, err := activeGate(c)
	if err != nil || !ok {
		return err
	}
	return h.runImage(c, p.ID, "/patient/dashboard", "/patient/dashboard")
}

// -- Shared upload plumbing --

// runCSV reads the multipart sheet and hands it to the analysis
// pipeline. successFmt receives the new test id.
func (h *Handler) runCSV(c echo.Context, patientID int64, failURL, successFmt string) error {
	fh, err := c.FormFile("file")
	if err != nil {
		flash.Error(c, ErrNoFile.Error())
		return c.Redirect(http.StatusSeeOther, failURL)
	}
	src, err := fh.Open()
	if err != nil {
		flash.Error(c, fmt.Sprintf("Error processing file: %v", err))
		return c.Redirect(http.StatusSeeOther, failURL)
	}
	defer src.Close()

	t, msg, err := h.svc.RunCBCFromCSV(c.Request().Context(), patientID, fh.Filename, src, c.FormValue("notes"))
	if err != nil {
		if isUserFacing(err) {
			flash.Error(c, err.Error())
		} else {
			flash.Error(c, fmt.Sprintf("Error processing file: %v", err))
		}
		return c.Redirect(http.StatusSeeOther, failURL)
	}
	flash.Success(c, msg)
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf(successFmt, t.ID))
}

func (h *Handler) runManual(c echo.Context, patientID int64, failURL, successFmt string) error {
	in, err := parseManualForm(c)
	if err != nil {
		flash.Error(c, ErrBadValues.Error())
		return c.Redirect(http.StatusSeeOther, failURL)
	}

	t, msg, err := h.svc.RunCBCManual(c.Request().Context(), patientID, in, c.FormValue("notes"))
	if err != nil {
		if isUserFacing(err) {
			flash.Error(c, err.Error())
		} else {
			flash.Error(c, fmt.Sprintf("Error during CBC analysis: %v", err))
		}
		return c.Redirect(http.StatusSeeOther, failURL)
	}
	flash.Success(c, msg)
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf(successFmt, t.ID))
}

func (h *Handler) runImage(c echo.Context, patientID int64, failURL, successURL string) error {
	fh, err := c.FormFile("file")
	if err != nil {
		flash.Error(c, ErrNoImage.Error())
		return c.Redirect(http.StatusSeeOther, failURL)
	}
	src, err := fh.Open()
	if err != nil {
		flash.Error(c, fmt.Sprintf("Error uploading image: %v", err))
		return c.Redirect(http.StatusSeeOther, failURL)
	}
	defer src.Close()

	_, msg, err := h.svc.UploadBloodImage(c.Request().Context(), patientID, fh.Filename, src, c.FormValue("description"))
	if err != nil {
		if isUserFacing(err) {
			flash.Error(c, err.Error())
		} else {
			flash.Error(c, fmt.Sprintf("Error uploading image: %v", err))
		}
		return c.Redirect(http.StatusSeeOther, failURL)
	}
	flash.Success(c, msg)
	return c.Redirect(http.StatusSeeOther, successURL)
}

func parseManualForm(c echo.Context) (ManualInput, error) {
	var in ManualInput
	fields := []struct {
		name string
		dst  *float64
	}{
		{"rbc", &in.RBC}, {"hgb", &in.HGB}, {"pcv", &in.PCV}, {"mcv", &in.MCV},
		{"mch", &in.MCH}, {"mchc", &in.MCHC}, {"tlc", &in.TLC}, {"plt", &in.PLT},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(c.FormValue(f.name), 64)
		if err != nil {
			return in, err
		}
		*f.dst = v
	}
	return in, nil
}

// isUserFacing reports whether an error carries flash copy of its own.
func isUserFacing(err error) bool {
	for _, sentinel := range []error{
		ErrNoFile, ErrNoImage, ErrBadCBCFile, ErrBadImage,
		ErrEmptySheet, ErrSheetTooBig, ErrNoSheetData, ErrNoValidRows,
		ErrUnreadable, ErrBadSheet, ErrBadValues,
		ErrCBCModelMissing, ErrImageModelMissing,
		ErrTestNotFound, ErrPatientNotFound, ErrNoPatientAccess,
		ErrNoTestAccess, ErrBadReviewStatus, ErrDoctorUnavailable, ErrNotYourDoctor,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// -- Detail pages --

func (h *Handler) PatientProfilePage(c echo.Context) error {
	p := auth.CurrentUser(c)
	patientID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, ErrPatientNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/doctor/patients")
	}

	prof, err := h.svc.PatientProfile(c.Request().Context(), p, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			flash.Error(c, err.Error())
			return c.Redirect(http.StatusSeeOther, "/doctor/patients")
		}
		return err
	}

	return c.Render(http.StatusOK, "doctor/patient_profile", echo.Map{
		"Patient":        prof.Patient,
		"IsLinked":       prof.IsLinked,
		"Doctors":        prof.Doctors,
		"MedicalHistory": prof.History,
		"RecentTests":    prof.RecentTests,
	})
}

func (h *Handler) DoctorTestPage(c echo.Context) error {
	p := auth.CurrentUser(c)
	testID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, ErrTestNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/doctor/dashboard")
	}

	det, err := h.svc.DoctorTestView(c.Request().Context(), p, testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) || errors.Is(err, ErrNoPatientAccess) {
			flash.Error(c, err.Error())
			return c.Redirect(http.StatusSeeOther, "/doctor/dashboard")
		}
		return err
	}

	return c.Render(http.StatusOK, "doctor/test_detail", echo.Map{
		"Test":      det.Test,
		"Patient":   det.Patient,
		"Files":     det.Files,
		"CSVFile":   det.CSVFile,
		"Rows":      det.Rows,
		"Reviewer":  det.Reviewer,
		"ModelName": det.ModelName,
	})
}

func (h *Handler) ReviewTest(c echo.Context) error {
	p := auth.CurrentUser(c)
	testID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, ErrTestNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/doctor/dashboard")
	}
	testURL := fmt.Sprintf("/doctor/test/%d", testID)

	status := c.FormValue("review_status")
	patientID, err := h.svc.Review(c.Request().Context(), p, testID, status,
		c.FormValue("result"), c.FormValue("comment"))
	if err != nil {
		switch {
		case errors.Is(err, ErrTestNotFound), errors.Is(err, ErrNoPatientAccess):
			flash.Error(c, err.Error())
			return c.Redirect(http.StatusSeeOther, "/doctor/dashboard")
		case errors.Is(err, ErrBadReviewStatus):
			flash.Error(c, err.Error())
		default:
			flash.Error(c, fmt.Sprintf("Error updating test: %v", err))
		}
		return c.Redirect(http.StatusSeeOther, testURL)
	}

	flash.Success(c, fmt.Sprintf("Test marked as %s", status))
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/doctor/patient/%d", patientID))
}

// -- Patient pages --

func (h *Handler) PatientTestsPage(c echo.Context) error {
	p := auth.CurrentUser(c)
	reports, err := h.svc.Reports(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "patient/tests", echo.Map{
		"Reports": reports,
	})
}

func (h *Handler) PatientTestPage(c echo.Context) error {
	p := auth.CurrentUser(c)
	testID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, ErrTestNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/patient/dashboard")
	}

	det, err := h.svc.PatientTestView(c.Request().Context(), p, testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) || errors.Is(err, ErrNoTestAccess) {
			flash.Error(c, err.Error())
			return c.Redirect(http.StatusSeeOther, "/patient/dashboard")
		}
		return err
	}

	return c.Render(http.StatusOK, "patient/test_detail", echo.Map{
		"Test":            det.Test,
		"Files":           det.Files,
		"CSVFile":         det.CSVFile,
		"Rows":            det.Rows,
		"Reviewer":        det.Reviewer,
		"RequestedDoctor": det.RequestedDoctor,
		"Doctors":         det.Doctors,
		"IsLinked":        det.IsLinked,
		"ModelName":       det.ModelName,
	})
}

func (h *Handler) RequestReview(c echo.Context) error {
	p := auth.CurrentUser(c)
	testID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, ErrTestNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/patient/dashboard")
	}
	testURL := fmt.Sprintf("/patient/test/%d", testID)

	doctorID, err := strconv.ParseInt(c.FormValue("doctor_id"), 10, 64)
	if err != nil {
		flash.Error(c, ErrDoctorUnavailable.Error())
		return c.Redirect(http.StatusSeeOther, testURL)
	}

	name, err := h.svc.RequestReview(c.Request().Context(), p, testID, doctorID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTestNotFound), errors.Is(err, ErrNoTestAccess):
			flash.Error(c, err.Error())
			return c.Redirect(http.StatusSeeOther, "/patient/dashboard")
		case errors.Is(err, ErrDoctorUnavailable), errors.Is(err, ErrNotYourDoctor):
			flash.Error(c, err.Error())
		default:
			flash.Error(c, fmt.Sprintf("Error requesting review: %v", err))
		}
		return c.Redirect(http.StatusSeeOther, testURL)
	}

	flash.Success(c, fmt.Sprintf("Review request sent to %s", name))
	return c.Redirect(http.StatusSeeOther, testURL)
}

// -- Admin pages --

func (h *Handler) AdminReportsPage(c echo.Context) error {
	patientID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, ErrPatientNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/admin/patients")
	}

	patient, reports, err := h.svc.ReportsWithFiles(c.Request().Context(), patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			flash.Error(c, err.Error())
			return c.Redirect(http.StatusSeeOther, "/admin/patients")
		}
		return err
	}

	return c.Render(http.StatusOK, "admin/patient_reports", echo.Map{
		"Patient": patient,
		"Tests":   reports,
	})
}

// -- Public pages --

func (h *Handler) ModelsPage(c echo.Context) error {
	overview, err := h.svc.ModelsOverview(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "public/models", echo.Map{
		"Models":      overview.Models,
		"TotalModels": overview.TotalModels,
		"AvgAccuracy": overview.AvgAccuracy,
		"TotalTests":  overview.TotalTests,
	})
}
