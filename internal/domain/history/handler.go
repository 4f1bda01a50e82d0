package history

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/flash"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the diagnosis forms onto the doctor group and the
// history page onto the patient group.
func (h *Handler) RegisterRoutes(doctor, patient *echo.Group) {
	doctor.POST("/patient/:id/diagnose", h.AddDiagnosis)
	doctor.POST("/diagnosis/:id/update", h.UpdateDiagnosis)
	doctor.POST("/diagnosis/:id/delete", h.DeleteDiagnosis)

	patient.GET("/medical-history", h.MedicalHistoryPage)
}

// AddDiagnosis handles the diagnosis form on the patient profile. It always
// sends the doctor back to that profile so the outcome message shows in
// context.
func (h *Handler) AddDiagnosis(c echo.Context) error {
	p := auth.CurrentUser(c)
	patientID, err := parseID(c)
	if err != nil {
		flash.Error(c, ErrPatientNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/doctor/patients")
	}

	in := DiagnosisForm{
		Condition: c.FormValue("medical_condition"),
		Treatment: c.FormValue("treatment"),
		Notes:     c.FormValue("notes"),
	}
	target := fmt.Sprintf("/doctor/patient/%d", patientID)
	if _, err := h.svc.Create(c.Request().Context(), p, patientID, in); err != nil {
		if !historyError(err) {
			return err
		}
		flash.Error(c, err.Error())
		return c.Redirect(http.StatusSeeOther, target)
	}
	flash.Success(c, "Diagnosis record created successfully")
	return c.Redirect(http.StatusSeeOther, target)
}

func (h *Handler) UpdateDiagnosis(c echo.Context) error {
	p := auth.CurrentUser(c)
	recordID, err := parseID(c)
	if err != nil {
		flash.Error(c, ErrRecordNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/doctor/patients")
	}

	in := DiagnosisForm{
		Condition: c.FormValue("medical_condition"),
		Treatment: c.FormValue("treatment"),
		Notes:     c.FormValue("notes"),
	}
	patientID, err := h.svc.Update(c.Request().Context(), p, recordID, in)
	if err != nil {
		if !historyError(err) {
			return err
		}
		flash.Error(c, err.Error())
		return c.Redirect(http.StatusSeeOther, backTo(patientID))
	}
	flash.Success(c, "Diagnosis record updated successfully")
	return c.Redirect(http.StatusSeeOther, backTo(patientID))
}

func (h *Handler) DeleteDiagnosis(c echo.Context) error {
	p := auth.CurrentUser(c)
	recordID, err := parseID(c)
	if err != nil {
		flash.Error(c, ErrRecordNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/doctor/patients")
	}

	patientID, err := h.svc.Delete(c.Request().Context(), p, recordID)
	if err != nil {
		if !historyError(err) {
			return err
		}
		flash.Error(c, err.Error())
		return c.Redirect(http.StatusSeeOther, backTo(patientID))
	}
	flash.Success(c, "Diagnosis record deleted successfully")
	return c.Redirect(http.StatusSeeOther, backTo(patientID))
}

// MedicalHistoryPage lists the signed-in patient's diagnosis records.
func (h *Handler) MedicalHistoryPage(c echo.Context) error {
	p := auth.CurrentUser(c)
	entries, err := h.svc.ListForPatient(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "patient/medical_history", echo.Map{
		"MedicalHistory": entries,
	})
}

// historyError reports whether err carries a message meant for the user.
func historyError(err error) bool {
	for _, e := range []error{
		ErrAccountDeactivated,
		ErrPatientDeactivated,
		ErrPatientNotFound,
		ErrNotLinked,
		ErrCannotAdd,
		ErrRecordNotFound,
		ErrUpdateNotOwner,
		ErrCannotUpdate,
		ErrDeleteNotOwner,
		ErrCannotDelete,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// backTo picks the redirect after an update or delete. The patient profile
// when the record resolved to one, the roster otherwise.
func backTo(patientID int64) string {
	if patientID != 0 {
		return fmt.Sprintf("/doctor/patient/%d", patientID)
	}
	return "/doctor/patients"
}

func parseID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
