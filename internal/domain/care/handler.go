package care

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

// RegisterRoutes mounts the roster and link management endpoints. The
// doctor group also admits admins; link changes stay doctor-only.
func (h *Handler) RegisterRoutes(doctor, patient *echo.Group) {
	doctor.GET("/patients", h.RosterPage)
	doctor.POST("/patient/:id/link", h.LinkPatient, auth.RequireRole("doctor"))
	doctor.POST("/patient/:id/unlink", h.UnlinkPatient, auth.RequireRole("doctor"))
	patient.POST("/unlink-doctor", h.UnlinkDoctor, auth.RequireRole("patient"))
}

func (h *Handler) RosterPage(c echo.Context) error {
	p := auth.CurrentUser(c)
	f := RosterFilter{
		Search:    c.QueryParam("search"),
		BloodType: c.QueryParam("blood_type"),
		Gender:    c.QueryParam("gender"),
		MineOnly:  c.QueryParam("my_patients") == "true",
	}

	var doctorID int64
	if p.Role == "doctor" {
		doctorID = p.ID
	}
	patients, err := h.svc.Roster(c.Request().Context(), doctorID, f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.Render(http.StatusOK, "doctor/patients", echo.Map{
		"Patients":          patients,
		"Search":            f.Search,
		"SelectedBloodType": f.BloodType,
		"SelectedGender":    f.Gender,
		"MyPatients":        f.MineOnly,
	})
}

func (h *Handler) LinkPatient(c echo.Context) error {
	p := auth.CurrentUser(c)
	patientID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, "Patient not found")
		return c.Redirect(http.StatusSeeOther, "/doctor/patients")
	}

	res, err := h.svc.LinkPatient(c.Request().Context(), p.ID, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			flash.Error(c, "Patient not found")
		} else {
			flash.Error(c, "Failed to link patient")
		}
		return c.Redirect(http.StatusSeeOther, "/doctor/patients")
	}

	name := res.Patient.FullName()
	switch {
	case res.AlreadyMine:
		flash.Info(c, fmt.Sprintf("%s is already linked to you", name))
	case res.OtherDoctor != nil:
		flash.Error(c, fmt.Sprintf("%s is already linked to %s", name, res.OtherDoctor.Name()))
	case res.Created:
		flash.Success(c, fmt.Sprintf("Successfully linked %s to your account", name))
	default:
		flash.Error(c, "Failed to link patient")
	}
	return c.Redirect(http.StatusSeeOther, "/doctor/patients")
}

func (h *Handler) UnlinkPatient(c echo.Context) error {
	p := auth.CurrentUser(c)
	patientID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, "Patient not found")
		return c.Redirect(http.StatusSeeOther, "/doctor/patients")
	}

	removed, patient, err := h.svc.UnlinkPatient(c.Request().Context(), p.ID, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			flash.Error(c, "Patient not found")
		} else {
			flash.Error(c, "Failed to unlink patient")
		}
		return c.Redirect(http.StatusSeeOther, "/doctor/patients")
	}

	if !removed {
		flash.Info(c, fmt.Sprintf("%s was not linked to you", patient.FullName()))
	} else {
		flash.Success(c, fmt.Sprintf("Successfully unlinked %s from your account", patient.FullName()))
	}
	return c.Redirect(http.StatusSeeOther, "/doctor/patients")
}

// UnlinkDoctor lets a patient drop their own doctor link.
func (h *Handler) UnlinkDoctor(c echo.Context) error {
	p := auth.CurrentUser(c)

	doctor, err := h.svc.UnlinkFromDoctors(c.Request().Context(), p.ID)
	if err != nil {
		flash.Error(c, "Failed to unlink from doctor")
		return c.Redirect(http.StatusSeeOther, "/patient/account")
	}
	if doctor == nil {
		flash.Info(c, "You are not linked to any doctor")
	} else {
		flash.Success(c, "Successfully unlinked from "+doctor.Name())
	}
	return c.Redirect(http.StatusSeeOther, "/patient/account")
}

// DenyAccess renders the standard response for a denied patient-access
// decision: deactivated requesters land on the deactivation notice,
// missing or deactivated patients bounce back to the roster, and the rest
// get the forbidden page.
func DenyAccess(c echo.Context, p *auth.Principal, d Decision) error {
	switch d.Reason {
	case ReasonDeactivated:
		return c.Redirect(http.StatusSeeOther, "/account-deactivated")
	case ReasonDeactivatedPatient:
		flash.Error(c, "This patient's account is deactivated.")
		return c.Redirect(http.StatusSeeOther, "/"+p.Role+"/patients")
	case ReasonPatientNotFound:
		flash.Error(c, "Patient not found.")
		return c.Redirect(http.StatusSeeOther, "/"+p.Role+"/patients")
	case ReasonNotLinked:
		return RenderForbidden(c, "You don't have access to this patient")
	case ReasonUnauthorized:
		flash.Error(c, "You don't have permission to access this resource.")
		return c.Redirect(http.StatusSeeOther, "/"+p.Role+"/dashboard")
	}
	flash.Error(c, "Access denied.")
	return c.Redirect(http.StatusSeeOther, "/")
}

// RenderForbidden shows the 403 page with a context message.
func RenderForbidden(c echo.Context, message string) error {
	return c.Render(http.StatusForbidden, "errors/403", echo.Map{"Message": message})
}
