package user

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Rawan567/blood-diagnosis-api/internal/domain/care"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/flash"
	"github.com/Rawan567/blood-diagnosis-api/pkg/pagination"
)

// Handler serves the admin's user management pages and the account pages
// shared by every role.
type Handler struct {
	svc   *Service
	links *care.Service
}

func NewHandler(svc *Service, links *care.Service) *Handler {
	return &Handler{svc: svc, links: links}
}

// RegisterAdminRoutes mounts doctor and patient management under the admin
// group.
func (h *Handler) RegisterAdminRoutes(g *echo.Group) {
	g.GET("/doctors", h.DoctorsPage)
	g.POST("/doctors/add", h.AddDoctor)
	g.GET("/doctors/:id", h.DoctorDetail)
	g.POST("/doctors/:id/toggle-status", h.ToggleDoctorStatus)
	g.GET("/patients", h.PatientsPage)
	g.GET("/patients/:id", h.PatientDetail)
	g.GET("/add-patient", h.AddPatientPage)
	g.POST("/patients/add", h.AddPatient)
	g.POST("/patients/:id/toggle-status", h.TogglePatientStatus)
	g.POST("/patients/:id/delete", h.DeletePatient)
}

// RegisterDoctorRoutes mounts the doctor's patient registration flow.
func (h *Handler) RegisterDoctorRoutes(g *echo.Group) {
	g.GET("/add-patient", h.DoctorAddPatientPage)
	g.POST("/patient/add", h.DoctorAddPatient)
}

// RegisterAccountRoutes mounts the self-service account pages on a role
// group. The role picks the template and the redirect prefix.
func (h *Handler) RegisterAccountRoutes(g *echo.Group, role string) {
	g.GET("/account", h.accountPage(role))
	g.POST("/update-profile", h.updateProfile(role))
	g.POST("/change-password", h.changePassword(role))
	g.POST("/upload-profile-image", h.uploadProfileImage(role))
}

// -- Doctors --

func (h *Handler) DoctorsPage(c echo.Context) error {
	ctx := c.Request().Context()
	f := DoctorFilter{
		Search:         c.QueryParam("search"),
		Specialization: c.QueryParam("specialization"),
		Status:         c.QueryParam("status"),
	}
	pg := pagination.FromContext(c)

	doctors, total, err := h.svc.ListDoctors(ctx, f, pg)
	if err != nil {
		return err
	}
	specs, err := h.svc.Specializations(ctx)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "admin/doctors", echo.Map{
		"Doctors":                doctors,
		"Specializations":        specs,
		"Search":                 f.Search,
		"SelectedSpecialization": orAll(f.Specialization),
		"SelectedStatus":         orAll(f.Status),
		"Pager":                  pagination.NewPager(pg, total),
	})
}

func (h *Handler) AddDoctor(c echo.Context) error {
	in := NewDoctor{
		FName:          c.FormValue("fname"),
		LName:          c.FormValue("lname"),
		Email:          c.FormValue("email"),
		Username:       c.FormValue("username"),
		Password:       c.FormValue("password"),
		Gender:         c.FormValue("gender"),
		BloodType:      c.FormValue("blood_type"),
		Phone:          c.FormValue("phone"),
		Address:        c.FormValue("address"),
		Specialization: c.FormValue("specialization"),
		LicenseNumber:  c.FormValue("license_number"),
	}

	u, err := h.svc.CreateDoctor(c.Request().Context(), in)
	switch {
	case err == nil:
		flash.Success(c, fmt.Sprintf("Doctor %s %s added successfully!", u.FName, u.LName))
	case errors.Is(err, ErrCredentialsTaken):
		flash.Error(c, err.Error())
	default:
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/doctors")
}

func (h *Handler) DoctorDetail(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		flash.Error(c, "Doctor not found")
		return c.Redirect(http.StatusSeeOther, "/admin/doctors")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			flash.Error(c, "Doctor not found")
			return c.Redirect(http.StatusSeeOther, "/admin/doctors")
		}
		return err
	}
	return c.Render(http.StatusOK, "admin/doctor_detail", echo.Map{"Doctor": d})
}

func (h *Handler) ToggleDoctorStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		flash.Error(c, "Doctor not found")
		return c.Redirect(http.StatusSeeOther, "/admin/doctors")
	}

	u, err := h.svc.ToggleActive(c.Request().Context(), id, RoleDoctor)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			flash.Error(c, "Doctor not found")
			return c.Redirect(http.StatusSeeOther, "/admin/doctors")
		}
		return err
	}
	flash.Success(c, fmt.Sprintf("Doctor %s %s %s successfully!", u.FName, u.LName, statusText(u.IsActive)))
	return c.Redirect(http.StatusSeeOther, "/admin/doctors")
}

// -- Patients --

func (h *Handler) PatientsPage(c echo.Context) error {
	f := PatientFilter{
		Search: c.QueryParam("search"),
		Status: c.QueryParam("status"),
	}
	pg := pagination.FromContext(c)

	patients, total, err := h.svc.ListPatients(c.Request().Context(), f, pg)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "admin/patients", echo.Map{
		"Patients":       patients,
		"Search":         f.Search,
		"SelectedStatus": orAll(f.Status),
		"Pager":          pagination.NewPager(pg, total),
	})
}

func (h *Handler) PatientDetail(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		flash.Error(c, "Patient not found")
		return c.Redirect(http.StatusSeeOther, "/admin/patients")
	}
	ctx := c.Request().Context()

	patient, err := h.svc.GetPatient(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			flash.Error(c, "Patient not found")
			return c.Redirect(http.StatusSeeOther, "/admin/patients")
		}
		return err
	}
	doctors, err := h.links.DoctorsOfPatient(ctx, id)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "admin/patient_detail", echo.Map{
		"Patient":          patient,
		"ConnectedDoctors": doctors,
	})
}

func (h *Handler) AddPatientPage(c echo.Context) error {
	return c.Render(http.StatusOK, "shared/add_patient", echo.Map{
		"BackURL":    "/admin/patients",
		"FormAction": "/admin/patients/add",
	})
}

func (h *Handler) AddPatient(c echo.Context) error {
	created, err := h.svc.CreatePatient(c.Request().Context(), patientForm(c))
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			flash.Error(c, err.Error())
		} else {
			flash.Error(c, fmt.Sprintf("Error adding patient: %v", err))
		}
		return c.Redirect(http.StatusSeeOther, "/admin/add-patient")
	}

	flash.Success(c, fmt.Sprintf("Patient %s added successfully! Temporary password: %s",
		created.Patient.FullName(), created.TempPassword))
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/admin/patients/%d", created.Patient.ID))
}

func (h *Handler) TogglePatientStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		flash.Error(c, "Patient not found")
		return c.Redirect(http.StatusSeeOther, "/admin/patients")
	}

	u, err := h.svc.ToggleActive(c.Request().Context(), id, RolePatient)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			flash.Error(c, "Patient not found")
			return c.Redirect(http.StatusSeeOther, "/admin/patients")
		}
		return err
	}
	flash.Success(c, fmt.Sprintf("Patient %s %s has been %s", u.FName, u.LName, statusText(u.IsActive)))
	return c.Redirect(http.StatusSeeOther, "/admin/patients")
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		flash.Error(c, "Patient not found")
		return c.Redirect(http.StatusSeeOther, "/admin/patients")
	}

	u, err := h.svc.DeletePatient(c.Request().Context(), id)
	switch {
	case err == nil:
		flash.Success(c, fmt.Sprintf("Patient %s has been permanently deleted", u.FullName()))
	case errors.Is(err, ErrNotFound):
		flash.Error(c, "Patient not found")
	default:
		flash.Error(c, fmt.Sprintf("Error deleting patient: %v", err))
	}
	return c.Redirect(http.StatusSeeOther, "/admin/patients")
}

// -- Doctor flow --

func (h *Handler) DoctorAddPatientPage(c echo.Context) error {
	return c.Render(http.StatusOK, "shared/add_patient", echo.Map{
		"BackURL":    "/doctor/patients",
		"FormAction": "/doctor/patient/add",
	})
}

// DoctorAddPatient registers a patient and links them to the requesting
// doctor in one flow.
func (h *Handler) DoctorAddPatient(c echo.Context) error {
	ctx := c.Request().Context()
	p := auth.CurrentUser(c)

	created, err := h.svc.CreatePatient(ctx, patientForm(c))
	if err == nil {
		_, err = h.links.LinkPatient(ctx, p.ID, created.Patient.ID)
	}
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			flash.Error(c, err.Error())
		} else {
			flash.Error(c, fmt.Sprintf("Error adding patient: %v", err))
		}
		return c.Redirect(http.StatusSeeOther, "/doctor/add-patient")
	}

	flash.Success(c, fmt.Sprintf("Patient %s added successfully! Temporary password: %s",
		created.Patient.FullName(), created.TempPassword))
	return c.Redirect(http.StatusSeeOther, fmt.Sprintf("/doctor/patient/%d", created.Patient.ID))
}

// -- Account --

func (h *Handler) accountPage(role string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		p := auth.CurrentUser(c)
		data := echo.Map{}

		switch role {
		case RoleDoctor:
			d, err := h.svc.GetDoctor(ctx, p.ID)
			if err != nil {
				return err
			}
			data["Account"] = d
		case RolePatient:
			u, err := h.svc.Get(ctx, p.ID)
			if err != nil {
				return err
			}
			doctors, err := h.links.DoctorsOfPatient(ctx, p.ID)
			if err != nil {
				return err
			}
			data["Account"] = u
			data["ConnectedDoctors"] = doctors
		default:
			u, err := h.svc.Get(ctx, p.ID)
			if err != nil {
				return err
			}
			data["Account"] = u
		}
		return c.Render(http.StatusOK, role+"/account", data)
	}
}

func (h *Handler) updateProfile(role string) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := auth.CurrentUser(c)
		in := ProfileUpdate{
			FName:          c.FormValue("fname"),
			LName:          c.FormValue("lname"),
			Email:          c.FormValue("email"),
			Phone:          c.FormValue("phone"),
			Address:        c.FormValue("address"),
			Specialization: c.FormValue("specialization"),
		}

		err := h.svc.UpdateProfile(c.Request().Context(), p.ID, in)
		switch {
		case err == nil:
			flash.Success(c, "Profile updated successfully!")
		case errors.Is(err, ErrEmailTaken):
			flash.Error(c, err.Error())
		default:
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/"+role+"/account")
	}
}

func (h *Handler) changePassword(role string) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := auth.CurrentUser(c)
		err := h.svc.ChangePassword(c.Request().Context(), p.ID,
			c.FormValue("current_password"),
			c.FormValue("new_password"),
			c.FormValue("confirm_password"))
		switch {
		case err == nil:
			flash.Success(c, "Password changed successfully!")
		case errors.Is(err, ErrWrongPassword), errors.Is(err, ErrPasswordMismatch), errors.Is(err, ErrPasswordTooShort):
			flash.Error(c, err.Error())
		default:
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/"+role+"/account")
	}
}

func (h *Handler) uploadProfileImage(role string) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := auth.CurrentUser(c)
		redirect := "/" + role + "/account"

		file, err := c.FormFile("profile_image")
		if err != nil || file.Filename == "" {
			// An empty file input still posts the field; treat it like a
			// rejected extension.
			flash.Error(c, ErrBadImageType.Error())
			return c.Redirect(http.StatusSeeOther, redirect)
		}
		src, err := file.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = h.svc.UpdateProfileImage(c.Request().Context(), p.ID, file.Filename, src)
		switch {
		case err == nil:
			flash.Success(c, "Profile image updated successfully!")
		case errors.Is(err, ErrBadImageType):
			flash.Error(c, err.Error())
		default:
			return err
		}
		return c.Redirect(http.StatusSeeOther, redirect)
	}
}

// patientForm reads the add-patient form shared by the admin and doctor
// pages.
func patientForm(c echo.Context) NewPatient {
	return NewPatient{
		FName:     c.FormValue("first_name"),
		LName:     c.FormValue("last_name"),
		Email:     c.FormValue("email"),
		Phone:     c.FormValue("phone"),
		Gender:    c.FormValue("gender"),
		Address:   c.FormValue("address"),
		BloodType: c.FormValue("blood_type"),
	}
}

func parseID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func statusText(active bool) string {
	if active {
		return "activated"
	}
	return "deactivated"
}

func orAll(v string) string {
	if v == "" {
		return "all"
	}
	return v
}
