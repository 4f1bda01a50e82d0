package stats

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts one dashboard per role group.
func (h *Handler) RegisterRoutes(admin, doctor, patient *echo.Group) {
	admin.GET("/dashboard", h.AdminDashboardPage)
	doctor.GET("/dashboard", h.DoctorDashboardPage)
	patient.GET("/dashboard", h.PatientDashboardPage)
}

func (h *Handler) AdminDashboardPage(c echo.Context) error {
	o, err := h.svc.AdminDashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "admin/dashboard", echo.Map{
		"Overview": o,
	})
}

// DoctorDashboardPage keys the worklist off the session user, so an
// admin opening it sees an empty worklist rather than someone else's.
func (h *Handler) DoctorDashboardPage(c echo.Context) error {
	p := auth.CurrentUser(c)
	o, err := h.svc.DoctorDashboard(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "doctor/dashboard", echo.Map{
		"Overview": o,
	})
}

func (h *Handler) PatientDashboardPage(c echo.Context) error {
	p := auth.CurrentUser(c)
	o, err := h.svc.PatientDashboard(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "patient/dashboard", echo.Map{
		"Overview": o,
	})
}
