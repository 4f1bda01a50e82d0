package account

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Rawan567/blood-diagnosis-api/internal/domain/user"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/flash"
)

// Handler serves the public pages and the /auth flows. It signs session
// cookies itself, so it carries the key and TTL alongside the service.
type Handler struct {
	svc *Service
	key []byte
	ttl time.Duration
}

func NewHandler(svc *Service, key []byte, ttl time.Duration) *Handler {
	return &Handler{svc: svc, key: key, ttl: ttl}
}

// RegisterRoutes mounts the public pages at the root and the auth flows
// under /auth. These routes stay reachable for deactivated accounts.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.HomePage)
	e.GET("/about", h.AboutPage)
	e.GET("/account-deactivated", h.DeactivatedPage)

	g := e.Group("/auth")
	g.GET("/login", h.LoginPage)
	g.POST("/login", h.Login)
	g.GET("/register", h.RegisterPage)
	g.POST("/register", h.Register)
	g.GET("/logout", h.Logout)
	g.POST("/logout", h.Logout)
	g.GET("/reset-password", h.ResetRequestPage)
	g.POST("/reset-password-request", h.RequestReset)
	g.GET("/reset-password-confirm", h.ResetConfirmPage)
	g.POST("/reset-password-confirm", h.ConfirmReset)
	g.POST("/api/login", h.APILogin)
	g.GET("/me", h.Me)
}

// RegisterPatientRoutes mounts account self-deletion on the patient group.
func (h *Handler) RegisterPatientRoutes(g *echo.Group) {
	g.POST("/delete-account", h.DeleteAccount, auth.RequireRole("patient"))
}

func (h *Handler) HomePage(c echo.Context) error {
	data := echo.Map{}
	if c.QueryParam("deleted") == "true" {
		data["SuccessMessage"] = "Your account has been permanently deleted. We're sorry to see you go."
	}
	return c.Render(http.StatusOK, "public/home", data)
}

func (h *Handler) AboutPage(c echo.Context) error {
	return c.Render(http.StatusOK, "public/about", echo.Map{})
}

func (h *Handler) DeactivatedPage(c echo.Context) error {
	role := ""
	if p := auth.CurrentUser(c); p != nil {
		role = p.Role
	}
	return c.Render(http.StatusOK, "errors/account_deactivated", echo.Map{
		"Notice": NoticeForRole(role),
	})
}

func (h *Handler) LoginPage(c echo.Context) error {
	if p := auth.CurrentUser(c); p != nil {
		return c.Redirect(http.StatusSeeOther, dashboardURL(p.Role))
	}

	success := ""
	switch {
	case c.QueryParam("registered") != "":
		success = "Registration successful! Please login with your credentials."
	case c.QueryParam("reset") == "success":
		success = "Password reset successful! Please login with your new password."
	}
	return c.Render(http.StatusOK, "auth/login", echo.Map{"Success": success})
}

func (h *Handler) Login(c echo.Context) error {
	u, err := h.svc.Login(c.Request().Context(), c.FormValue("email"), c.FormValue("password"))
	if err != nil {
		if errors.Is(err, ErrBadLogin) {
			return c.Render(http.StatusBadRequest, "auth/login", echo.Map{"Error": err.Error()})
		}
		return err
	}

	token, err := auth.SignSession(h.key, u.Username, u.Role, h.ttl)
	if err != nil {
		return err
	}
	auth.SetSessionCookie(c, token, h.ttl)
	return c.Redirect(http.StatusSeeOther, dashboardURL(u.Role))
}

func (h *Handler) RegisterPage(c echo.Context) error {
	if p := auth.CurrentUser(c); p != nil {
		return c.Redirect(http.StatusSeeOther, dashboardURL(p.Role))
	}
	return c.Render(http.StatusOK, "auth/register", echo.Map{})
}

func (h *Handler) Register(c echo.Context) error {
	in := Registration{
		FName:           c.FormValue("fname"),
		LName:           c.FormValue("lname"),
		Email:           c.FormValue("email"),
		Password:        c.FormValue("password"),
		ConfirmPassword: c.FormValue("confirm-password"),
		Role:            c.FormValue("role"),
		Gender:          c.FormValue("gender"),
		BloodType:       c.FormValue("blood_type"),
		Phone:           c.FormValue("phone"),
		Address:         c.FormValue("address"),
		LicenseNumber:   c.FormValue("license_number"),
		Specialization:  c.FormValue("specialization"),
	}

	if _, err := h.svc.Register(c.Request().Context(), in); err != nil {
		if registrationError(err) {
			return c.Render(http.StatusBadRequest, "auth/register", echo.Map{"Error": err.Error()})
		}
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/auth/login?registered=true")
}

func (h *Handler) Logout(c echo.Context) error {
	auth.ClearSessionCookie(c)
	return c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) ResetRequestPage(c echo.Context) error {
	return c.Render(http.StatusOK, "auth/reset_password", echo.Map{})
}

func (h *Handler) RequestReset(c echo.Context) error {
	if err := h.svc.RequestReset(c.Request().Context(), c.FormValue("email")); err != nil {
		return err
	}
	return c.Render(http.StatusOK, "auth/reset_password", echo.Map{
		"Success": "If that email exists, a password reset link has been sent.",
	})
}

func (h *Handler) ResetConfirmPage(c echo.Context) error {
	token := c.QueryParam("token")
	if err := h.svc.ValidateToken(c.Request().Context(), token); err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return c.Render(http.StatusOK, "auth/reset_password_confirm", echo.Map{
				"Error": err.Error(),
				"Token": "",
			})
		}
		return err
	}
	return c.Render(http.StatusOK, "auth/reset_password_confirm", echo.Map{"Token": token})
}

func (h *Handler) ConfirmReset(c echo.Context) error {
	token := c.FormValue("token")
	err := h.svc.ConfirmReset(c.Request().Context(), token,
		c.FormValue("new_password"), c.FormValue("confirm_password"))

	switch {
	case err == nil:
		return c.Redirect(http.StatusSeeOther, "/auth/login?reset=success")
	case errors.Is(err, ErrPasswordsDontMatch), errors.Is(err, user.ErrPasswordTooShort):
		return c.Render(http.StatusBadRequest, "auth/reset_password_confirm", echo.Map{
			"Error": err.Error(),
			"Token": token,
		})
	case errors.Is(err, ErrTokenInvalid):
		return c.Render(http.StatusBadRequest, "auth/reset_password_confirm", echo.Map{
			"Error": err.Error(),
			"Token": "",
		})
	case errors.Is(err, ErrUserMissing):
		return c.Render(http.StatusNotFound, "auth/reset_password_confirm", echo.Map{
			"Error": err.Error(),
			"Token": "",
		})
	}
	return err
}

// APILogin is the JSON login used by non-browser clients. It returns the
// token and also sets the cookie so the same session works in a browser.
func (h *Handler) APILogin(c echo.Context) error {
	u, err := h.svc.Login(c.Request().Context(), c.FormValue("username"), c.FormValue("password"))
	if err != nil {
		if errors.Is(err, ErrBadLogin) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Incorrect username or password")
		}
		return err
	}

	token, err := auth.SignSession(h.key, u.Username, u.Role, h.ttl)
	if err != nil {
		return err
	}
	auth.SetSessionCookie(c, token, h.ttl)
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// Me returns the authenticated account as JSON.
func (h *Handler) Me(c echo.Context) error {
	p := auth.CurrentUser(c)
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}
	u, err := h.svc.Account(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteAccount(c echo.Context) error {
	p := auth.CurrentUser(c)

	if _, err := h.svc.DeleteOwnAccount(c.Request().Context(), p.ID); err != nil {
		flash.Error(c, fmt.Sprintf("Error deleting account: %v", err))
		return c.Redirect(http.StatusSeeOther, "/patient/account")
	}
	auth.ClearSessionCookie(c)
	return c.Redirect(http.StatusSeeOther, "/?deleted=true")
}

// registrationError reports whether err is one of the validation errors
// the register form shows inline.
func registrationError(err error) bool {
	for _, e := range []error{
		ErrBadRole,
		ErrPasswordsDontMatch,
		ErrUsernameRegistered,
		ErrEmailRegistered,
		ErrDoctorFieldsRequired,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

func dashboardURL(role string) string {
	switch role {
	case user.RoleAdmin:
		return "/admin/dashboard"
	case user.RoleDoctor:
		return "/doctor/dashboard"
	}
	return "/patient/dashboard"
}
