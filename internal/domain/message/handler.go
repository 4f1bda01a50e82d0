package message

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/flash"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the contact page.
func (h *Handler) RegisterPublicRoutes(e *echo.Echo) {
	e.GET("/contact", h.ContactPage)
	e.POST("/contact", h.SubmitContact)
}

// RegisterAdminRoutes mounts the inbox views.
func (h *Handler) RegisterAdminRoutes(g *echo.Group) {
	g.GET("/messages", h.InboxPage)
	g.GET("/messages/:id", h.MessagePage)
	g.POST("/messages/mark-all-read", h.MarkAllRead)
	g.POST("/messages/:id/mark-read", h.MarkRead)
	g.POST("/messages/:id/delete", h.DeleteMessage)
}

// ContactPage renders the form. The outcome banner and the subject
// prefill ride in as query parameters so the page works logged out,
// without the flash cookie.
func (h *Handler) ContactPage(c echo.Context) error {
	return c.Render(http.StatusOK, "public/contact", echo.Map{
		"Sent":    c.QueryParam("success") == "1",
		"Failed":  c.QueryParam("error") == "1",
		"Subject": c.QueryParam("subject"),
	})
}

func (h *Handler) SubmitContact(c echo.Context) error {
	in := ContactForm{
		Name:    c.FormValue("name"),
		Email:   c.FormValue("email"),
		Subject: c.FormValue("subject"),
		Body:    c.FormValue("message"),
	}
	if _, err := h.svc.Submit(c.Request().Context(), in); err != nil {
		return c.Redirect(http.StatusSeeOther, "/contact?error=1")
	}
	return c.Redirect(http.StatusSeeOther, "/contact?success=1")
}

func (h *Handler) InboxPage(c echo.Context) error {
	list, unread, err := h.svc.Inbox(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "admin/messages", echo.Map{
		"Messages":    list,
		"UnreadCount": unread,
	})
}

func (h *Handler) MessagePage(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, ErrNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/admin/messages")
	}

	m, err := h.svc.View(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			flash.Error(c, err.Error())
			return c.Redirect(http.StatusSeeOther, "/admin/messages")
		}
		return err
	}
	return c.Render(http.StatusOK, "admin/message_detail", echo.Map{
		"Message": m,
	})
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err == nil {
		if err := h.svc.MarkRead(c.Request().Context(), id); err != nil {
			return err
		}
	}
	flash.Success(c, "Message marked as read")
	return c.Redirect(http.StatusSeeOther, "/admin/messages")
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	if _, err := h.svc.MarkAllRead(c.Request().Context()); err != nil {
		return err
	}
	flash.Success(c, "All messages marked as read")
	return c.Redirect(http.StatusSeeOther, "/admin/messages")
}

func (h *Handler) DeleteMessage(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		flash.Error(c, ErrNotFound.Error())
		return c.Redirect(http.StatusSeeOther, "/admin/messages")
	}

	deleted, err := h.svc.Delete(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if deleted {
		flash.Success(c, "Message deleted successfully")
	} else {
		flash.Error(c, ErrNotFound.Error())
	}
	return c.Redirect(http.StatusSeeOther, "/admin/messages")
}
