// Package flash carries one-shot notification messages between a redirect
// and the next page load. Messages travel in a short-lived cookie that the
// browser script reads, renders and deletes; the server only ever writes it,
// except to drop a value it can no longer parse.
package flash

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

// CookieName is read by the page script on every load.
const CookieName = "flash_message"

// cookieMaxAge bounds how long an undelivered message survives, in seconds.
const cookieMaxAge = 60

const (
	TypeError   = "error"
	TypeSuccess = "success"
	TypeWarning = "warning"
	TypeInfo    = "info"
)

// Message is the cookie payload. The JSON field names are part of the
// contract with the page script.
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Set queues a message for the next page load. The payload is JSON wrapped
// in percent-encoding so the cookie value stays within RFC 6265 and
// decodeURIComponent on the client reverses it exactly.
func Set(c echo.Context, typ, message string) {
	value, err := encode(Message{Type: typ, Message: message})
	if err != nil {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

func Error(c echo.Context, message string)   { Set(c, TypeError, message) }
func Success(c echo.Context, message string) { Set(c, TypeSuccess, message) }
func Warning(c echo.Context, message string) { Set(c, TypeWarning, message) }
func Info(c echo.Context, message string)    { Set(c, TypeInfo, message) }

// Get returns the pending message on the request, or nil. A cookie that
// fails to decode is cleared so the client does not retry it forever;
// well-formed cookies are left for the page script to consume.
func Get(c echo.Context) *Message {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		Clear(c)
		return nil
	}

	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		Clear(c)
		return nil
	}
	return &m
}

// Clear expires the flash cookie.
func Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

// encode percent-encodes the JSON payload. QueryEscape turns spaces into
// "+" which decodeURIComponent does not reverse, so those are rewritten to
// %20.
func encode(m Message) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(url.QueryEscape(string(b)), "+", "%20"), nil
}
