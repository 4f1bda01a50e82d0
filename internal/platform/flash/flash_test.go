package flash

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(t *testing.T, cookieValue string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookieValue != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: cookieValue})
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func flashCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == CookieName {
			return ck
		}
	}
	return nil
}

func TestSetWritesCookie(t *testing.T) {
	c, rec := newContext(t, "")
	Set(c, TypeSuccess, "Account created successfully")

	ck := flashCookie(t, rec)
	if ck == nil {
		t.Fatal("expected flash cookie on response")
	}
	if ck.Path != "/" {
		t.Errorf("expected path /, got %s", ck.Path)
	}
	if ck.MaxAge != cookieMaxAge {
		t.Errorf("expected max age %d, got %d", cookieMaxAge, ck.MaxAge)
	}
	if ck.HttpOnly {
		t.Error("flash cookie must be readable by the page script")
	}

	raw, err := url.QueryUnescape(ck.Value)
	if err != nil {
		t.Fatalf("unescape cookie value: %v", err)
	}
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal cookie value: %v", err)
	}
	if m.Type != TypeSuccess {
		t.Errorf("expected type %s, got %s", TypeSuccess, m.Type)
	}
	if m.Message != "Account created successfully" {
		t.Errorf("unexpected message %q", m.Message)
	}
}

func TestSetEscapesReservedCharacters(t *testing.T) {
	c, rec := newContext(t, "")
	Set(c, TypeError, `Upload failed: file "report.csv" is 6 MB, limit is 5 MB + overhead`)

	ck := flashCookie(t, rec)
	if ck == nil {
		t.Fatal("expected flash cookie on response")
	}
	for _, bad := range []string{" ", "+", `"`, ","} {
		if strings.Contains(ck.Value, bad) {
			t.Errorf("cookie value contains unescaped %q: %s", bad, ck.Value)
		}
	}

	raw, err := url.QueryUnescape(ck.Value)
	if err != nil {
		t.Fatalf("unescape cookie value: %v", err)
	}
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal cookie value: %v", err)
	}
	if !strings.Contains(m.Message, `"report.csv"`) {
		t.Errorf("message lost content through encoding: %q", m.Message)
	}
}

func TestGetRoundTrip(t *testing.T) {
	value, err := encode(Message{Type: TypeWarning, Message: "Session expires soon"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	c, rec := newContext(t, value)
	m := Get(c)
	if m == nil {
		t.Fatal("expected message")
	}
	if m.Type != TypeWarning || m.Message != "Session expires soon" {
		t.Errorf("unexpected message %+v", m)
	}
	if flashCookie(t, rec) != nil {
		t.Error("valid cookie should be left for the page script to consume")
	}
}

func TestGetMissing(t *testing.T) {
	c, _ := newContext(t, "")
	if m := Get(c); m != nil {
		t.Errorf("expected nil for missing cookie, got %+v", m)
	}
}

func TestGetMalformedJSONClears(t *testing.T) {
	c, rec := newContext(t, url.QueryEscape("not json at all"))
	if m := Get(c); m != nil {
		t.Errorf("expected nil for malformed payload, got %+v", m)
	}

	ck := flashCookie(t, rec)
	if ck == nil || ck.MaxAge >= 0 {
		t.Error("expected malformed cookie to be expired")
	}
}

func TestGetBadEscapeClears(t *testing.T) {
	c, rec := newContext(t, "%zz%")
	if m := Get(c); m != nil {
		t.Errorf("expected nil for undecodable cookie, got %+v", m)
	}

	ck := flashCookie(t, rec)
	if ck == nil || ck.MaxAge >= 0 {
		t.Error("expected undecodable cookie to be expired")
	}
}

func TestClear(t *testing.T) {
	c, rec := newContext(t, "")
	Clear(c)

	ck := flashCookie(t, rec)
	if ck == nil {
		t.Fatal("expected expired cookie on response")
	}
	if ck.MaxAge >= 0 {
		t.Errorf("expected negative max age, got %d", ck.MaxAge)
	}
}

func TestConvenienceHelpers(t *testing.T) {
	cases := []struct {
		name string
		set  func(echo.Context, string)
		want string
	}{
		{"error", Error, TypeError},
		{"success", Success, TypeSuccess},
		{"warning", Warning, TypeWarning},
		{"info", Info, TypeInfo},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newContext(t, "")
			tc.set(c, "msg")

			ck := flashCookie(t, rec)
			if ck == nil {
				t.Fatal("expected flash cookie")
			}
			raw, err := url.QueryUnescape(ck.Value)
			if err != nil {
				t.Fatalf("unescape: %v", err)
			}
			var m Message
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if m.Type != tc.want {
				t.Errorf("expected type %s, got %s", tc.want, m.Type)
			}
		})
	}
}
