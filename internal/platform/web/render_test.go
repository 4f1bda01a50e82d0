package web

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
)

const testLayout = `{{define "layout"}}<html><body>{{if .User}}<nav>{{.User.Username}}</nav>{{end}}{{template "content" .}}</body></html>{{end}}`

func writeTemplates(t *testing.T, pages map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "layout.html"), []byte(testLayout), 0o644); err != nil {
		t.Fatal(err)
	}
	for name, body := range pages {
		path := filepath.Join(root, filepath.FromSlash(name)+".html")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func renderPage(t *testing.T, r *TemplateRenderer, name string, data any, user *auth.Principal) string {
	t.Helper()
	e := echo.New()
	e.Renderer = r
	req := httptest.NewRequest(http.MethodGet, "/somewhere", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if user != nil {
		c.Set("session_user", user)
	}
	if err := c.Render(http.StatusOK, name, data); err != nil {
		t.Fatalf("render %s: %v", name, err)
	}
	return rec.Body.String()
}

func TestRenderPageInsideLayout(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"home": `{{define "content"}}<h1>{{.Data.Title}}</h1>{{end}}`,
	})
	r := NewTemplateRenderer(root, false)

	out := renderPage(t, r, "home", map[string]any{"Title": "Blood Diagnosis"}, nil)
	if !strings.Contains(out, "<h1>Blood Diagnosis</h1>") {
		t.Errorf("content block missing: %s", out)
	}
	if !strings.Contains(out, "<html>") {
		t.Errorf("layout missing: %s", out)
	}
}

func TestRenderInjectsUser(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"home": `{{define "content"}}ok{{end}}`,
	})
	r := NewTemplateRenderer(root, false)

	out := renderPage(t, r, "home", nil, &auth.Principal{Username: "drsmith"})
	if !strings.Contains(out, "<nav>drsmith</nav>") {
		t.Errorf("user not injected: %s", out)
	}
}

func TestRenderNestedPageName(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"auth/login": `{{define "content"}}login form{{end}}`,
	})
	r := NewTemplateRenderer(root, false)

	out := renderPage(t, r, "auth/login", nil, nil)
	if !strings.Contains(out, "login form") {
		t.Errorf("nested page not rendered: %s", out)
	}
}

func TestRenderMissingPage(t *testing.T) {
	root := writeTemplates(t, nil)
	r := NewTemplateRenderer(root, false)

	e := echo.New()
	e.Renderer = r
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := c.Render(http.StatusOK, "nope", nil); err == nil {
		t.Error("expected error for missing page file")
	}
}

func TestDevModeReparsesOnEachRequest(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"home": `{{define "content"}}v1{{end}}`,
	})
	r := NewTemplateRenderer(root, true)

	if out := renderPage(t, r, "home", nil, nil); !strings.Contains(out, "v1") {
		t.Fatalf("expected v1, got %s", out)
	}

	page := filepath.Join(root, "home.html")
	if err := os.WriteFile(page, []byte(`{{define "content"}}v2{{end}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if out := renderPage(t, r, "home", nil, nil); !strings.Contains(out, "v2") {
		t.Errorf("dev renderer should pick up the edit, got %s", out)
	}
}

func TestProdModeCachesParsedTemplate(t *testing.T) {
	root := writeTemplates(t, map[string]string{
		"home": `{{define "content"}}v1{{end}}`,
	})
	r := NewTemplateRenderer(root, false)

	renderPage(t, r, "home", nil, nil)

	page := filepath.Join(root, "home.html")
	if err := os.WriteFile(page, []byte(`{{define "content"}}v2{{end}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if out := renderPage(t, r, "home", nil, nil); !strings.Contains(out, "v1") {
		t.Errorf("prod renderer should serve the cached parse, got %s", out)
	}
}

func TestInitials(t *testing.T) {
	cases := []struct {
		first, last, want string
	}{
		{"Sara", "Haddad", "SH"},
		{"ali", "karim", "AK"},
		{"", "Haddad", "H"},
		{"Sara", "", "S"},
		{"", "", ""},
	}
	for _, tc := range cases {
		if got := Initials(tc.first, tc.last); got != tc.want {
			t.Errorf("Initials(%q, %q) = %q, want %q", tc.first, tc.last, got, tc.want)
		}
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2026, 3, 7, 14, 30, 0, 0, time.UTC)
	if got := FormatDate(d); got != "Mar 07, 2026" {
		t.Errorf("FormatDate = %q", got)
	}
	if got := FormatDateTime(d); got != "Mar 07, 2026 at 02:30 PM" {
		t.Errorf("FormatDateTime = %q", got)
	}
	if got := FormatClock(d); got != "02:30 PM" {
		t.Errorf("FormatClock = %q", got)
	}
	if got := FormatDate(time.Time{}); got != "" {
		t.Errorf("zero time should render empty, got %q", got)
	}
	if got := FormatDate(&d); got != "Mar 07, 2026" {
		t.Errorf("pointer time should render the same, got %q", got)
	}
	if got := FormatDate((*time.Time)(nil)); got != "" {
		t.Errorf("nil time should render empty, got %q", got)
	}
}

func TestJSONAttr(t *testing.T) {
	got := string(JSONAttr(map[string]int{"Anemia": 3}))
	if got != `{"Anemia":3}` {
		t.Errorf("JSONAttr = %s", got)
	}
	if string(JSONAttr(func() {})) != "null" {
		t.Error("unmarshalable value should render null")
	}
}
