// Package web renders server-side HTML pages. Every page shares one
// layout; the page file contributes the "content" block and optional
// "scripts" block. In development templates are re-parsed on every
// request so edits show up without a restart; in production each page is
// parsed once and cached.
package web

import (
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
)

// Page wraps what every template execution receives. Layout blocks read
// User and Path for navigation state; page content reads Data.
type Page struct {
	Data any
	User *auth.Principal
	Path string
}

// TemplateRenderer implements echo.Renderer over html/template files
// under root. Page names map to files, so "auth/login" renders
// root/auth/login.html inside root/layout.html.
type TemplateRenderer struct {
	root  string
	funcs template.FuncMap
	dev   bool

	mu    sync.RWMutex
	cache map[string]*template.Template
}

func NewTemplateRenderer(root string, dev bool) *TemplateRenderer {
	return &TemplateRenderer{
		root:  root,
		funcs: DefaultFuncs(),
		dev:   dev,
		cache: make(map[string]*template.Template),
	}
}

func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, err := t.lookup(name)
	if err != nil {
		return err
	}

	page := Page{
		Data: data,
		User: auth.CurrentUser(c),
		Path: c.Request().URL.Path,
	}
	return tmpl.ExecuteTemplate(w, "layout", page)
}

func (t *TemplateRenderer) lookup(name string) (*template.Template, error) {
	if !t.dev {
		t.mu.RLock()
		tmpl, ok := t.cache[name]
		t.mu.RUnlock()
		if ok {
			return tmpl, nil
		}
	}

	files := []string{
		filepath.Join(t.root, "layout.html"),
		filepath.Join(t.root, filepath.FromSlash(name)+".html"),
	}
	tmpl, err := template.New(name).Funcs(t.funcs).ParseFiles(files...)
	if err != nil {
		return nil, fmt.Errorf("parsing page %s: %w", name, err)
	}

	if !t.dev {
		t.mu.Lock()
		t.cache[name] = tmpl
		t.mu.Unlock()
	}
	return tmpl, nil
}
