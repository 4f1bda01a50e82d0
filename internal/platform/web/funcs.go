package web

import (
	"encoding/json"
	"html/template"
	"strings"
	"time"
	"unicode"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/storage"
)

// DefaultFuncs returns the helpers available to every template.
func DefaultFuncs() template.FuncMap {
	return template.FuncMap{
		"formatSize": storage.FormatSize,
		"initials":   Initials,
		"date":       FormatDate,
		"datetime":   FormatDateTime,
		"clock":      FormatClock,
		"json":       JSONAttr,
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
	}
}

// Initials builds the avatar fallback text from a name pair, e.g.
// ("Sara", "Haddad") -> "SH". Empty parts are skipped.
func Initials(first, last string) string {
	var b strings.Builder
	for _, s := range []string{first, last} {
		for _, r := range s {
			if unicode.IsLetter(r) {
				b.WriteRune(unicode.ToUpper(r))
				break
			}
		}
	}
	return b.String()
}

// FormatDate renders a timestamp the way record listings show dates,
// e.g. "Jan 02, 2006". Accepts time.Time or *time.Time so templates can
// pass nullable columns; nil and zero render as "".
func FormatDate(v any) string {
	return formatTime(v, "Jan 02, 2006")
}

// FormatDateTime adds the clock time, e.g. "Jan 02, 2006 at 03:04 PM".
func FormatDateTime(v any) string {
	return formatTime(v, "Jan 02, 2006 at 03:04 PM")
}

// FormatClock renders the time of day alone, e.g. "03:04 PM".
func FormatClock(v any) string {
	return formatTime(v, "03:04 PM")
}

func formatTime(v any, layout string) string {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x == nil {
			return ""
		}
		t = *x
	default:
		return ""
	}
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

// JSONAttr marshals chart payloads for embedding in script blocks. The
// value is produced server-side, never from user-controlled strings.
func JSONAttr(v any) template.JS {
	b, err := json.Marshal(v)
	if err != nil {
		return template.JS("null")
	}
	return template.JS(b)
}
