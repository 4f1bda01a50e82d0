package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(newContext("/admin/doctors"))

	if p.Page != 1 {
		t.Errorf("expected page 1, got %d", p.Page)
	}
	if p.Limit != DefaultLimit {
		t.Errorf("expected limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestFromContext_PageAndLimit(t *testing.T) {
	p := FromContext(newContext("/admin/doctors?page=3&limit=10"))

	if p.Page != 3 {
		t.Errorf("expected page 3, got %d", p.Page)
	}
	if p.Limit != 10 {
		t.Errorf("expected limit 10, got %d", p.Limit)
	}
	if p.Offset != 20 {
		t.Errorf("expected offset 20, got %d", p.Offset)
	}
}

func TestFromContext_ClampsLimit(t *testing.T) {
	p := FromContext(newContext("/admin/doctors?limit=5000"))
	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativePage(t *testing.T) {
	p := FromContext(newContext("/admin/doctors?page=-2"))
	if p.Page != 1 {
		t.Errorf("expected page 1, got %d", p.Page)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestParams_SQL(t *testing.T) {
	p := Params{Page: 2, Limit: 25, Offset: 25}
	if got := p.SQL(); got != "LIMIT 25 OFFSET 25" {
		t.Errorf("unexpected SQL clause: %q", got)
	}
}

func TestParams_TotalPages(t *testing.T) {
	p := Params{Page: 1, Limit: 10}

	cases := []struct {
		total int
		want  int
	}{
		{0, 1},
		{9, 1},
		{10, 1},
		{11, 2},
		{100, 10},
	}
	for _, tc := range cases {
		if got := p.TotalPages(tc.total); got != tc.want {
			t.Errorf("TotalPages(%d): expected %d, got %d", tc.total, tc.want, got)
		}
	}
}

func TestNewPager(t *testing.T) {
	p := Params{Page: 2, Limit: 10, Offset: 10}
	pager := NewPager(p, 35)

	if pager.TotalPages != 4 {
		t.Errorf("expected 4 pages, got %d", pager.TotalPages)
	}
	if !pager.HasNext {
		t.Error("expected HasNext on page 2 of 4")
	}
	if !pager.HasPrevious {
		t.Error("expected HasPrevious on page 2")
	}
	if pager.NextPage != 3 {
		t.Errorf("expected next page 3, got %d", pager.NextPage)
	}
	if pager.PrevPage != 1 {
		t.Errorf("expected previous page 1, got %d", pager.PrevPage)
	}
}

func TestNewPager_LastPage(t *testing.T) {
	p := Params{Page: 4, Limit: 10, Offset: 30}
	pager := NewPager(p, 35)

	if pager.HasNext {
		t.Error("did not expect HasNext on the last page")
	}
	if pager.NextPage != 0 {
		t.Errorf("expected zero next page, got %d", pager.NextPage)
	}
}
