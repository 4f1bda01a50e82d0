package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context.
// Lists are paged by a 1-based "page" query parameter; "limit" may
// override the page size within [1, MaxLimit].
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

// TotalPages returns the number of pages needed for total rows.
func (p Params) TotalPages(total int) int {
	if total <= 0 {
		return 1
	}
	pages := total / p.Limit
	if total%p.Limit != 0 {
		pages++
	}
	return pages
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Page > 1
}

// Pager carries everything a list template needs to render page controls.
type Pager struct {
	Page        int
	Limit       int
	Total       int
	TotalPages  int
	HasNext     bool
	HasPrevious bool
	NextPage    int
	PrevPage    int
}

// NewPager builds a Pager for the given result total.
func NewPager(p Params, total int) Pager {
	pager := Pager{
		Page:        p.Page,
		Limit:       p.Limit,
		Total:       total,
		TotalPages:  p.TotalPages(total),
		HasNext:     p.HasNext(total),
		HasPrevious: p.HasPrevious(),
	}
	if pager.HasNext {
		pager.NextPage = p.Page + 1
	}
	if pager.HasPrevious {
		pager.PrevPage = p.Page - 1
	}
	return pager
}
