package common

import (
	"net/http"
	"strconv"
)

// Page is a resolved page window for list endpoints.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"per_page"`
}

// Offset is the number of rows to skip for this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// Meta builds the pagination block returned next to list data.
func (p Page) Meta(returned int) Pagination {
	return Pagination{Page: p.Number, PerPage: p.Size, TotalItems: returned}
}

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePage reads ?page and ?limit, falling back to def and clamping to max.
func ParsePage(r *http.Request, def, max int) Page {
	q := r.URL.Query()
	p := Page{Number: 1, Size: def}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		p.Size = n
	}
	if max > 0 && p.Size > max {
		p.Size = max
	}
	return p
}
