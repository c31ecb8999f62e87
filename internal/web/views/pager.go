package views

import (
	"html/template"
	"net/url"
	"strconv"
)

// Pager holds page links for list views
type Pager struct {
	Page    int
	Pages   int
	PrevURL template.URL
	NextURL template.URL
}

// NewPager computes page links. query carries the active filters and gets
// the page parameter set on each link.
func NewPager(path string, query url.Values, page, perPage, total int) Pager {
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}
	p := Pager{Page: page, Pages: pages}

	link := func(n int) template.URL {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(n))
		return template.URL(path + "?" + q.Encode())
	}
	if page > 1 {
		p.PrevURL = link(page - 1)
	}
	if page < pages {
		p.NextURL = link(page + 1)
	}
	return p
}
