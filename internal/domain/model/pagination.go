package model

import "time"

// Pagination bounds.
const (
	DefaultPerPage       = 25
	MaxPerPage           = 100
	DefaultPrefetchPages = 1
	MaxPrefetchPages     = 10
)

// Pagination is the paging request of a list call.
type Pagination struct {
	Page          int
	PerPage       int
	PrefetchPages int
}

// Normalize applies defaults and clamps every field to its allowed range.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	if p.PrefetchPages < 1 {
		p.PrefetchPages = DefaultPrefetchPages
	}
	if p.PrefetchPages > MaxPrefetchPages {
		p.PrefetchPages = MaxPrefetchPages
	}
	return p
}

// Offset is the row offset of the first item on Page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// PrefetchToken binds a follow-up summary call to the list call that issued it.
type PrefetchToken struct {
	Token             string    `json:"-"`
	FilterFingerprint string    `json:"fp"`
	Page              int       `json:"page"`
	PerPage           int       `json:"per_page"`
	RequestedPages    int       `json:"requested_pages"`
	BufferedPages     int       `json:"buffered_pages"`
	CreatedAt         time.Time `json:"created_at"`
}

// PageInfo describes the window returned by a list call.
type PageInfo struct {
	Page           int
	PerPage        int
	RequestedPages int
	BufferedPages  int
	HasMore        bool
	Token          string
}

// JumpEntry marks where a page starts, for "jump to page" navigation.
type JumpEntry struct {
	Page        int
	FirstItemID string
	SortValue   time.Time
}
