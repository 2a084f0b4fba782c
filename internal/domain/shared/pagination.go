package shared

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
	// MaxPage keeps Offset well inside int range
	MaxPage = 100000
)

// PageRequest is a 1-based page request
type PageRequest struct {
	Page    int
	PerPage int
}

// Normalize clamps the request to valid bounds
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// Offset returns the row offset of the first item on the page
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// PageMeta describes where a page sits in the full result
type PageMeta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

// Paginated represents a paginated result
type Paginated[T any] struct {
	Items []T      `json:"items"`
	Meta  PageMeta `json:"meta"`
}

// NewPaginated creates a new paginated result
func NewPaginated[T any](items []T, total int64, req PageRequest) Paginated[T] {
	lastPage := int(total) / req.PerPage
	if int(total)%req.PerPage > 0 {
		lastPage++
	}
	if lastPage < 1 {
		lastPage = 1
	}
	if items == nil {
		items = []T{}
	}
	return Paginated[T]{
		Items: items,
		Meta: PageMeta{
			CurrentPage: req.Page,
			PerPage:     req.PerPage,
			Total:       total,
			LastPage:    lastPage,
		},
	}
}
