package core

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SortField is a whitelisted column a page can be ordered by.
type SortField string

const (
	SortCreatedAt   SortField = "createdAt"
	SortUpdatedAt   SortField = "updatedAt"
	SortCountryCode SortField = "countryCode"
	SortType        SortField = "type"
)

// IsValid reports whether f is a supported sort field.
func (f SortField) IsValid() bool {
	switch f {
	case SortCreatedAt, SortUpdatedAt, SortCountryCode, SortType:
		return true
	}
	return false
}

// PageRequest selects a zero-based page.
type PageRequest struct {
	Page       int
	Size       int
	Sort       SortField
	Descending bool
}

// DefaultPageRequest returns the first page ordered by newest first.
func DefaultPageRequest() PageRequest {
	return PageRequest{Page: 0, Size: DefaultPageSize, Sort: SortCreatedAt, Descending: true}
}

// Offset is the number of rows skipped before this page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Normalize clamps out-of-range values to defaults.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	if !p.Sort.IsValid() {
		p.Sort = SortCreatedAt
	}
	return p
}

// ListFilter narrows a listing. Empty fields are not applied.
type ListFilter struct {
	CountryCode string
	Type        ResourceType
}

// Page is one slice of a larger result set.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// NewPage assembles a page and derives the page count.
func NewPage[T any](content []T, req PageRequest, total int64) *Page[T] {
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	if content == nil {
		content = []T{}
	}
	return &Page[T]{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}

// MapPage converts the content of p with fn.
func MapPage[T, U any](p *Page[T], fn func(T) U) *Page[U] {
	out := make([]U, 0, len(p.Content))
	for _, item := range p.Content {
		out = append(out, fn(item))
	}
	return &Page[U]{
		Content:       out,
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
	}
}
