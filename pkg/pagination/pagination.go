package pagination

import "gorm.io/gorm"

const (
	// DefaultPage is the first page; pages are 1-based.
	DefaultPage = 1
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 10
	// MaxLimit caps how many rows any list query can request.
	MaxLimit = 100
)

// Params holds page/limit inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Page is the list response shape shared by every list endpoint.
type Page[T any] struct {
	Count   int64 `json:"count"`
	Results []T   `json:"results"`
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize fills defaults and clamps the limit.
func (p Params) Normalize() Params {
	if p.Page <= 0 {
		p.Page = DefaultPage
	}
	p.Limit = NormalizeLimit(p.Limit)
	return p
}

// Offset is the number of rows skipped before the requested page.
func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// Scope applies limit/offset to a query as a gorm scope.
func (p Params) Scope() func(*gorm.DB) *gorm.DB {
	n := p.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(n.Offset()).Limit(n.Limit)
	}
}

// Map converts a page of one type into another, preserving the count.
func Map[T, U any](page Page[T], fn func(T) U) Page[U] {
	out := Page[U]{Count: page.Count, Results: make([]U, 0, len(page.Results))}
	for _, item := range page.Results {
		out.Results = append(out.Results, fn(item))
	}
	return out
}
