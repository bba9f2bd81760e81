package timeline

import (
	"math"
	"sort"
	"time"
)

// DefaultPageSize applies when a caller passes a page size of zero.
const DefaultPageSize = 500

// MaxPageSize bounds the magnitude of a signed page size.
const MaxPageSize = math.MaxInt32

// Window is a time range with independently inclusive bounds.
type Window struct {
	Start          time.Time
	End            time.Time
	StartInclusive bool
	EndInclusive   bool
}

// NewWindow builds a query window with the default bounds [start, end).
func NewWindow(start, end time.Time) Window {
	return Window{Start: start.UTC(), End: end.UTC(), StartInclusive: true}
}

// ClosedWindow builds [start, end], the default for deletes.
func ClosedWindow(start, end time.Time) Window {
	return Window{Start: start.UTC(), End: end.UTC(), StartInclusive: true, EndInclusive: true}
}

// Validate checks that both bounds are set and ordered.
func (w Window) Validate() error {
	if w.Start.IsZero() {
		return validationError("begin", "required")
	}
	if w.End.IsZero() {
		return validationError("end", "required")
	}
	if w.End.Before(w.Start) {
		return validationError("end", "before begin")
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.StartInclusive {
		if t.Before(w.Start) {
			return false
		}
	} else if !t.After(w.Start) {
		return false
	}
	if w.EndInclusive {
		return !t.After(w.End)
	}
	return t.Before(w.End)
}

// ResolvePageSize maps zero to fallback, or to DefaultPageSize when fallback
// is zero as well. Signed values pass through, clamped to ±MaxPageSize.
func ResolvePageSize(pageSize, fallback int) int {
	if pageSize == 0 {
		pageSize = fallback
	}
	switch {
	case pageSize == 0:
		return DefaultPageSize
	case pageSize > MaxPageSize:
		return MaxPageSize
	case pageSize < -MaxPageSize:
		return -MaxPageSize
	}
	return pageSize
}

// Select filters items to the window and applies the signed page size.
//
// A positive size keeps the first n matches counted from the window start. A
// negative size keeps the last n matches counted from the window end. The
// result is ascending either way, and no cursor is returned: callers continue
// by querying again from the last timestamp with StartInclusive unset.
func Select[T any](items []T, at func(T) time.Time, w Window, pageSize int) []T {
	pageSize = ResolvePageSize(pageSize, 0)
	matched := make([]T, 0, len(items))
	for _, item := range items {
		if w.Contains(at(item)) {
			matched = append(matched, item)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return at(matched[i]).Before(at(matched[j]))
	})
	return Page(matched, pageSize)
}

// Page trims an ascending slice by a signed page size.
func Page[T any](ascending []T, pageSize int) []T {
	n := pageSize
	if n < 0 {
		n = -n
	}
	// -math.MinInt overflows back to a negative value.
	if n < 0 || n >= len(ascending) {
		return ascending
	}
	if pageSize > 0 {
		return ascending[:n]
	}
	return ascending[len(ascending)-n:]
}
