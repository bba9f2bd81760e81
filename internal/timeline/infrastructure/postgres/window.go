package postgres

import (
	"fmt"
	"strings"

	timeline "reservoir-ops/internal/timeline/domain"
)

// windowClause renders w as a predicate on column. Placeholders are numbered
// from next.
func windowClause(column string, w timeline.Window, next int) (string, []any) {
	lower, upper := ">", "<"
	if w.StartInclusive {
		lower = ">="
	}
	if w.EndInclusive {
		upper = "<="
	}
	clause := fmt.Sprintf("%s %s $%d AND %s %s $%d", column, lower, next, column, upper, next+1)
	return clause, []any{w.Start.UTC(), w.End.UTC()}
}

// pageClause renders ordering and limit for a signed page size. A negative
// size reads the newest rows first; the caller reverses them afterwards.
func pageClause(column string, pageSize int) (clause string, reverse bool) {
	pageSize = timeline.ResolvePageSize(pageSize, 0)
	if pageSize < 0 {
		return fmt.Sprintf("ORDER BY %s DESC LIMIT %d", column, -pageSize), true
	}
	return fmt.Sprintf("ORDER BY %s ASC LIMIT %d", column, pageSize), false
}

// placeholders renders $from..$from+n-1 as a comma separated list.
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ",")
}
