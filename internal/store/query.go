package store

import (
	"fmt"
	"strings"
)

// whereBuilder accumulates AND-ed conditions with positional arguments.
type whereBuilder struct {
	conds []string
	args  []any
}

// bind appends v and returns its placeholder.
func (b *whereBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// add appends a condition. Each %s in format is replaced by a placeholder for
// the matching value in vals.
func (b *whereBuilder) add(format string, vals ...any) {
	placeholders := make([]any, len(vals))
	for i, v := range vals {
		placeholders[i] = b.bind(v)
	}
	b.conds = append(b.conds, fmt.Sprintf(format, placeholders...))
}

func (b *whereBuilder) sql() string {
	if len(b.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(b.conds, " AND ")
}

// clone copies the builder so a shared prefix can be extended independently.
func (b *whereBuilder) clone() *whereBuilder {
	return &whereBuilder{
		conds: append([]string(nil), b.conds...),
		args:  append([]any(nil), b.args...),
	}
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage clamps page to >= 1 and limit to [1, MaxPageSize], using
// fallback when limit is unset.
func NormalizePage(page, limit, fallback int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = fallback
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// TotalPages is ceil(total/limit) but never less than 1.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

func sortDirection(order string) string {
	if strings.EqualFold(strings.TrimSpace(order), "asc") {
		return "ASC"
	}
	return "DESC"
}
