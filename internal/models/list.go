package models

import (
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	SortCreatedAt = "created_at"
	SortUpdatedAt = "updated_at"
	SortTitle     = "title"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListQuery describes one page of a caller's task list.
type ListQuery struct {
	Page      int
	Limit     int
	Completed *bool
	Sort      string
	Order     string
	Search    string
}

// Offset is the zero-based index of the first item on the page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Normalize replaces out-of-range or unknown values with their defaults.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		q.Limit = DefaultLimit
	}
	switch q.Sort {
	case SortCreatedAt, SortUpdatedAt, SortTitle:
	default:
		q.Sort = SortCreatedAt
	}
	if q.Order != OrderAsc {
		q.Order = OrderDesc
	}
	// NUL cannot reach a text column, so it is dropped rather than rejected
	q.Search = strings.TrimSpace(strings.ReplaceAll(q.Search, "\x00", ""))
	return q
}

// ParseListQuery builds a normalized ListQuery from raw query string values.
// Invalid values fall back to defaults instead of failing the request.
func ParseListQuery(get func(key string) string) ListQuery {
	q := ListQuery{
		Page:   atoiOr(get("page"), DefaultPage),
		Limit:  atoiOr(get("limit"), DefaultLimit),
		Sort:   strings.ToLower(strings.TrimSpace(get("sort"))),
		Order:  strings.ToLower(strings.TrimSpace(get("order"))),
		Search: get("search"),
	}
	switch strings.ToLower(strings.TrimSpace(get("completed"))) {
	case "true", "1":
		v := true
		q.Completed = &v
	case "false", "0":
		v := false
		q.Completed = &v
	}
	return q.Normalize()
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

// TaskPage is the body of GET /todos.
type TaskPage struct {
	Data  []Task `json:"data"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Total int    `json:"total"`
}
