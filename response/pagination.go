package response

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	DefaultPaginationOffset = 0
	DefaultPaginationLimit  = 50
	MaxPaginationLimit      = 500
)

var ErrInvalidPagination = fmt.Errorf("invalid pagination parameter")

// Pagination selects a page of a collection. A Limit of 0 selects every item
// after Offset.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

func NewPagination(offset, limit, total int) Pagination {
	return Pagination{
		Offset: offset,
		Limit:  limit,
		Total:  total,
	}
}

// ParsePagination reads the offset and limit query parameters. Missing
// parameters fall back to the defaults; negative or non-numeric values are
// rejected and limits above MaxPaginationLimit are capped.
func ParsePagination(r *http.Request) (Pagination, error) {
	offset, err := queryInt(r, "offset", DefaultPaginationOffset)
	if err != nil {
		return Pagination{}, err
	}

	limit, err := queryInt(r, "limit", DefaultPaginationLimit)
	if err != nil {
		return Pagination{}, err
	}

	return NewPagination(offset, min(limit, MaxPaginationLimit), 0), nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidPagination, name, raw)
	}
	return val, nil
}

// Bounds returns the slice bounds of the page within a collection of total items.
func (p Pagination) Bounds(total int) (start, end int) {
	start = min(max(p.Offset, 0), total)
	end = total
	if p.Limit > 0 {
		end = min(start+p.Limit, total)
	}
	return start, end
}
