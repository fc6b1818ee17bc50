package order

import (
	"fmt"
	"sort"
	"strings"
)

// StatusFilter selects orders by status. FilterAll bypasses filtering.
type StatusFilter string

const FilterAll StatusFilter = "all"

func ParseStatusFilter(s string) (StatusFilter, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == string(FilterAll) {
		return FilterAll, nil
	}
	if !Status(s).Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
	}
	return StatusFilter(s), nil
}

func (f StatusFilter) Match(s Status) bool {
	return f == FilterAll || f == "" || Status(f) == s
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "", string(SortDesc), "newest":
		return SortDesc, nil
	case string(SortAsc), "oldest":
		return SortAsc, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSort, s)
	}
}

// FilterOrders keeps the orders matching f, preserving order.
func FilterOrders(orders []Order, f StatusFilter) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if f.Match(o.Status) {
			out = append(out, o)
		}
	}
	return out
}

// SortOrders sorts by created_at, breaking ties by id so results are stable.
func SortOrders(orders []Order, s SortOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if s == SortAsc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if s == SortAsc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
}
