package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusFilter(t *testing.T) {
	tests := []struct {
		in       string
		expected StatusFilter
		err      bool
	}{
		{"", FilterAll, false},
		{"all", FilterAll, false},
		{"PENDING", StatusFilter(StatusPending), false},
		{"completed", StatusFilter(StatusCompleted), false},
		{"cancelled", StatusFilter(StatusCancelled), false},
		{"shipped", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := ParseStatusFilter(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidFilter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestParseSortOrder(t *testing.T) {
	s, err := ParseSortOrder("")
	require.NoError(t, err)
	assert.Equal(t, SortDesc, s)

	s, err = ParseSortOrder("oldest")
	require.NoError(t, err)
	assert.Equal(t, SortAsc, s)

	_, err = ParseSortOrder("sideways")
	assert.ErrorIs(t, err, ErrInvalidSort)
}

func TestFilterOrders_OneOfThree(t *testing.T) {
	orders := []Order{
		{ID: "1", Status: StatusPending},
		{ID: "2", Status: StatusCompleted},
		{ID: "3", Status: StatusCancelled},
	}

	pending := FilterOrders(orders, StatusFilter(StatusPending))
	require.Len(t, pending, 1)
	assert.Equal(t, "1", pending[0].ID)

	assert.Len(t, FilterOrders(orders, FilterAll), 3)
}

func TestSortOrders(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	orders := []Order{
		{ID: "b", CreatedAt: base.Add(time.Minute)},
		{ID: "a", CreatedAt: base},
		{ID: "c", CreatedAt: base.Add(time.Minute)},
	}

	SortOrders(orders, SortAsc)
	assert.Equal(t, []string{"a", "b", "c"}, ids(orders))

	SortOrders(orders, SortDesc)
	assert.Equal(t, []string{"c", "b", "a"}, ids(orders))
}

func ids(orders []Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
