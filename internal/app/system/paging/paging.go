// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
)

// PageSize is the default number of rows shown in paged lists.
const PageSize = 50

// ParseStart extracts the human-friendly "start" query parameter (1-based index).
// Returns 1 if not present or invalid.
func ParseStart(r *http.Request) int {
	s := query.Get(r, "start")
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Offset converts a 1-based start index into a skip count.
func Offset(start int) int64 {
	if start < 1 {
		return 0
	}
	return int64(start - 1)
}

// Range holds computed display range values for a paginated list.
type Range struct {
	Start     int // 1-based start index (0 if no results)
	End       int // 1-based end index (0 if no results)
	Total     int64
	PrevStart int // start value for previous page link
	NextStart int // start value for next page link
	HasPrev   bool
	HasNext   bool
}

// ComputeRange calculates display range values given the current start
// index, the number of rows shown and the total matching rows.
func ComputeRange(start, shown int, total int64) Range {
	return computeRangeWithSize(start, shown, total, PageSize)
}

func computeRangeWithSize(start, shown int, total int64, pageSize int) Range {
	if start < 1 {
		start = 1
	}
	if shown == 0 {
		return Range{
			Total:     total,
			PrevStart: 1,
			NextStart: 1,
			HasPrev:   start > 1,
		}
	}

	prevStart := start - pageSize
	if prevStart < 1 {
		prevStart = 1
	}
	end := start + shown - 1

	return Range{
		Start:     start,
		End:       end,
		Total:     total,
		PrevStart: prevStart,
		NextStart: end + 1,
		HasPrev:   start > 1,
		HasNext:   int64(end) < total,
	}
}
