package analysis

import (
	"sort"
)

// Window is one fixed-width bucket [Start, End) and the indices of the
// timestamps that fall into it. Indices is empty for a gap.
type Window struct {
	Indices []int
	Start   int64
	End     int64
}

// TimeSeriesResampler handles time-based bucketing. Timestamps and widths
// are expressed in the same integer unit (nanoseconds in the engine).
type TimeSeriesResampler struct{}

// -----------------------------------------------------------------------------

// WindowStart aligns ts to the bucket grid anchored at origin.
// Floor division keeps timestamps before origin on the correct bucket.
func WindowStart(ts, origin, width int64) int64 {
	offset := ts - origin
	rem := offset % width
	if rem < 0 {
		rem += width
	}
	return ts - rem
}

// -----------------------------------------------------------------------------

// CountWindows returns how many buckets ResampleIndices will produce.
func (r *TimeSeriesResampler) CountWindows(sortedTimestamps []int64, width, origin int64) int64 {
	if len(sortedTimestamps) == 0 || width <= 0 {
		return 0
	}
	first := WindowStart(sortedTimestamps[0], origin, width)
	last := WindowStart(sortedTimestamps[len(sortedTimestamps)-1], origin, width)
	return (last-first)/width + 1
}

// -----------------------------------------------------------------------------

// ResampleIndices groups ascending timestamps into contiguous buckets of the
// given width anchored at origin. Every bucket between the first and the last
// observation is returned, including empty ones, so consecutive Start values
// are exactly width apart.
func (r *TimeSeriesResampler) ResampleIndices(sortedTimestamps []int64, width, origin int64) []Window {
	if len(sortedTimestamps) == 0 || width <= 0 {
		return []Window{}
	}

	first := WindowStart(sortedTimestamps[0], origin, width)
	n := r.CountWindows(sortedTimestamps, width, origin)
	results := make([]Window, 0, n)

	for i := int64(0); i < n; i++ {
		start := first + i*width
		end := start + width

		startIdx := SearchSorted(sortedTimestamps, start, "left")
		endIdx := SearchSorted(sortedTimestamps, end, "left")

		indices := make([]int, 0, endIdx-startIdx)
		for idx := startIdx; idx < endIdx; idx++ {
			indices = append(indices, idx)
		}

		results = append(results, Window{Indices: indices, Start: start, End: end})
	}

	return results
}

// -----------------------------------------------------------------------------

// SearchSorted mirrors numpy's searchsorted on an ascending slice.
func SearchSorted(arr []int64, value int64, side string) int {
	if side == "left" {
		return sort.Search(len(arr), func(i int) bool {
			return arr[i] >= value
		})
	}
	return sort.Search(len(arr), func(i int) bool {
		return arr[i] > value
	})
}
