package core

import (
	"fmt"
	"sort"
)

// -----------------------------------------------------------------------------

// Aggregator reduces a non-empty slice of values to one value.
type Aggregator func(values []float64) float64

var aggregators = map[string]Aggregator{
	"mean":   Mean,
	"sum":    Sum,
	"min":    Min,
	"max":    Max,
	"first":  func(v []float64) float64 { return v[0] },
	"last":   func(v []float64) float64 { return v[len(v)-1] },
	"count":  func(v []float64) float64 { return float64(len(v)) },
	"median": Median,
}

// -----------------------------------------------------------------------------

// GetAggregator returns the aggregation function registered under name.
func GetAggregator(name string) (Aggregator, error) {
	agg, ok := aggregators[name]
	if !ok {
		return nil, fmt.Errorf("unknown aggregation function %q", name)
	}
	return agg, nil
}

// -----------------------------------------------------------------------------

func Sum(data []float64) float64 {
	total := 0.0
	for _, v := range data {
		total += v
	}
	return total
}

// -----------------------------------------------------------------------------

func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return Sum(data) / float64(len(data))
}

// -----------------------------------------------------------------------------

func Min(data []float64) float64 {
	lo, _ := MinMax(data)
	return lo
}

func Max(data []float64) float64 {
	_, hi := MinMax(data)
	return hi
}

// MinMax returns the extremes of data, zeros when empty.
func MinMax(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// -----------------------------------------------------------------------------

// Median sorts a copy of data.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// -----------------------------------------------------------------------------

// CalculateChangePercent calculates relative change, 0 when previous is 0.
func CalculateChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0.0
	}
	return (current - previous) / previous
}
