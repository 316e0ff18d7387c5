package analysis

import (
	"math"
	"time"

	"series-observer/src/analysis/core"
	"series-observer/src/helpers"
	"series-observer/src/models"
	"series-observer/src/utils"
)

// -----------------------------------------------------------------------------

func (e *SeriesEngine) aggregator(name string) (core.Aggregator, error) {
	if name == "" {
		name = e.DefaultFunction
	}
	agg, err := core.GetAggregator(name)
	if err != nil {
		return nil, &helpers.ValidationError{SeriesError: helpers.SeriesError{Message: "invalid transform", Cause: err}}
	}
	return agg, nil
}

// -----------------------------------------------------------------------------

func validValues(points []models.MPoint) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Valid {
			out = append(out, p.Value)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Resample
// -----------------------------------------------------------------------------

func (e *SeriesEngine) resample(series *models.MTimeSeries, spec models.MTransformSpec) ([]models.MPoint, error) {
	width := spec.Interval.Nanoseconds()
	if width <= 0 {
		return nil, helpers.NewValidationError("resample needs a positive interval, got %v", spec.Interval)
	}
	agg, err := e.aggregator(spec.Function)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return []models.MPoint{}, nil
	}

	points := series.Points()
	timestamps := make([]int64, len(points))
	for i, p := range points {
		timestamps[i] = p.Timestamp.UnixNano()
	}

	var origin int64
	if !spec.AlignEpoch {
		origin = timestamps[0]
	}

	if n := e.resampler.CountWindows(timestamps, width, origin); n > int64(e.MaxPoints) {
		return nil, helpers.NewValidationError("resample of %q at %v would produce %d buckets, limit is %d", series.Name(), spec.Interval, n, e.MaxPoints)
	}

	windows := e.resampler.ResampleIndices(timestamps, width, origin)
	out := make([]models.MPoint, len(windows))
	for i, w := range windows {
		ts := time.Unix(0, w.Start).UTC()
		values := make([]float64, 0, len(w.Indices))
		for _, idx := range w.Indices {
			if points[idx].Valid {
				values = append(values, points[idx].Value)
			}
		}
		if len(values) == 0 {
			out[i] = models.Missing(ts)
			continue
		}
		out[i] = models.Observed(ts, agg(values))
	}

	if spec.Interpolate {
		interpolateGaps(out)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// interpolateGaps fills interior null runs linearly in time. Leading and
// trailing nulls have only one neighbour and stay null.
func interpolateGaps(points []models.MPoint) {
	prev := -1
	for i, p := range points {
		if !p.Valid {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			left, right := points[prev], p
			span := float64(right.Timestamp.Sub(left.Timestamp))
			for k := prev + 1; k < i; k++ {
				frac := float64(points[k].Timestamp.Sub(left.Timestamp)) / span
				points[k] = models.Observed(points[k].Timestamp, left.Value+frac*(right.Value-left.Value))
			}
		}
		prev = i
	}
}

// -----------------------------------------------------------------------------
// Rolling aggregate
// -----------------------------------------------------------------------------

func (e *SeriesEngine) rolling(series *models.MTimeSeries, spec models.MTransformSpec) ([]models.MPoint, error) {
	w := spec.Window
	if w < 1 {
		return nil, helpers.NewValidationError("rolling window must be at least 1, got %d", w)
	}
	if w > series.Len() {
		return nil, helpers.NewValidationError("rolling window %d exceeds series length %d", w, series.Len())
	}
	agg, err := e.aggregator(spec.Function)
	if err != nil {
		return nil, err
	}

	points := series.Points()
	out := make([]models.MPoint, len(points))
	for i, p := range points {
		if i < w-1 {
			out[i] = models.Missing(p.Timestamp)
			continue
		}
		values := validValues(points[i-w+1 : i+1])
		if len(values) == 0 {
			out[i] = models.Missing(p.Timestamp)
			continue
		}
		out[i] = models.Observed(p.Timestamp, agg(values))
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Difference and percent change
// -----------------------------------------------------------------------------

func difference(series *models.MTimeSeries) []models.MPoint {
	return pairwise(series, func(cur, prev float64) (float64, bool) {
		return cur - prev, true
	})
}

func pctChange(series *models.MTimeSeries) []models.MPoint {
	return pairwise(series, func(cur, prev float64) (float64, bool) {
		if prev == 0 {
			return 0, false
		}
		return core.CalculateChangePercent(cur, prev), true
	})
}

// pairwise maps consecutive pairs onto the later timestamp; output length is n-1.
func pairwise(series *models.MTimeSeries, fn func(cur, prev float64) (float64, bool)) []models.MPoint {
	points := series.Points()
	if len(points) < 2 {
		return []models.MPoint{}
	}
	out := make([]models.MPoint, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if !prev.Valid || !cur.Valid {
			out = append(out, models.Missing(cur.Timestamp))
			continue
		}
		v, ok := fn(cur.Value, prev.Value)
		if !ok {
			out = append(out, models.Missing(cur.Timestamp))
			continue
		}
		out = append(out, models.Observed(cur.Timestamp, v))
	}
	return out
}

// -----------------------------------------------------------------------------
// Normalize and z-score
// -----------------------------------------------------------------------------

func normalize(series *models.MTimeSeries) ([]models.MPoint, error) {
	points := series.Points()
	values := validValues(points)
	if len(values) == 0 {
		return nil, helpers.NewDegenerateRangeError("series %q has no values to normalize", series.Name())
	}
	lo, hi := core.MinMax(values)
	if lo == hi {
		return nil, helpers.NewDegenerateRangeError("series %q has constant value %v, range is empty", series.Name(), lo)
	}

	for i, p := range points {
		if p.Valid {
			points[i].Value = core.Rescale(p.Value, lo, hi)
		}
	}
	return points, nil
}

func zscore(series *models.MTimeSeries) ([]models.MPoint, error) {
	points := series.Points()
	values := validValues(points)
	mean, std := core.CalculateMeanStd(values)
	if std == 0 {
		return nil, helpers.NewDegenerateRangeError("series %q has zero standard deviation", series.Name())
	}
	if math.IsInf(std, 0) || math.IsNaN(std) {
		return nil, helpers.NewDegenerateRangeError("series %q has a standard deviation beyond float64 range", series.Name())
	}

	for i, p := range points {
		if p.Valid {
			points[i].Value = core.CalculateZScore(p.Value, mean, std)
		}
	}
	return points, nil
}

// -----------------------------------------------------------------------------
// Business days
// -----------------------------------------------------------------------------

func businessDays(series *models.MTimeSeries, spec models.MTransformSpec) ([]models.MPoint, error) {
	mic := spec.MIC
	if mic == "" {
		mic = utils.DefaultMIC
	}
	cal, err := utils.GetCalendar(mic)
	if err != nil {
		return nil, &helpers.ValidationError{SeriesError: helpers.SeriesError{Message: "invalid transform", Cause: err}}
	}

	out := make([]models.MPoint, 0, series.Len())
	for _, p := range series.Points() {
		if cal.IsBusinessDate(p.Timestamp) {
			out = append(out, p)
		}
	}
	return out, nil
}
