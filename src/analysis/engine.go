package analysis

import (
	"context"
	"sort"

	"series-observer/src/analysis/core"
	"series-observer/src/helpers"
	"series-observer/src/logger"
	"series-observer/src/models"
	"series-observer/src/utils"

	"golang.org/x/sync/errgroup"
)

// -----------------------------------------------------------------------------
// SeriesEngine turns raw time-indexed data into validated series and derives
// new series from them. It holds only read-only settings, so one engine can
// serve any number of goroutines. Errors are returned, never logged.
// -----------------------------------------------------------------------------

type SeriesEngine struct {
	MaxPoints       int
	DefaultFunction string
	Logger          *logger.Logger
	resampler       *TimeSeriesResampler
}

// -----------------------------------------------------------------------------

func NewSeriesEngine(cfg models.MEngineConfig, log *logger.Logger) *SeriesEngine {
	maxPoints := cfg.MaxPoints
	if maxPoints <= 0 {
		maxPoints = utils.DefaultMaxPoints
	}
	fn := cfg.DefaultFunction
	if fn == "" {
		fn = models.FuncMean
	}
	return &SeriesEngine{
		MaxPoints:       maxPoints,
		DefaultFunction: fn,
		Logger:          log,
		resampler:       &TimeSeriesResampler{},
	}
}

// -----------------------------------------------------------------------------

// Validate sorts the series by timestamp and removes duplicate timestamps,
// keeping the last value seen for each. Fails when fewer than 2 points remain.
func (e *SeriesEngine) Validate(series *models.MTimeSeries) (*models.MTimeSeries, error) {
	out := sortAndDedupe(series)
	if out.Len() < 2 {
		return nil, helpers.NewValidationError("series %q has %d point(s) after validation, need at least 2", series.Name(), out.Len())
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func sortAndDedupe(series *models.MTimeSeries) *models.MTimeSeries {
	pts := series.Points()

	// Stable sort keeps input order among equal timestamps, so the last
	// occurrence ends each run.
	sort.SliceStable(pts, func(i, j int) bool {
		return pts[i].Timestamp.Before(pts[j].Timestamp)
	})

	out := pts[:0]
	for _, p := range pts {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(p.Timestamp) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return models.NewTimeSeries(series.Name(), out)
}

// -----------------------------------------------------------------------------

// Transform applies spec to series and returns a new series with the same name.
func (e *SeriesEngine) Transform(series *models.MTimeSeries, spec models.MTransformSpec) (*models.MTimeSeries, error) {
	if series.Len() > e.MaxPoints {
		return nil, helpers.NewValidationError("series %q has %d points, limit is %d", series.Name(), series.Len(), e.MaxPoints)
	}
	ordered := sortAndDedupe(series)

	var out []models.MPoint
	var err error

	switch spec.Kind {
	case models.KindResample:
		out, err = e.resample(ordered, spec)
	case models.KindRolling:
		out, err = e.rolling(ordered, spec)
	case models.KindDifference:
		out = difference(ordered)
	case models.KindNormalize:
		out, err = normalize(ordered)
	case models.KindPctChange:
		out = pctChange(ordered)
	case models.KindZScore:
		out, err = zscore(ordered)
	case models.KindBusinessDays:
		out, err = businessDays(ordered, spec)
	default:
		err = helpers.NewValidationError("unknown transform kind %q", spec.Kind)
	}
	if err != nil {
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Debug("%s on %q: %d -> %d points", spec.Kind, series.Name(), series.Len(), len(out))
	}
	return models.NewTimeSeries(series.Name(), out), nil
}

// -----------------------------------------------------------------------------

// TransformAll applies spec to every series of the collection concurrently.
// The result keeps the display order of the input.
func (e *SeriesEngine) TransformAll(ctx context.Context, coll *models.MSeriesCollection, spec models.MTransformSpec) (*models.MSeriesCollection, error) {
	all := coll.All()
	results := make([]*models.MTimeSeries, len(all))

	g, ctx := errgroup.WithContext(ctx)
	for i, s := range all {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := e.Transform(s, spec)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := models.NewSeriesCollection()
	for _, s := range results {
		out.Replace(s)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// Summarize computes descriptive statistics over the non-null values.
func (e *SeriesEngine) Summarize(series *models.MTimeSeries) models.MStatistics {
	stats := models.MStatistics{
		Name:    series.Name(),
		Length:  series.Len(),
		Missing: []int{},
	}
	if series.Len() == 0 {
		return stats
	}

	values := make([]float64, 0, series.Len())
	for i, p := range series.Points() {
		if !p.Valid {
			stats.Missing = append(stats.Missing, i)
			continue
		}
		values = append(values, p.Value)
	}

	stats.First = series.At(0).Timestamp
	stats.Last = series.At(series.Len() - 1).Timestamp
	stats.Count = len(values)
	stats.Mean, stats.Std = core.CalculateMeanStd(values)
	stats.Min, stats.Max = core.MinMax(values)
	return stats
}

// -----------------------------------------------------------------------------

// Integrate rebuilds a series from its first point and its differences.
// Once a null delta is met the level is unknown and later points are null.
func Integrate(first models.MPoint, diffs *models.MTimeSeries) *models.MTimeSeries {
	out := make([]models.MPoint, 0, diffs.Len()+1)
	out = append(out, first)

	level, known := first.Value, first.Valid
	for _, d := range diffs.Points() {
		if !known || !d.Valid {
			known = false
			out = append(out, models.Missing(d.Timestamp))
			continue
		}
		level += d.Value
		out = append(out, models.Observed(d.Timestamp, level))
	}
	return models.NewTimeSeries(diffs.Name(), out)
}
