package analysis

import (
	"testing"
	"time"

	"series-observer/src/helpers"
	"series-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowStart(t *testing.T) {
	assert.Equal(t, int64(10), WindowStart(17, 0, 10))
	assert.Equal(t, int64(20), WindowStart(20, 0, 10))
	assert.Equal(t, int64(-10), WindowStart(-3, 0, 10))
	assert.Equal(t, int64(13), WindowStart(17, 3, 10))
}

func TestResampleIndicesIncludesGaps(t *testing.T) {
	r := &TimeSeriesResampler{}
	windows := r.ResampleIndices([]int64{1, 2, 35, 41}, 10, 0)

	require.Len(t, windows, 5)
	assert.Equal(t, []int{0, 1}, windows[0].Indices)
	assert.Empty(t, windows[1].Indices)
	assert.Empty(t, windows[2].Indices)
	assert.Equal(t, []int{2}, windows[3].Indices)
	assert.Equal(t, []int{3}, windows[4].Indices)
	for i := 1; i < len(windows); i++ {
		assert.Equal(t, int64(10), windows[i].Start-windows[i-1].Start)
	}
	assert.Equal(t, int64(5), r.CountWindows([]int64{1, 2, 35, 41}, 10, 0))
}

func TestSearchSorted(t *testing.T) {
	arr := []int64{1, 3, 3, 5}
	assert.Equal(t, 1, SearchSorted(arr, 3, "left"))
	assert.Equal(t, 3, SearchSorted(arr, 3, "right"))
	assert.Equal(t, 4, SearchSorted(arr, 9, "left"))
}

// -----------------------------------------------------------------------------

func hourly(offsets []int, vals []float64) *models.MTimeSeries {
	pts := make([]models.MPoint, len(offsets))
	for i, o := range offsets {
		pts[i] = models.Observed(t0.Add(time.Duration(o)*time.Minute), vals[i])
	}
	return models.NewTimeSeries("s", pts)
}

func TestResampleUniformSpacing(t *testing.T) {
	spec := models.NewTransformSpec(models.KindResample)
	spec.Interval = time.Hour

	in := hourly([]int{0, 10, 70, 250}, []float64{1, 3, 5, 7})
	out, err := newEngine().Transform(in, spec)
	require.NoError(t, err)

	require.Equal(t, 5, out.Len())
	for i := 1; i < out.Len(); i++ {
		assert.Equal(t, time.Hour, out.At(i).Timestamp.Sub(out.At(i-1).Timestamp))
	}
	assert.Equal(t, []*float64{f(2), f(5), nil, nil, f(7)}, values(out))
}

func TestResampleInterpolate(t *testing.T) {
	spec := models.NewTransformSpec(models.KindResample)
	spec.Interval = time.Hour
	spec.Interpolate = true

	out, err := newEngine().Transform(hourly([]int{0, 180}, []float64{0, 9}), spec)
	require.NoError(t, err)
	assert.Equal(t, []*float64{f(0), f(3), f(6), f(9)}, values(out))
}

func TestResampleAlignment(t *testing.T) {
	spec := models.NewTransformSpec(models.KindResample)
	spec.Interval = time.Hour
	spec.Function = models.FuncCount

	in := hourly([]int{30, 80, 100}, []float64{1, 1, 1})

	aligned, err := newEngine().Transform(in, spec)
	require.NoError(t, err)
	assert.Equal(t, t0, aligned.At(0).Timestamp)
	assert.Equal(t, []*float64{f(1), f(2)}, values(aligned))

	spec.AlignEpoch = false
	anchored, err := newEngine().Transform(in, spec)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*time.Minute), anchored.At(0).Timestamp)
	assert.Equal(t, []*float64{f(2), f(1)}, values(anchored))
}

func TestResampleBucketLimit(t *testing.T) {
	e := NewSeriesEngine(models.MEngineConfig{MaxPoints: 100}, nil)
	spec := models.NewTransformSpec(models.KindResample)
	spec.Interval = time.Second

	_, err := e.Transform(hourly([]int{0, 600}, []float64{1, 2}), spec)
	assert.Equal(t, "validation_error", helpers.ErrorKind(err))
}

func TestResampleBadInterval(t *testing.T) {
	spec := models.NewTransformSpec(models.KindResample)
	_, err := newEngine().Transform(series("s", 1, 2), spec)
	assert.Equal(t, "validation_error", helpers.ErrorKind(err))

	spec.Interval = time.Hour
	spec.Function = "mode"
	_, err = newEngine().Transform(series("s", 1, 2), spec)
	assert.Equal(t, "validation_error", helpers.ErrorKind(err))
}
