package analysis

import (
	"errors"
	"testing"
	"time"

	"series-observer/src/helpers"
	"series-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSV(t *testing.T) {
	data := []byte(`value_a,date,value_b
1.5,2024-01-03,
2,2024-01-01,"1,000"
NA,2024-01-02,7
3,2024-01-01,8
`)
	coll, err := newEngine().Load(models.MRawSource{Name: "upload", Data: data})
	require.NoError(t, err)
	assert.Equal(t, []string{"value_a", "value_b"}, coll.Names())

	a, _ := coll.Get("value_a")
	assert.Equal(t, []*float64{f(3), nil, f(1.5)}, values(a))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), a.At(0).Timestamp)

	b, _ := coll.Get("value_b")
	assert.Equal(t, []*float64{f(8), f(7), nil}, values(b))
}

func TestLoadCSVDropsEmptySeries(t *testing.T) {
	data := []byte("date,x,y\n2024-01-01,1,\n2024-01-02,2,n/a\n")
	coll, err := newEngine().Load(models.MRawSource{Format: models.FormatCSV, Data: data})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, coll.Names())
}

func TestLoadCSVErrors(t *testing.T) {
	e := newEngine()

	_, err := e.Load(models.MRawSource{Data: []byte("date,x\n2024-01-01,abc\n")})
	var fe *helpers.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), "line 2")

	_, err = e.Load(models.MRawSource{Data: []byte("date,x\nnot-a-date,1\n")})
	assert.Equal(t, "format_error", helpers.ErrorKind(err))

	_, err = e.Load(models.MRawSource{Data: []byte("date,x\n")})
	assert.Equal(t, "empty_input", helpers.ErrorKind(err))

	_, err = e.Load(models.MRawSource{Format: models.FormatCSV, Data: []byte("")})
	assert.Equal(t, "empty_input", helpers.ErrorKind(err))

	_, err = e.Load(models.MRawSource{Data: []byte("date,x,x\n2024-01-01,1,2\n")})
	assert.Equal(t, "format_error", helpers.ErrorKind(err))

	_, err = e.Load(models.MRawSource{Format: "xml", Data: []byte("<a/>")})
	assert.Equal(t, "format_error", helpers.ErrorKind(err))
}

func TestLoadRowLimit(t *testing.T) {
	e := NewSeriesEngine(models.MEngineConfig{MaxPoints: 2}, nil)
	_, err := e.Load(models.MRawSource{Data: []byte("date,x\n2020,1\n2021,2\n2022,3\n")})
	assert.Equal(t, "validation_error", helpers.ErrorKind(err))
}

func TestLoadJSONShapes(t *testing.T) {
	e := newEngine()

	doc := `{"series":[
		{"name":"gdp","time_points":[{"date":"2020-01-01","value":1.5},{"date":"2020-04-01","value":null}]},
		{"name":"cpi","time_points":[{"date":"2020-01-01","value":"2.5"}]}
	]}`
	coll, err := e.Load(models.MRawSource{Data: []byte(doc)})
	require.NoError(t, err)
	assert.Equal(t, []string{"gdp", "cpi"}, coll.Names())
	gdp, _ := coll.Get("gdp")
	assert.Equal(t, []*float64{f(1.5), nil}, values(gdp))

	single := `{"name":"rate","time_points":[{"date":"2021","value":3}]}`
	coll, err = e.Load(models.MRawSource{Data: []byte(single)})
	require.NoError(t, err)
	assert.Equal(t, []string{"rate"}, coll.Names())

	bare := `[{"date":"2021-02-01","value":4},{"date":"2021-01-01","value":2}]`
	coll, err = e.Load(models.MRawSource{Name: "upload", Data: []byte(bare)})
	require.NoError(t, err)
	s, ok := coll.Get("upload")
	require.True(t, ok)
	assert.Equal(t, []*float64{f(2), f(4)}, values(s))
}

func TestLoadJSONErrors(t *testing.T) {
	e := newEngine()

	_, err := e.Load(models.MRawSource{Format: models.FormatJSON, Data: []byte(`{"series":`)})
	assert.Equal(t, "format_error", helpers.ErrorKind(err))

	_, err = e.Load(models.MRawSource{Data: []byte(`[{"date":"2021-01-01","value":true}]`)})
	assert.Equal(t, "format_error", helpers.ErrorKind(err))

	_, err = e.Load(models.MRawSource{Data: []byte(`{"series":[]}`)})
	assert.Equal(t, "empty_input", helpers.ErrorKind(err))
}

// -----------------------------------------------------------------------------

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-05":           time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		"2024-03-05T10:20:30Z": time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC),
		"2024-03-05 10:20":     time.Date(2024, 3, 5, 10, 20, 0, 0, time.UTC),
		"2024/03/05":           time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		"03/05/2024":           time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		"05-Mar-2024":          time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		"2024-03":              time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		"1999":                 time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
		"86400":                time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC),
		"20240131":             time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		"12345678":             time.Date(1970, 5, 23, 21, 21, 18, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := ParseTimestamp(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), "%s: got %v", raw, got)
	}

	_, err := ParseTimestamp("")
	assert.Error(t, err)
	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)

	for _, raw := range []string{"1600-01-01", "1600", "2300-06-01", "99999999999999"} {
		_, err = ParseTimestamp(raw)
		assert.Error(t, err, raw)
	}
}

func TestLoadRejectsTimestampsOutsideRange(t *testing.T) {
	data := []byte("date,x\n1600-01-01,1\n1600-01-02,2\n1600-01-03,3\n")
	_, err := newEngine().Load(models.MRawSource{Data: data})
	assert.Equal(t, "format_error", helpers.ErrorKind(err))
	assert.Contains(t, err.Error(), "line 2")

	coll, err := newEngine().Load(models.MRawSource{Data: []byte("date,x\n20240102,2\n20240101,1\n")})
	require.NoError(t, err)
	x, _ := coll.Get("x")
	require.Equal(t, 2, x.Len())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), x.At(0).Timestamp)
}

func TestPrepareSeries(t *testing.T) {
	e := NewSeriesEngine(models.MEngineConfig{MaxPoints: 3}, nil)
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

	out, err := e.PrepareSeries(models.NewTimeSeries("px", []models.MPoint{
		models.Observed(day(3), 3), models.Observed(day(1), 1), models.Observed(day(3), 5),
	}))
	require.NoError(t, err)
	assert.Equal(t, []*float64{f(1), f(5)}, values(out))

	_, err = e.PrepareSeries(models.NewTimeSeries("px", []models.MPoint{models.Missing(day(1))}))
	assert.Equal(t, "empty_input", helpers.ErrorKind(err))

	_, err = e.PrepareSeries(models.NewTimeSeries("px", []models.MPoint{
		models.Observed(day(1), 1), models.Observed(day(2), 2), models.Observed(day(3), 3), models.Observed(day(4), 4),
	}))
	assert.Equal(t, "validation_error", helpers.ErrorKind(err))
}

func TestParseValue(t *testing.T) {
	v, ok, err := ParseValue(" +1,234.5 ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1234.5, v)

	for _, raw := range []string{"", "NA", "n/a", "NaN", "null", "None", "-"} {
		_, ok, err := ParseValue(raw)
		require.NoError(t, err, raw)
		assert.False(t, ok, raw)
	}

	_, _, err = ParseValue("twelve")
	assert.Error(t, err)
}
