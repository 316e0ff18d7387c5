package analysis

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"series-observer/src/helpers"
	"series-observer/src/models"
)

// Timestamp layouts tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-Jan-2006",
	"2006-01",
}

// Header names recognised as the timestamp column.
var timestampColumns = map[string]bool{
	"date": true, "ds": true, "time": true, "timestamp": true, "datetime": true, "period": true,
}

// -----------------------------------------------------------------------------

// Load parses raw tabular or time-indexed input into a collection.
// Each series comes out sorted with duplicate timestamps collapsed
// (last value wins). Series without any value are dropped.
func (e *SeriesEngine) Load(raw models.MRawSource) (*models.MSeriesCollection, error) {
	format := strings.ToLower(raw.Format)
	if format == "" {
		format = detectFormat(raw.Data)
	}

	var parsed []*models.MTimeSeries
	var err error
	switch format {
	case models.FormatCSV:
		parsed, err = parseCSV(raw.Data)
	case models.FormatJSON:
		parsed, err = parseJSON(raw.Name, raw.Data)
	default:
		return nil, helpers.NewFormatError("unsupported input format %q", raw.Format)
	}
	if err != nil {
		return nil, err
	}

	coll := models.NewSeriesCollection()
	for _, s := range parsed {
		prepared, err := e.PrepareSeries(s)
		var empty *helpers.EmptyInputError
		if errors.As(err, &empty) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := coll.Add(prepared); err != nil {
			return nil, helpers.NewFormatError("duplicate series name %q", s.Name())
		}
	}

	if coll.Len() == 0 {
		return nil, helpers.NewEmptyInputError("input %q contains no usable rows", raw.Name)
	}
	return coll, nil
}

// PrepareSeries applies the Load rules to a series that did not come from
// raw input: row limit, at least one value, sorted and deduplicated
// timestamps within the representable range.
func (e *SeriesEngine) PrepareSeries(s *models.MTimeSeries) (*models.MTimeSeries, error) {
	if s.Len() > e.MaxPoints {
		return nil, helpers.NewValidationError("series %q has %d rows, limit is %d", s.Name(), s.Len(), e.MaxPoints)
	}
	if !hasValue(s) {
		return nil, helpers.NewEmptyInputError("series %q has no values", s.Name())
	}
	out := sortAndDedupe(s)
	for _, ts := range []time.Time{out.At(0).Timestamp, out.At(out.Len() - 1).Timestamp} {
		if err := checkTimestampRange(ts); err != nil {
			return nil, helpers.NewFormatError("series %q: %v", s.Name(), err)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func detectFormat(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return models.FormatJSON
	}
	return models.FormatCSV
}

func hasValue(s *models.MTimeSeries) bool {
	for i := 0; i < s.Len(); i++ {
		if s.At(i).Valid {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Scalars
// -----------------------------------------------------------------------------

// Timestamps must fit int64 nanoseconds since the epoch, roughly the years
// 1678 to 2262.
var (
	minTimestamp = time.Unix(0, math.MinInt64).UTC()
	maxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

func checkTimestampRange(ts time.Time) error {
	if ts.Before(minTimestamp) || ts.After(maxTimestamp) {
		return fmt.Errorf("timestamp %s outside %d..%d", ts.Format(time.RFC3339), minTimestamp.Year(), maxTimestamp.Year())
	}
	return nil
}

// ParseTimestamp accepts the layouts above, a 4 digit year, an 8 digit
// YYYYMMDD date, or unix seconds.
func ParseTimestamp(raw string) (time.Time, error) {
	ts, err := parseTimestamp(raw)
	if err != nil {
		return time.Time{}, err
	}
	if err := checkTimestampRange(ts); err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(strings.Trim(raw, "\""))
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isDigits(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		switch len(s) {
		case 4:
			return time.Date(int(n), time.January, 1, 0, 0, 0, 0, time.UTC), nil
		case 8:
			if ts, err := time.Parse("20060102", s); err == nil {
				return ts, nil
			}
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseValue coerces a cell into a number. ok=false marks a missing value.
func ParseValue(raw string) (value float64, ok bool, err error) {
	s := strings.TrimSpace(strings.Trim(raw, "\""))
	switch strings.ToLower(s) {
	case "", "na", "n/a", "nan", "null", "none", "-":
		return 0, false, nil
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("value %q is not numeric", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, nil
	}
	return v, true, nil
}

// -----------------------------------------------------------------------------
// CSV
// -----------------------------------------------------------------------------

func parseCSV(data []byte) ([]*models.MTimeSeries, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, helpers.NewEmptyInputError("csv input is empty")
	}
	if err != nil {
		return nil, &helpers.FormatError{SeriesError: helpers.SeriesError{Message: "csv header", Cause: err}}
	}
	if len(header) < 2 {
		return nil, helpers.NewFormatError("csv needs a timestamp column and at least one value column")
	}

	tsIdx := 0
	for i, h := range header {
		if timestampColumns[strings.ToLower(strings.TrimSpace(h))] {
			tsIdx = i
			break
		}
	}

	var names []string
	var cols []int
	for i, h := range header {
		if i == tsIdx {
			continue
		}
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		names = append(names, name)
		cols = append(cols, i)
	}
	points := make([][]models.MPoint, len(cols))

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &helpers.FormatError{SeriesError: helpers.SeriesError{Message: fmt.Sprintf("csv line %d", line), Cause: err}}
		}
		if tsIdx >= len(record) || strings.TrimSpace(record[tsIdx]) == "" {
			continue
		}

		ts, err := ParseTimestamp(record[tsIdx])
		if err != nil {
			return nil, helpers.NewFormatError("csv line %d: %v", line, err)
		}

		for k, col := range cols {
			cell := ""
			if col < len(record) {
				cell = record[col]
			}
			v, ok, err := ParseValue(cell)
			if err != nil {
				return nil, helpers.NewFormatError("csv line %d column %q: %v", line, names[k], err)
			}
			if ok {
				points[k] = append(points[k], models.Observed(ts, v))
			} else {
				points[k] = append(points[k], models.Missing(ts))
			}
		}
	}

	out := make([]*models.MTimeSeries, len(cols))
	for k := range cols {
		out[k] = models.NewTimeSeries(names[k], points[k])
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// JSON
// -----------------------------------------------------------------------------

type jsonTimePoint struct {
	Date  string          `json:"date"`
	Value json.RawMessage `json:"value"`
}

type jsonSeries struct {
	Name       string          `json:"name"`
	TimePoints []jsonTimePoint `json:"time_points"`
}

type jsonDocument struct {
	Series     []jsonSeries    `json:"series"`
	Name       string          `json:"name"`
	TimePoints []jsonTimePoint `json:"time_points"`
}

// parseJSON accepts {"series":[...]}, a single {"name","time_points"} object,
// or a bare array of {"date","value"} objects.
func parseJSON(name string, data []byte) ([]*models.MTimeSeries, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, helpers.NewEmptyInputError("json input is empty")
	}

	var doc jsonDocument
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &doc.TimePoints); err != nil {
			return nil, &helpers.FormatError{SeriesError: helpers.SeriesError{Message: "json input", Cause: err}}
		}
	} else if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, &helpers.FormatError{SeriesError: helpers.SeriesError{Message: "json input", Cause: err}}
	}

	if len(doc.Series) == 0 && doc.TimePoints != nil {
		if doc.Name != "" {
			name = doc.Name
		}
		if name == "" {
			name = "value"
		}
		doc.Series = []jsonSeries{{Name: name, TimePoints: doc.TimePoints}}
	}

	out := make([]*models.MTimeSeries, 0, len(doc.Series))
	for i, js := range doc.Series {
		seriesName := js.Name
		if seriesName == "" {
			seriesName = fmt.Sprintf("series_%d", i+1)
		}
		points := make([]models.MPoint, 0, len(js.TimePoints))
		for j, tp := range js.TimePoints {
			if strings.TrimSpace(tp.Date) == "" {
				continue
			}
			ts, err := ParseTimestamp(tp.Date)
			if err != nil {
				return nil, helpers.NewFormatError("series %q point %d: %v", seriesName, j, err)
			}
			v, ok, err := parseJSONValue(tp.Value)
			if err != nil {
				return nil, helpers.NewFormatError("series %q point %d: %v", seriesName, j, err)
			}
			if ok {
				points = append(points, models.Observed(ts, v))
			} else {
				points = append(points, models.Missing(ts))
			}
		}
		out = append(out, models.NewTimeSeries(seriesName, points))
	}
	return out, nil
}

// parseJSONValue accepts numbers, numeric strings and null.
func parseJSONValue(raw json.RawMessage) (float64, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return ParseValue(str)
	}
	return 0, false, fmt.Errorf("value %s is not numeric", string(raw))
}
