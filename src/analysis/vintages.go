package analysis

import (
	"encoding/json"
	"sort"
	"time"

	"series-observer/src/analysis/core"
	"series-observer/src/helpers"
	"series-observer/src/models"
)

// -----------------------------------------------------------------------------

// LoadVintages parses {"<vintage date>": {"<timepoint date>": value}} into a
// grid sorted ascending on both axes. Timepoints before start are dropped
// when start is non-zero.
func (e *SeriesEngine) LoadVintages(data []byte, start time.Time) (*models.MVintageMatrix, error) {
	var doc map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &helpers.FormatError{SeriesError: helpers.SeriesError{Message: "vintages input", Cause: err}}
	}

	type key struct{ tp, vintage int64 }
	cells := make(map[key]float64)
	tpSet := make(map[int64]time.Time)
	vSet := make(map[int64]time.Time)

	for vRaw, column := range doc {
		vTs, err := ParseTimestamp(vRaw)
		if err != nil {
			return nil, helpers.NewFormatError("vintage %q: %v", vRaw, err)
		}
		for tpRaw, raw := range column {
			tpTs, err := ParseTimestamp(tpRaw)
			if err != nil {
				return nil, helpers.NewFormatError("vintage %q timepoint %q: %v", vRaw, tpRaw, err)
			}
			if !start.IsZero() && tpTs.Before(start) {
				continue
			}
			v, ok, err := parseJSONValue(raw)
			if err != nil {
				return nil, helpers.NewFormatError("vintage %q timepoint %q: %v", vRaw, tpRaw, err)
			}
			vSet[vTs.UnixNano()] = vTs
			tpSet[tpTs.UnixNano()] = tpTs
			if ok {
				cells[key{tpTs.UnixNano(), vTs.UnixNano()}] = v
			}
		}
	}

	if len(cells) == 0 {
		return nil, helpers.NewEmptyInputError("vintages input contains no values")
	}
	if len(tpSet)*len(vSet) > e.MaxPoints {
		return nil, helpers.NewValidationError("vintage grid of %dx%d exceeds limit %d", len(tpSet), len(vSet), e.MaxPoints)
	}

	m := &models.MVintageMatrix{
		Timepoints: sortedTimes(tpSet),
		Vintages:   sortedTimes(vSet),
	}
	m.Cells = make([][]models.MCell, len(m.Timepoints))
	for i, tp := range m.Timepoints {
		row := make([]models.MCell, len(m.Vintages))
		for j, v := range m.Vintages {
			if val, ok := cells[key{tp.UnixNano(), v.UnixNano()}]; ok {
				row[j] = models.MCell{Value: val, Valid: true}
			}
		}
		m.Cells[i] = row
	}
	return m, nil
}

func sortedTimes(set map[int64]time.Time) []time.Time {
	out := make([]time.Time, 0, len(set))
	for _, t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// -----------------------------------------------------------------------------

// RevisionDiffs returns, per timepoint, the change between each vintage and
// the one before it. The first column is always null.
func RevisionDiffs(m *models.MVintageMatrix) [][]models.MCell {
	out := make([][]models.MCell, len(m.Cells))
	for i, row := range m.Cells {
		diffs := make([]models.MCell, len(row))
		for j := 1; j < len(row); j++ {
			if row[j].Valid && row[j-1].Valid {
				diffs[j] = models.MCell{Value: row[j].Value - row[j-1].Value, Valid: true}
			}
		}
		out[i] = diffs
	}
	return out
}

// -----------------------------------------------------------------------------

// ChangedCells lists cells that carry a value which is new or differs from
// the previous vintage of the same timepoint.
func ChangedCells(m *models.MVintageMatrix) []models.MCellRef {
	out := []models.MCellRef{}
	for i, row := range m.Cells {
		for j := 1; j < len(row); j++ {
			if !row[j].Valid {
				continue
			}
			if !row[j-1].Valid || row[j].Value != row[j-1].Value {
				out = append(out, models.MCellRef{Timepoint: i, Vintage: j})
			}
		}
	}
	return out
}

// -----------------------------------------------------------------------------

// CompareVintages extracts the series published by two vintages. Zero dates
// select the first two vintages.
func CompareVintages(m *models.MVintageMatrix, a, b time.Time) (*models.MVintageComparison, error) {
	if a.IsZero() || b.IsZero() {
		if len(m.Vintages) < 2 {
			return nil, helpers.NewValidationError("comparison needs at least 2 vintages, have %d", len(m.Vintages))
		}
		a, b = m.Vintages[0], m.Vintages[1]
	}
	ia, ib := vintageIndex(m, a), vintageIndex(m, b)
	if ia < 0 {
		return nil, helpers.NewValidationError("unknown vintage %s", a.Format(time.DateOnly))
	}
	if ib < 0 {
		return nil, helpers.NewValidationError("unknown vintage %s", b.Format(time.DateOnly))
	}

	first := vintageSeries(m, ia)
	second := vintageSeries(m, ib)

	var xs, ys []float64
	for i := range m.Timepoints {
		if m.Cells[i][ia].Valid && m.Cells[i][ib].Valid {
			xs = append(xs, m.Cells[i][ia].Value)
			ys = append(ys, m.Cells[i][ib].Value)
		}
	}

	return &models.MVintageComparison{
		First:       first,
		Second:      second,
		Correlation: core.CalculateCorrelation(xs, ys),
	}, nil
}

func vintageIndex(m *models.MVintageMatrix, t time.Time) int {
	for j, v := range m.Vintages {
		if v.Equal(t) {
			return j
		}
	}
	return -1
}

func vintageSeries(m *models.MVintageMatrix, j int) *models.MTimeSeries {
	points := make([]models.MPoint, len(m.Timepoints))
	for i, tp := range m.Timepoints {
		cell := m.Cells[i][j]
		if cell.Valid {
			points[i] = models.Observed(tp, cell.Value)
		} else {
			points[i] = models.Missing(tp)
		}
	}
	return models.NewTimeSeries(m.Vintages[j].Format(time.DateOnly), points)
}

// -----------------------------------------------------------------------------

// FirstLastDifference returns, per timepoint, the last available value minus
// the first available value across vintages.
func FirstLastDifference(m *models.MVintageMatrix) *models.MTimeSeries {
	points := make([]models.MPoint, len(m.Timepoints))
	for i, tp := range m.Timepoints {
		first, last := -1, -1
		for j, cell := range m.Cells[i] {
			if !cell.Valid {
				continue
			}
			if first < 0 {
				first = j
			}
			last = j
		}
		if first < 0 {
			points[i] = models.Missing(tp)
			continue
		}
		points[i] = models.Observed(tp, m.Cells[i][last].Value-m.Cells[i][first].Value)
	}
	return models.NewTimeSeries("revision", points)
}

// -----------------------------------------------------------------------------

// VintageFrames flattens the grid to one row per published value, ordered by
// vintage then timepoint.
func VintageFrames(m *models.MVintageMatrix) []models.MVintageRow {
	out := []models.MVintageRow{}
	for j, vintage := range m.Vintages {
		for i, tp := range m.Timepoints {
			if cell := m.Cells[i][j]; cell.Valid {
				out = append(out, models.MVintageRow{Time: tp, Vintage: vintage, Value: cell.Value})
			}
		}
	}
	return out
}

// ValueRange returns the smallest and largest published value widened by 5%
// of their span on each side. Zero when the grid holds no value.
func ValueRange(rows []models.MVintageRow) [2]float64 {
	if len(rows) == 0 {
		return [2]float64{}
	}
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.Value
	}
	lo, hi := core.MinMax(values)
	pad := (hi - lo) * 0.05
	return [2]float64{lo - pad, hi + pad}
}

// -----------------------------------------------------------------------------

// VintageReport loads a vintage grid and computes every revision view.
// The comparison is omitted when fewer than two vintages exist and no
// explicit dates were requested.
func (e *SeriesEngine) VintageReport(data []byte, start, a, b time.Time) (*models.MVintageReport, error) {
	m, err := e.LoadVintages(data, start)
	if err != nil {
		return nil, err
	}

	report := &models.MVintageReport{
		Matrix:        m,
		RevisionDiffs: RevisionDiffs(m),
		ChangedCells:  ChangedCells(m),
		Revision:      FirstLastDifference(m),
		Frames:        VintageFrames(m),
	}
	report.YRange = ValueRange(report.Frames)

	explicit := !a.IsZero() || !b.IsZero()
	if explicit || len(m.Vintages) >= 2 {
		cmp, err := CompareVintages(m, a, b)
		if err != nil {
			return nil, err
		}
		report.Comparison = cmp
	}
	return report, nil
}
