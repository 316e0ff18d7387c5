package models

import "time"

// -----------------------------------------------------------------------------
// MVintageMatrix is a timepoint x vintage grid of published values.
// Cells[i][j] is the value of Timepoints[i] as published in Vintages[j].
// -----------------------------------------------------------------------------

type MVintageMatrix struct {
	Timepoints []time.Time `json:"timepoints"`
	Vintages   []time.Time `json:"vintages"`
	Cells      [][]MCell   `json:"cells"`
}

// MCell is one grid value, Valid=false when the vintage has no value.
type MCell struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// MCellRef addresses one grid cell.
type MCellRef struct {
	Timepoint int `json:"timepoint"`
	Vintage   int `json:"vintage"`
}

// MVintageComparison holds the same timepoints as published by two vintages.
type MVintageComparison struct {
	First       *MTimeSeries `json:"first"`
	Second      *MTimeSeries `json:"second"`
	Correlation float64      `json:"correlation"`
}

// MVintageRow is one published value in long form.
type MVintageRow struct {
	Time    time.Time `json:"time"`
	Vintage time.Time `json:"vintage"`
	Value   float64   `json:"value"`
}

// MVintageReport bundles the revision views of one grid. Frames and YRange
// feed a per-vintage animated chart with a fixed value axis.
type MVintageReport struct {
	Matrix        *MVintageMatrix     `json:"matrix"`
	RevisionDiffs [][]MCell           `json:"revision_diffs"`
	ChangedCells  []MCellRef          `json:"changed_cells"`
	Comparison    *MVintageComparison `json:"comparison,omitempty"`
	Revision      *MTimeSeries        `json:"revision"`
	Frames        []MVintageRow       `json:"frames"`
	YRange        [2]float64          `json:"y_range"`
}
