package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MPoint is a single observation. Valid=false marks a missing value.
type MPoint struct {
	Timestamp time.Time
	Value     float64
	Valid     bool
}

// -----------------------------------------------------------------------------

// Observed builds a non-null point.
func Observed(ts time.Time, value float64) MPoint {
	return MPoint{Timestamp: ts, Value: value, Valid: true}
}

// -----------------------------------------------------------------------------

// Missing builds a null point.
func Missing(ts time.Time) MPoint {
	return MPoint{Timestamp: ts}
}

// -----------------------------------------------------------------------------

type pointJSON struct {
	T time.Time `json:"t"`
	V *float64  `json:"v"`
}

func (p MPoint) MarshalJSON() ([]byte, error) {
	out := pointJSON{T: p.Timestamp}
	if p.Valid {
		v := p.Value
		out.V = &v
	}
	return json.Marshal(out)
}

func (p *MPoint) UnmarshalJSON(data []byte) error {
	var in pointJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode point: %w", err)
	}
	p.Timestamp = in.T
	p.Valid = in.V != nil
	p.Value = 0
	if in.V != nil {
		p.Value = *in.V
	}
	return nil
}
