package models

import (
	"encoding/json"
	"time"
)

// -----------------------------------------------------------------------------
// MTimeSeries is an immutable, named sequence of points.
// The constructor copies its input and every accessor returns copies,
// so a series can be shared between goroutines without locking.
// -----------------------------------------------------------------------------

type MTimeSeries struct {
	name   string
	points []MPoint
}

// -----------------------------------------------------------------------------

func NewTimeSeries(name string, points []MPoint) *MTimeSeries {
	cp := make([]MPoint, len(points))
	copy(cp, points)
	return &MTimeSeries{name: name, points: cp}
}

// -----------------------------------------------------------------------------

func (s *MTimeSeries) Name() string { return s.name }

func (s *MTimeSeries) Len() int { return len(s.points) }

// At returns the i-th point.
func (s *MTimeSeries) At(i int) MPoint { return s.points[i] }

// Points returns a copy of the underlying points.
func (s *MTimeSeries) Points() []MPoint {
	cp := make([]MPoint, len(s.points))
	copy(cp, s.points)
	return cp
}

// Timestamps returns the timestamps in order.
func (s *MTimeSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(s.points))
	for i, p := range s.points {
		out[i] = p.Timestamp
	}
	return out
}

// WithName returns a copy of the series under another name.
func (s *MTimeSeries) WithName(name string) *MTimeSeries {
	return NewTimeSeries(name, s.points)
}

// -----------------------------------------------------------------------------

type seriesJSON struct {
	Name   string   `json:"name"`
	Points []MPoint `json:"points"`
}

func (s *MTimeSeries) MarshalJSON() ([]byte, error) {
	return json.Marshal(seriesJSON{Name: s.name, Points: s.points})
}

func (s *MTimeSeries) UnmarshalJSON(data []byte) error {
	var in seriesJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.name = in.Name
	s.points = in.Points
	if s.points == nil {
		s.points = []MPoint{}
	}
	return nil
}
