package models

import (
	"encoding/json"
	"fmt"
)

// -----------------------------------------------------------------------------
// MSeriesCollection maps unique series names to series and keeps insertion
// order for display.
// -----------------------------------------------------------------------------

type MSeriesCollection struct {
	order  []string
	series map[string]*MTimeSeries
}

// -----------------------------------------------------------------------------

func NewSeriesCollection() *MSeriesCollection {
	return &MSeriesCollection{series: make(map[string]*MTimeSeries)}
}

// -----------------------------------------------------------------------------

// Add appends a series. Names must be unique.
func (c *MSeriesCollection) Add(s *MTimeSeries) error {
	if _, exists := c.series[s.Name()]; exists {
		return fmt.Errorf("series %q already exists", s.Name())
	}
	c.order = append(c.order, s.Name())
	c.series[s.Name()] = s
	return nil
}

// Replace swaps a series in place, or appends it when the name is new.
func (c *MSeriesCollection) Replace(s *MTimeSeries) {
	if _, exists := c.series[s.Name()]; !exists {
		c.order = append(c.order, s.Name())
	}
	c.series[s.Name()] = s
}

func (c *MSeriesCollection) Get(name string) (*MTimeSeries, bool) {
	s, ok := c.series[name]
	return s, ok
}

// Names returns series names in display order.
func (c *MSeriesCollection) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// All returns series in display order.
func (c *MSeriesCollection) All() []*MTimeSeries {
	out := make([]*MTimeSeries, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.series[name])
	}
	return out
}

func (c *MSeriesCollection) Len() int { return len(c.order) }

// -----------------------------------------------------------------------------

func (c *MSeriesCollection) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.All())
}

func (c *MSeriesCollection) UnmarshalJSON(data []byte) error {
	var list []*MTimeSeries
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	c.order = nil
	c.series = make(map[string]*MTimeSeries, len(list))
	for _, s := range list {
		if err := c.Add(s); err != nil {
			return err
		}
	}
	return nil
}
