package models

import "time"

// MStatistics summarizes one series.
type MStatistics struct {
	Name    string    `json:"name"`
	Length  int       `json:"length"`
	Count   int       `json:"count"` // non-null points
	Mean    float64   `json:"mean"`
	Std     float64   `json:"std"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Missing []int     `json:"missing"`
	First   time.Time `json:"first"`
	Last    time.Time `json:"last"`
}
