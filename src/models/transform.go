package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transform kinds
const (
	KindResample     = "resample"
	KindRolling      = "rolling"
	KindDifference   = "difference"
	KindNormalize    = "normalize"
	KindPctChange    = "pct-change"
	KindZScore       = "zscore"
	KindBusinessDays = "business-days"
)

// Aggregation functions
const (
	FuncMean   = "mean"
	FuncSum    = "sum"
	FuncMin    = "min"
	FuncMax    = "max"
	FuncFirst  = "first"
	FuncLast   = "last"
	FuncCount  = "count"
	FuncMedian = "median"
)

// -----------------------------------------------------------------------------

// MTransformSpec describes one derived-series operation.
type MTransformSpec struct {
	Kind        string        `json:"kind"`
	Window      int           `json:"window,omitempty"`
	Function    string        `json:"function,omitempty"`
	Interval    time.Duration `json:"-"`
	AlignEpoch  bool          `json:"align_epoch"`
	Interpolate bool          `json:"interpolate,omitempty"`
	MIC         string        `json:"mic,omitempty"`
}

// NewTransformSpec returns a spec of the given kind with defaults applied.
func NewTransformSpec(kind string) MTransformSpec {
	return MTransformSpec{
		Kind:       kind,
		Function:   FuncMean,
		AlignEpoch: true,
	}
}

// -----------------------------------------------------------------------------

type transformSpecJSON struct {
	Kind        string `json:"kind"`
	Window      int    `json:"window,omitempty"`
	Function    string `json:"function,omitempty"`
	Interval    string `json:"interval,omitempty"`
	AlignEpoch  *bool  `json:"align_epoch,omitempty"`
	Interpolate bool   `json:"interpolate,omitempty"`
	MIC         string `json:"mic,omitempty"`
}

func (t MTransformSpec) MarshalJSON() ([]byte, error) {
	align := t.AlignEpoch
	out := transformSpecJSON{
		Kind:        t.Kind,
		Window:      t.Window,
		Function:    t.Function,
		AlignEpoch:  &align,
		Interpolate: t.Interpolate,
		MIC:         t.MIC,
	}
	if t.Interval > 0 {
		out.Interval = FormatInterval(t.Interval)
	}
	return json.Marshal(out)
}

// UnmarshalJSON fills omitted fields with the NewTransformSpec defaults.
func (t *MTransformSpec) UnmarshalJSON(data []byte) error {
	var in transformSpecJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	spec := NewTransformSpec(strings.ToLower(strings.TrimSpace(in.Kind)))
	spec.Window = in.Window
	if in.Function != "" {
		spec.Function = strings.ToLower(in.Function)
	}
	if in.AlignEpoch != nil {
		spec.AlignEpoch = *in.AlignEpoch
	}
	spec.Interpolate = in.Interpolate
	spec.MIC = in.MIC
	if in.Interval != "" {
		d, err := ParseInterval(in.Interval)
		if err != nil {
			return err
		}
		spec.Interval = d
	}
	*t = spec
	return nil
}

// -----------------------------------------------------------------------------

// ParseInterval accepts Go durations plus day ("d") and week ("w") suffixes.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}
	unit := s[len(s)-1]
	if unit == 'd' || unit == 'w' {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q", s)
		}
		day := 24 * time.Hour
		if unit == 'w' {
			return time.Duration(n) * 7 * day, nil
		}
		return time.Duration(n) * day, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	return d, nil
}

// FormatInterval is the inverse of ParseInterval for whole days.
func FormatInterval(d time.Duration) string {
	day := 24 * time.Hour
	if d >= day && d%day == 0 {
		return strconv.FormatInt(int64(d/day), 10) + "d"
	}
	return d.String()
}
