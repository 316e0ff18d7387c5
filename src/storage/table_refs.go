package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"series-observer/src/analysis"
	"series-observer/src/helpers"
	"series-observer/src/models"
)

// Identifiers are restricted to \w so quoting them is enough.
var tableRefRegex = regexp.MustCompile(`^(\w+)\.(\w+)\.(\w+)\.(\w+)$`)

// -----------------------------------------------------------------------------

// ParseTableRef splits schema.table.time_column.value_column.
func ParseTableRef(raw string) (models.MTableRef, error) {
	matches := tableRefRegex.FindStringSubmatch(raw)
	if len(matches) != 5 {
		return models.MTableRef{}, helpers.NewConfigurationError("table reference %q must look like schema.table.time_column.value_column", raw)
	}
	return models.MTableRef{
		Schema:      matches[1],
		Table:       matches[2],
		TimeColumn:  matches[3],
		ValueColumn: matches[4],
	}, nil
}

// -----------------------------------------------------------------------------

// ReadTableSeries loads one series from an existing table. The time column may
// hold timestamps, unix seconds or text in any layout the loader accepts.
// NULL values become missing points. Rows come back in scan order; sorting
// and duplicate handling are left to the loader.
func (s *sqlStore) ReadTableSeries(ctx context.Context, ref models.MTableRef) (*models.MTimeSeries, error) {
	query := fmt.Sprintf(`SELECT "%s", "%s" FROM "%s"."%s"`, ref.TimeColumn, ref.ValueColumn, ref.Schema, ref.Table)

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, helpers.WrapDatabaseError("read "+ref.String(), err)
	}
	defer rows.Close()

	var points []models.MPoint
	for rows.Next() {
		var rawTime interface{}
		var value sql.NullFloat64
		if err := rows.Scan(&rawTime, &value); err != nil {
			return nil, helpers.WrapDatabaseError("scan "+ref.String(), err)
		}
		if rawTime == nil {
			continue
		}
		ts, err := columnTime(rawTime)
		if err != nil {
			return nil, helpers.NewFormatError("%s: %v", ref.String(), err)
		}
		if value.Valid {
			points = append(points, models.Observed(ts, value.Float64))
		} else {
			points = append(points, models.Missing(ts))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.WrapDatabaseError("read "+ref.String(), err)
	}

	return models.NewTimeSeries(ref.ValueColumn, points), nil
}

// -----------------------------------------------------------------------------

func columnTime(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	case []byte:
		return analysis.ParseTimestamp(string(v))
	case string:
		return analysis.ParseTimestamp(v)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %v (%T)", raw, raw)
	}
}
