package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"series-observer/src/helpers"
	"series-observer/src/logger"
	"series-observer/src/models"
)

// Batch constants. Points are written with multi-row inserts kept under the
// bind variable limit of both drivers.
const (
	maxBindVars     = 32000
	paramsPerPoint  = 5
	pointsBatchSize = maxBindVars / paramsPerPoint // 6400 rows
)

// -----------------------------------------------------------------------------
// sqlStore holds the queries shared by the SQLite and Postgres backends. The
// DDL only uses type names both engines understand.
// -----------------------------------------------------------------------------

type sqlStore struct {
	DB            *sql.DB
	Logger        *logger.Logger
	RetentionDays int

	sessionsTable string
	seriesTable   string
	pointsTable   string
	bind          func(n int) string
}

// -----------------------------------------------------------------------------

func (s *sqlStore) createTables() error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				name TEXT,
				created_at BIGINT,
				updated_at BIGINT
			);`, s.sessionsTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				session_id TEXT,
				ordinal INTEGER,
				name TEXT,
				PRIMARY KEY (session_id, ordinal)
			);`, s.seriesTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				session_id TEXT,
				ordinal INTEGER,
				idx INTEGER,
				ts BIGINT,
				value DOUBLE PRECISION,
				PRIMARY KEY (session_id, ordinal, idx)
			);`, s.pointsTable),
	}
	for _, stmt := range statements {
		if _, err := s.DB.Exec(stmt); err != nil {
			return helpers.WrapDatabaseError("create tables", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// placeholders returns "(p1, p2, ...)" groups for rows*cols parameters.
func (s *sqlStore) placeholders(rows, cols int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s.bind(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func (s *sqlStore) SaveSession(ctx context.Context, session *models.MSession) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.WrapDatabaseError("begin save", err)
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(`
		INSERT INTO %s (id, name, created_at, updated_at)
		VALUES (%s, %s, %s, %s)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = EXCLUDED.updated_at
	`, s.sessionsTable, s.bind(1), s.bind(2), s.bind(3), s.bind(4))
	if _, err := tx.ExecContext(ctx, upsert, session.ID, session.Name, session.CreatedAt.UnixNano(), session.UpdatedAt.UnixNano()); err != nil {
		return helpers.WrapDatabaseError("save session", err)
	}

	if err := s.deleteRows(ctx, tx, session.ID, s.seriesTable, s.pointsTable); err != nil {
		return err
	}

	all := session.Collection.All()
	if len(all) > 0 {
		args := make([]interface{}, 0, len(all)*3)
		for ordinal, series := range all {
			args = append(args, session.ID, ordinal, series.Name())
		}
		query := fmt.Sprintf(`INSERT INTO %s (session_id, ordinal, name) VALUES %s`, s.seriesTable, s.placeholders(len(all), 3))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return helpers.WrapDatabaseError("save series", err)
		}
	}

	batch := make([]interface{}, 0, pointsBatchSize*paramsPerPoint)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		rows := len(batch) / paramsPerPoint
		query := fmt.Sprintf(`INSERT INTO %s (session_id, ordinal, idx, ts, value) VALUES %s`, s.pointsTable, s.placeholders(rows, paramsPerPoint))
		if _, err := tx.ExecContext(ctx, query, batch...); err != nil {
			return helpers.WrapDatabaseError("save points", err)
		}
		batch = batch[:0]
		return nil
	}

	for ordinal, series := range all {
		for idx, p := range series.Points() {
			value := sql.NullFloat64{Float64: p.Value, Valid: p.Valid}
			batch = append(batch, session.ID, ordinal, idx, p.Timestamp.UnixNano(), value)
			if len(batch) == cap(batch) {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return helpers.WrapDatabaseError("commit save", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) deleteRows(ctx context.Context, tx *sql.Tx, id string, tables ...string) error {
	for _, table := range tables {
		query := fmt.Sprintf(`DELETE FROM %s WHERE %s = %s`, table, keyColumn(table, s.sessionsTable), s.bind(1))
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return helpers.WrapDatabaseError("delete from "+table, err)
		}
	}
	return nil
}

func keyColumn(table, sessionsTable string) string {
	if table == sessionsTable {
		return "id"
	}
	return "session_id"
}

// -----------------------------------------------------------------------------

func (s *sqlStore) LoadSession(ctx context.Context, id string) (*models.MSession, error) {
	session := &models.MSession{}
	var created, updated int64

	query := fmt.Sprintf(`SELECT id, name, created_at, updated_at FROM %s WHERE id = %s`, s.sessionsTable, s.bind(1))
	err := s.DB.QueryRowContext(ctx, query, id).Scan(&session.ID, &session.Name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helpers.NewNotFoundError("session %s not found", id)
	}
	if err != nil {
		return nil, helpers.WrapDatabaseError("load session", err)
	}
	session.CreatedAt = time.Unix(0, created).UTC()
	session.UpdatedAt = time.Unix(0, updated).UTC()

	names, err := s.seriesNames(ctx, id)
	if err != nil {
		return nil, err
	}
	points := make([][]models.MPoint, len(names))

	query = fmt.Sprintf(`SELECT ordinal, ts, value FROM %s WHERE session_id = %s ORDER BY ordinal, idx`, s.pointsTable, s.bind(1))
	rows, err := s.DB.QueryContext(ctx, query, id)
	if err != nil {
		return nil, helpers.WrapDatabaseError("load points", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ordinal int
		var ts int64
		var value sql.NullFloat64
		if err := rows.Scan(&ordinal, &ts, &value); err != nil {
			return nil, helpers.WrapDatabaseError("scan point", err)
		}
		if ordinal < 0 || ordinal >= len(points) {
			continue
		}
		stamp := time.Unix(0, ts).UTC()
		if value.Valid {
			points[ordinal] = append(points[ordinal], models.Observed(stamp, value.Float64))
		} else {
			points[ordinal] = append(points[ordinal], models.Missing(stamp))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.WrapDatabaseError("load points", err)
	}

	session.Collection = models.NewSeriesCollection()
	for i, name := range names {
		session.Collection.Replace(models.NewTimeSeries(name, points[i]))
	}
	session.MSessionInfo = session.Info()
	return session, nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) seriesNames(ctx context.Context, id string) ([]string, error) {
	query := fmt.Sprintf(`SELECT name FROM %s WHERE session_id = %s ORDER BY ordinal`, s.seriesTable, s.bind(1))
	rows, err := s.DB.QueryContext(ctx, query, id)
	if err != nil {
		return nil, helpers.WrapDatabaseError("load series", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, helpers.WrapDatabaseError("scan series", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.WrapDatabaseError("load series", err)
	}
	return names, nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) ListSessions(ctx context.Context) ([]models.MSessionInfo, error) {
	query := fmt.Sprintf(`
		SELECT s.id, s.name, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM %s p WHERE p.session_id = s.id)
		FROM %s s
		ORDER BY s.updated_at DESC, s.id
	`, s.pointsTable, s.sessionsTable)
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, helpers.WrapDatabaseError("list sessions", err)
	}
	defer rows.Close()

	out := []models.MSessionInfo{}
	for rows.Next() {
		var info models.MSessionInfo
		var created, updated int64
		if err := rows.Scan(&info.ID, &info.Name, &created, &updated, &info.Points); err != nil {
			return nil, helpers.WrapDatabaseError("scan session", err)
		}
		info.CreatedAt = time.Unix(0, created).UTC()
		info.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.WrapDatabaseError("list sessions", err)
	}
	rows.Close()

	for i := range out {
		names, err := s.seriesNames(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Series = names
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.WrapDatabaseError("begin delete", err)
	}
	defer tx.Rollback()

	if err := s.deleteRows(ctx, tx, id, s.pointsTable, s.seriesTable, s.sessionsTable); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return helpers.WrapDatabaseError("commit delete", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) CleanupOldData() error {
	if s.RetentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays).UnixNano()

	s.Logger.Info("Cleaning up sessions not updated in %d days...", s.RetentionDays)

	for _, table := range []string{s.pointsTable, s.seriesTable} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE session_id IN (SELECT id FROM %s WHERE updated_at < %s)`, table, s.sessionsTable, s.bind(1))
		if _, err := s.DB.Exec(query, cutoff); err != nil {
			s.Logger.Error("Cleanup %s error: %v", table, err)
		}
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE updated_at < %s`, s.sessionsTable, s.bind(1))
	res, err := s.DB.Exec(query, cutoff)
	if err != nil {
		return helpers.WrapDatabaseError("cleanup sessions", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.Logger.Info("Cleanup completed, %d session(s) removed", n)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
