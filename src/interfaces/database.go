package interfaces

import (
	"context"

	"series-observer/src/models"
)

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize opens the connection and creates missing tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveSession replaces the stored points of a session with its collection.
	SaveSession(ctx context.Context, session *models.MSession) error

	// -----------------------------------------------------------------------------

	// LoadSession returns a NotFoundError when the id is unknown.
	LoadSession(ctx context.Context, id string) (*models.MSession, error)

	// -----------------------------------------------------------------------------

	// ListSessions returns stored sessions, most recently updated first.
	ListSessions(ctx context.Context) ([]models.MSessionInfo, error)

	// -----------------------------------------------------------------------------

	// DeleteSession is a no-op for unknown ids.
	DeleteSession(ctx context.Context, id string) error

	// -----------------------------------------------------------------------------

	// CleanupOldData removes sessions not updated within the retention period.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}

// -----------------------------------------------------------------------------
// ITableReader reads a series straight out of an existing table.
// -----------------------------------------------------------------------------

type ITableReader interface {
	ReadTableSeries(ctx context.Context, ref models.MTableRef) (*models.MTimeSeries, error)
}
