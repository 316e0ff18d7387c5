package interfaces

import "series-observer/src/models"

// -----------------------------------------------------------------------------
// IDataExchanger defines the interface for pushing session changes to
// external listeners.
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// -----------------------------------------------------------------------------
	// Broadcast pushes an event to every subscriber of the session.
	Broadcast(event models.MSessionEvent)

	// -----------------------------------------------------------------------------
	// Start the server
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop() error
}
