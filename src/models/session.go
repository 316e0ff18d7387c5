package models

import "time"

// -----------------------------------------------------------------------------
// MSessionInfo describes a stored collection without its points.
// -----------------------------------------------------------------------------

type MSessionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Series    []string  `json:"series"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// MSession is a named collection held by the session store.
// -----------------------------------------------------------------------------

type MSession struct {
	MSessionInfo
	Collection *MSeriesCollection `json:"collection"`
}

// Info recomputes the summary fields from the collection.
func (s *MSession) Info() MSessionInfo {
	info := s.MSessionInfo
	info.Series = s.Collection.Names()
	info.Points = 0
	for _, series := range s.Collection.All() {
		info.Points += series.Len()
	}
	return info
}

// -----------------------------------------------------------------------------
// MSessionEvent is pushed to websocket subscribers when a session changes.
// -----------------------------------------------------------------------------

const (
	EventSessionCreated = "session_created"
	EventSessionUpdated = "session_updated"
	EventSessionDeleted = "session_deleted"
)

type MSessionEvent struct {
	Type    string       `json:"type"`
	Session MSessionInfo `json:"session"`
}
