package interfaces

import (
	"context"

	"series-observer/src/models"
)

// -----------------------------------------------------------------------------
// IDataSource produces a collection from an external location.
// -----------------------------------------------------------------------------

type IDataSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// Fetch retrieves and parses the source.
	Fetch(ctx context.Context) (*models.MSeriesCollection, error)
}

// -----------------------------------------------------------------------------
// ISeriesLoader parses raw payloads; implemented by the analysis engine.
// -----------------------------------------------------------------------------

type ISeriesLoader interface {
	Load(raw models.MRawSource) (*models.MSeriesCollection, error)
	PrepareSeries(series *models.MTimeSeries) (*models.MTimeSeries, error)
}
