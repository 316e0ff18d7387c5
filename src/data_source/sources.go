package datasource

import (
	"context"
	"os"
	"strings"

	"series-observer/src/helpers"
	"series-observer/src/interfaces"
	"series-observer/src/models"
	"series-observer/src/storage"
)

// Source types accepted in configuration.
const (
	TypeFile  = "file"
	TypeHTTP  = "http"
	TypeTable = "table"
)

// -----------------------------------------------------------------------------
// FileSource reads a CSV or JSON file from disk.
// -----------------------------------------------------------------------------

type FileSource struct {
	name   string
	Path   string
	Format string
	Loader interfaces.ISeriesLoader
}

func NewFileSource(name, path, format string, loader interfaces.ISeriesLoader) *FileSource {
	return &FileSource{name: name, Path: path, Format: format, Loader: loader}
}

func (s *FileSource) Name() string { return s.name }

func (s *FileSource) Fetch(ctx context.Context) (*models.MSeriesCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, helpers.NewNotFoundError("file %s does not exist", s.Path)
		}
		return nil, err
	}
	return s.Loader.Load(models.MRawSource{Name: s.name, Format: s.Format, Data: data})
}

// -----------------------------------------------------------------------------
// HTTPSource downloads a CSV or JSON document.
// -----------------------------------------------------------------------------

type HTTPSource struct {
	name    string
	URL     string
	Format  string
	Network interfaces.INetworkManager
	Loader  interfaces.ISeriesLoader
}

func NewHTTPSource(name, url, format string, network interfaces.INetworkManager, loader interfaces.ISeriesLoader) *HTTPSource {
	return &HTTPSource{name: name, URL: url, Format: format, Network: network, Loader: loader}
}

func (s *HTTPSource) Name() string { return s.name }

func (s *HTTPSource) Fetch(ctx context.Context) (*models.MSeriesCollection, error) {
	data, err := s.Network.Get(ctx, s.URL, nil)
	if err != nil {
		return nil, err
	}
	return s.Loader.Load(models.MRawSource{Name: s.name, Format: s.Format, Data: data})
}

// -----------------------------------------------------------------------------
// TableSource reads one series out of a table of the configured database.
// Rows go through the same ordering and limits as uploaded input.
// -----------------------------------------------------------------------------

type TableSource struct {
	name   string
	Ref    models.MTableRef
	Reader interfaces.ITableReader
	Loader interfaces.ISeriesLoader
}

func NewTableSource(name string, ref models.MTableRef, reader interfaces.ITableReader, loader interfaces.ISeriesLoader) *TableSource {
	return &TableSource{name: name, Ref: ref, Reader: reader, Loader: loader}
}

func (s *TableSource) Name() string { return s.name }

func (s *TableSource) Fetch(ctx context.Context) (*models.MSeriesCollection, error) {
	series, err := s.Reader.ReadTableSeries(ctx, s.Ref)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, helpers.NewEmptyInputError("table %s has no rows", s.Ref.String())
	}
	prepared, err := s.Loader.PrepareSeries(series)
	if err != nil {
		return nil, err
	}
	coll := models.NewSeriesCollection()
	coll.Replace(prepared)
	return coll, nil
}

// -----------------------------------------------------------------------------

// NewSourcesFromConfig builds the configured sources. reader may be nil when
// no database is configured, in which case table sources are rejected.
func NewSourcesFromConfig(cfg []models.MSourceConfig, loader interfaces.ISeriesLoader, network interfaces.INetworkManager, reader interfaces.ITableReader) ([]interfaces.IDataSource, error) {
	out := make([]interfaces.IDataSource, 0, len(cfg))
	for _, sc := range cfg {
		switch strings.ToLower(sc.Type) {
		case TypeFile:
			out = append(out, NewFileSource(sc.Name, sc.Path, sc.Format, loader))
		case TypeHTTP:
			out = append(out, NewHTTPSource(sc.Name, sc.URL, sc.Format, network, loader))
		case TypeTable:
			if reader == nil {
				return nil, helpers.NewConfigurationError("source %s: table sources need a database", sc.Name)
			}
			ref, err := storage.ParseTableRef(sc.Table)
			if err != nil {
				return nil, err
			}
			out = append(out, NewTableSource(sc.Name, ref, reader, loader))
		default:
			return nil, helpers.NewConfigurationError("source %s: unknown type %q", sc.Name, sc.Type)
		}
	}
	return out, nil
}
