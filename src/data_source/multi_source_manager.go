package datasource

import (
	"context"
	"sort"
	"sync"

	"series-observer/src/helpers"
	"series-observer/src/interfaces"
	"series-observer/src/logger"
	"series-observer/src/models"
	"series-observer/src/session"

	"golang.org/x/sync/errgroup"
)

// MultiSourceManager aggregates multiple IDataSource instances and loads
// them with bounded concurrency.
type MultiSourceManager struct {
	Sources     map[string]interfaces.IDataSource
	Concurrency int
	Logger      *logger.Logger
	mu          sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMultiSourceManager(sources []interfaces.IDataSource, concurrency int, log *logger.Logger) *MultiSourceManager {
	m := &MultiSourceManager{
		Sources:     make(map[string]interfaces.IDataSource),
		Concurrency: concurrency,
		Logger:      log,
	}

	for _, s := range sources {
		m.Sources[s.Name()] = s
	}

	return m
}

// -----------------------------------------------------------------------------

// AddSource registers a source under its name
func (m *MultiSourceManager) AddSource(source interfaces.IDataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := source.Name()
	if _, exists := m.Sources[name]; exists {
		return helpers.NewConfigurationError("source %s already exists", name)
	}

	m.Sources[name] = source
	m.Logger.Info("Added source: %s", name)
	return nil
}

// -----------------------------------------------------------------------------

// RemoveSource removes a source
func (m *MultiSourceManager) RemoveSource(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.Sources[name]; !exists {
		return helpers.NewNotFoundError("source %s not found", name)
	}

	delete(m.Sources, name)
	m.Logger.Info("Removed source: %s", name)
	return nil
}

// -----------------------------------------------------------------------------

// GetSource retrieves a source by name
func (m *MultiSourceManager) GetSource(name string) (interfaces.IDataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	source, exists := m.Sources[name]
	if !exists {
		return nil, helpers.NewNotFoundError("source %s not found", name)
	}
	return source, nil
}

// -----------------------------------------------------------------------------

// GetAllSources returns all sources sorted by name
func (m *MultiSourceManager) GetAllSources() []interfaces.IDataSource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]interfaces.IDataSource, 0, len(m.Sources))
	for _, s := range m.Sources {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// -----------------------------------------------------------------------------

// LoadAll fetches every source concurrently. A failing source is logged and
// skipped; only cancellation of ctx fails the whole load.
func (m *MultiSourceManager) LoadAll(ctx context.Context) (map[string]*models.MSeriesCollection, error) {
	results := make(map[string]*models.MSeriesCollection)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if m.Concurrency > 0 {
		g.SetLimit(m.Concurrency)
	}

	for _, src := range m.GetAllSources() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			coll, err := src.Fetch(gctx)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				m.Logger.Error("Source %s failed: %v", src.Name(), err)
				return nil
			}
			m.Logger.Info("Source %s loaded %d series", src.Name(), coll.Len())

			mu.Lock()
			results[src.Name()] = coll
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// -----------------------------------------------------------------------------

// Preload loads every source and stores each result as a session named after
// its source.
func (m *MultiSourceManager) Preload(ctx context.Context, store *session.SessionStore) ([]models.MSessionInfo, error) {
	loaded, err := m.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.MSessionInfo, 0, len(names))
	for _, name := range names {
		s, err := store.Create(ctx, name, loaded[name])
		if err != nil {
			return out, err
		}
		m.Logger.Info("Source %s stored as session %s", name, s.ID)
		out = append(out, s.MSessionInfo)
	}
	return out, nil
}
