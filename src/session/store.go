package session

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"series-observer/src/helpers"
	"series-observer/src/interfaces"
	"series-observer/src/logger"
	"series-observer/src/models"
	"series-observer/src/utils"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// -----------------------------------------------------------------------------
// SessionStore keeps recently used sessions in a bounded LRU cache. When a
// database is configured every write goes through to it and cache misses are
// reloaded from it; without one, evicted sessions are gone.
// -----------------------------------------------------------------------------

type SessionStore struct {
	cache  *lru.Cache[string, *models.MSession]
	db     interfaces.IDatabase
	Logger *logger.Logger
	mu     sync.Mutex // serialises writes so cache and database agree
	now    func() time.Time
}

// -----------------------------------------------------------------------------

// NewSessionStore creates a store holding up to cacheSize sessions in memory.
// db may be nil.
func NewSessionStore(cacheSize int, db interfaces.IDatabase, log *logger.Logger) (*SessionStore, error) {
	if cacheSize <= 0 {
		cacheSize = utils.DefaultSessionCacheSize
	}
	if log == nil {
		log = logger.NewLogger("INFO", "SessionStore")
	}

	s := &SessionStore{db: db, Logger: log, now: func() time.Time { return time.Now().UTC() }}
	cache, err := lru.NewWithEvict(cacheSize, func(id string, _ *models.MSession) {
		if s.db == nil {
			s.Logger.Warning("Session %s evicted from memory and discarded", id)
		} else {
			s.Logger.Debug("Session %s evicted from memory", id)
		}
	})
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return s, nil
}

// -----------------------------------------------------------------------------

// Create stores coll under a fresh session id.
func (s *SessionStore) Create(ctx context.Context, name string, coll *models.MSeriesCollection) (*models.MSession, error) {
	now := s.now()
	session := &models.MSession{
		MSessionInfo: models.MSessionInfo{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Collection: coll,
	}
	session.MSessionInfo = session.Info()

	if err := s.put(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// -----------------------------------------------------------------------------

// Get returns the session, reloading it from the database on a cache miss.
func (s *SessionStore) Get(ctx context.Context, id string) (*models.MSession, error) {
	if session, ok := s.cache.Get(id); ok {
		return session, nil
	}
	if s.db == nil {
		return nil, helpers.NewNotFoundError("session %s not found", id)
	}

	// Held across the reload so a concurrent Delete cannot be undone by
	// re-adding what it removed.
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.cache.Get(id); ok {
		return session, nil
	}

	session, err := s.db.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, session)
	return session, nil
}

// -----------------------------------------------------------------------------

// Update replaces the collection of an existing session.
func (s *SessionStore) Update(ctx context.Context, id string, coll *models.MSeriesCollection) (*models.MSession, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	session := &models.MSession{MSessionInfo: current.MSessionInfo, Collection: coll}
	session.UpdatedAt = s.now()
	session.MSessionInfo = session.Info()

	if err := s.put(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// -----------------------------------------------------------------------------

func (s *SessionStore) put(ctx context.Context, session *models.MSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.SaveSession(ctx, session); err != nil {
			return err
		}
	}
	s.cache.Add(session.ID, session)
	return nil
}

// -----------------------------------------------------------------------------

// Delete removes the session from memory and the database.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := s.cache.Remove(id)
	if s.db != nil {
		if !found {
			if _, err := s.db.LoadSession(ctx, id); err != nil {
				return err
			}
		}
		return s.db.DeleteSession(ctx, id)
	}
	if !found {
		return helpers.NewNotFoundError("session %s not found", id)
	}
	return nil
}

// -----------------------------------------------------------------------------

// List returns session summaries, most recently updated first.
func (s *SessionStore) List(ctx context.Context) ([]models.MSessionInfo, error) {
	if s.db != nil {
		return s.db.ListSessions(ctx)
	}

	sessions := s.cache.Values()
	out := make([]models.MSessionInfo, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.MSessionInfo)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// -----------------------------------------------------------------------------

// Len returns the number of sessions held in memory.
func (s *SessionStore) Len() int {
	return s.cache.Len()
}

// -----------------------------------------------------------------------------

// Purge clears the in-memory cache and releases memory. Persisted sessions
// stay in the database.
func (s *SessionStore) Purge() {
	s.cache.Purge()
	runtime.GC()
}

// -----------------------------------------------------------------------------

// HeapMB reports the current heap usage in MB.
func HeapMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapAlloc) / 1024 / 1024
}
