package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"series-observer/src/analysis"
	"series-observer/src/logger"
	"series-observer/src/models"
	"series-observer/src/monitoring"
	"series-observer/src/session"

	"github.com/gin-gonic/gin"
)

// Default limit for request bodies.
const maxBodyBytes = 64 << 20

// -----------------------------------------------------------------------------
// ObserverServer
// -----------------------------------------------------------------------------

type ObserverServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Engine  *analysis.SeriesEngine
	Store   *session.SessionStore
	Metrics *monitoring.Metrics
	router  *gin.Engine
	http    *http.Server

	// Request bodies above this size get 413
	MaxBodyBytes int64

	// WebSocket clients, owned by the hub goroutine
	clients    map[*Client]struct{}
	broadcast  chan models.MSessionEvent
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	done       chan struct{}
	stopOnce   sync.Once

	stateMutex sync.RWMutex
	connected  int
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewObserverServer(cfg *models.MConfig, engine *analysis.SeriesEngine, store *session.SessionStore, metrics *monitoring.Metrics, log *logger.Logger) *ObserverServer {
	// Set Gin mode
	if !strings.EqualFold(cfg.LogLevel, "DEBUG") {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &ObserverServer{
		Config:  cfg,
		Logger:  log,
		Engine:  engine,
		Store:   store,
		Metrics: metrics,
		router:  gin.New(),
		clients: make(map[*Client]struct{}),
		// Buffered so request handlers never wait on slow websocket clients
		broadcast:  make(chan models.MSessionEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		done:       make(chan struct{}),

		MaxBodyBytes: maxBodyBytes,
	}

	s.router.Use(gin.Recovery(), s.requestLogger())

	// Add CORS Middleware
	s.router.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	go s.handleWebsockets()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *ObserverServer) setupRoutes() {
	api := s.router.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/config", s.getConfig)

	api.GET("/sessions", s.listSessions)
	api.POST("/sessions", s.createSession)
	api.GET("/sessions/:id", s.getSession)
	api.DELETE("/sessions/:id", s.deleteSession)
	api.POST("/sessions/:id/transform", s.transformSession)
	api.GET("/sessions/:id/series/:name", s.getSeries)
	api.GET("/sessions/:id/series/:name/summary", s.getSummary)
	api.POST("/sessions/:id/series/:name/transform", s.transformSeries)

	api.POST("/vintages", s.postVintages)

	if s.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	// WebSocket endpoint
	s.router.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------

func (s *ObserverServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// -----------------------------------------------------------------------------

// Handler exposes the router, mainly for tests.
func (s *ObserverServer) Handler() http.Handler {
	return s.router
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *ObserverServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.stateMutex.Lock()
	s.http = srv
	s.stateMutex.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *ObserverServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.stateMutex.RLock()
		srv := s.http
		s.stateMutex.RUnlock()
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = srv.Shutdown(ctx)
		}
		close(s.done)
	})
	return err
}
