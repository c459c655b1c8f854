// Package api serves the worker's local status endpoints. Bound to
// localhost by default; it exposes the same numbers the heartbeat posts,
// for operators watching a single box.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ellipsesearch/visibility-worker/internal/logger"
	"github.com/ellipsesearch/visibility-worker/internal/scheduler"
)

// StatusProvider supplies the live numbers for GET /status.
type StatusProvider interface {
	StatusSnapshot() Status
}

// Status is the /status response body.
type Status struct {
	WorkerID     string                   `json:"worker_id"`
	Version      string                   `json:"version"`
	Sequential   bool                     `json:"sequential"`
	Stats        scheduler.Snapshot       `json:"stats"`
	UnitStates   map[string]string        `json:"unit_states"`
	Cooldowns    map[string]time.Duration `json:"cooldowns"`
	EnginesReady []string                 `json:"engines_ready"`
}

// Server is the local status HTTP server.
type Server struct {
	httpServer *http.Server
	logger     logger.Interface
}

// NewServer builds the server on the given address.
func NewServer(addr string, provider StatusProvider, log logger.Interface) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, provider.StatusSnapshot())
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log.WithComponent("api"),
	}
}

// Start serves until Shutdown. Blocks; run it in its own goroutine.
func (s *Server) Start() error {
	s.logger.Info("status server listening", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
