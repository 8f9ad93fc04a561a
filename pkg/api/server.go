// Package api exposes a small ops HTTP surface: liveness, runtime status,
// and the resumable-session listing.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teleclaude/teleclaude/pkg/history"
	"github.com/teleclaude/teleclaude/pkg/version"
)

// healthTimeout bounds the database ping per health request.
const healthTimeout = 5 * time.Second

// Runtime is the client-manager surface the API reads.
type Runtime interface {
	ClientCount() int
	ListSessions(dir string, limit int) []history.Entry
}

// Storage is the database surface the API checks.
type Storage interface {
	Health(ctx context.Context) error
}

// Server serves the ops endpoints.
type Server struct {
	runtime    Runtime
	storage    Storage
	defaultDir string
	startedAt  time.Time
}

// NewServer creates a server reporting over the given runtime and storage.
func NewServer(runtime Runtime, storage Storage, defaultDir string) *Server {
	return &Server{
		runtime:    runtime,
		storage:    storage,
		defaultDir: defaultDir,
		startedAt:  time.Now(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", s.Status)
		v1.GET("/sessions", s.Sessions)
	}
	return router
}

// Health returns liveness plus the database check.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := s.storage.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "down",
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "up",
	})
}

// Status reports version and runtime counters.
func (s *Server) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":        version.Full(),
		"commit":         version.GitCommit,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"active_clients": s.runtime.ClientCount(),
	})
}

// Sessions lists resumable sessions for a directory, newest first.
func (s *Server) Sessions(c *gin.Context) {
	dir := c.DefaultQuery("dir", s.defaultDir)
	if dir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dir query parameter is required"})
		return
	}

	limit := 20
	entries := s.runtime.ListSessions(dir, limit)
	sessions := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		sessions = append(sessions, gin.H{
			"session_id": e.SessionID,
			"display":    e.Display,
			"timestamp":  e.Timestamp,
			"project":    e.Project,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"directory": dir,
		"sessions":  sessions,
	})
}
