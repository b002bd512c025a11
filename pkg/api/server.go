// Package api exposes the research and monitor surfaces over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
	"github.com/BrianMills2718/OSINT-sub001/pkg/monitor"
	"github.com/BrianMills2718/OSINT-sub001/pkg/research"
)

// Server wires the HTTP handlers to the engine, scheduler, and registry.
type Server struct {
	engine      *research.Engine
	scheduler   *monitor.Scheduler
	registry    *integration.Registry
	researchDir string
	defaults    models.Constraints

	mu      sync.Mutex
	running map[string]bool // run_id → still executing
}

// NewServer builds the API server.
func NewServer(engine *research.Engine, scheduler *monitor.Scheduler,
	registry *integration.Registry, researchDir string, defaults models.Constraints) *Server {
	return &Server{
		engine:      engine,
		scheduler:   scheduler,
		registry:    registry,
		researchDir: researchDir,
		defaults:    defaults,
		running:     make(map[string]bool),
	}
}

// Router builds the gin engine with all routes installed.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.Health)
		v1.GET("/sources", s.ListSources)
		v1.POST("/research", s.StartResearch)
		v1.GET("/research/:run_id", s.GetResearch)
		v1.GET("/monitors", s.ListMonitors)
		v1.POST("/monitors/:name/run", s.RunMonitor)
	}
	return r
}

// requestID tags every request for log correlation.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Health reports process liveness and registry size.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"sources": len(s.registry.IDs()),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// ListSources returns the metadata catalog.
func (s *Server) ListSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": s.registry.List()})
}

type researchRequest struct {
	Question    string `json:"question" binding:"required"`
	Constraints *struct {
		MaxTasks           int `json:"max_tasks"`
		MaxRetriesPerTask  int `json:"max_retries_per_task"`
		MaxTimeMinutes     int `json:"max_time_minutes"`
		MinResultsPerTask  int `json:"min_results_per_task"`
		MaxConcurrentTasks int `json:"max_concurrent_tasks"`
		RelevanceThreshold int `json:"relevance_threshold"`
	} `json:"constraints"`
}

// StartResearch launches a run in the background and returns its id.
func (s *Server) StartResearch(c *gin.Context) {
	var req researchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	constraints := s.defaults
	if rc := req.Constraints; rc != nil {
		if rc.MaxTasks > 0 {
			constraints.MaxTasks = rc.MaxTasks
		}
		if rc.MaxRetriesPerTask > 0 {
			constraints.MaxRetriesPerTask = rc.MaxRetriesPerTask
		}
		if rc.MaxTimeMinutes > 0 {
			constraints.MaxTime = time.Duration(rc.MaxTimeMinutes) * time.Minute
		}
		if rc.MinResultsPerTask > 0 {
			constraints.MinResultsPerTask = rc.MinResultsPerTask
		}
		if rc.MaxConcurrentTasks > 0 {
			constraints.MaxConcurrentTasks = rc.MaxConcurrentTasks
		}
		if rc.RelevanceThreshold > 0 {
			constraints.RelevanceThreshold = rc.RelevanceThreshold
		}
	}

	run, done := s.engine.Launch(c.Request.Context(), req.Question, constraints)
	s.mu.Lock()
	s.running[run.RunID] = true
	s.mu.Unlock()
	go func() {
		<-done
		s.mu.Lock()
		delete(s.running, run.RunID)
		s.mu.Unlock()
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": run.RunID,
		"status": "running",
	})
}

// GetResearch returns a completed run record, or its in-flight status.
func (s *Server) GetResearch(c *gin.Context) {
	runID := c.Param("run_id")
	if filepath.Base(runID) != runID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	s.mu.Lock()
	inFlight := s.running[runID]
	s.mu.Unlock()
	if inFlight {
		c.JSON(http.StatusOK, gin.H{"run_id": runID, "status": "running"})
		return
	}

	data, err := os.ReadFile(filepath.Join(s.researchDir, runID, "research_data.json"))
	if os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id": runID,
		"status": "complete",
		"result": json.RawMessage(data),
	})
}

// ListMonitors returns the loaded monitor configs.
func (s *Server) ListMonitors(c *gin.Context) {
	monitors := s.scheduler.Monitors()
	out := make([]*models.MonitorConfig, 0, len(monitors))
	for _, cfg := range monitors {
		out = append(out, cfg)
	}
	c.JSON(http.StatusOK, gin.H{"monitors": out})
}

// RunMonitor triggers one monitor cycle immediately.
func (s *Server) RunMonitor(c *gin.Context) {
	name := c.Param("name")
	summary, err := s.scheduler.Trigger(c.Request.Context(), name)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, monitor.ErrMonitorNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}
