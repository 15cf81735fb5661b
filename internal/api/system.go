package api

import (
	"errors"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shelfarr/shelfbrowse/internal/scheduler"
)

// SystemStatus represents the overall system status
type SystemStatus struct {
	Version   string        `json:"version"`
	StartTime time.Time     `json:"startTime"`
	Uptime    string        `json:"uptime"`
	OS        string        `json:"os"`
	Arch      string        `json:"arch"`
	GoVersion string        `json:"goVersion"`
	Database  DBStatus      `json:"database"`
	Catalog   CatalogStatus `json:"catalog"`
	Clients   ClientStatus  `json:"clients"`
}

// DBStatus represents database status
type DBStatus struct {
	Type   string `json:"type"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Status string `json:"status"`
}

// CatalogStatus summarizes the controller state
type CatalogStatus struct {
	Topic     string  `json:"topic"`
	Page      int     `json:"page"`
	State     string  `json:"state"`
	Seq       uint64  `json:"seq"`
	Upstream  string  `json:"upstream"`
	RateLimit float64 `json:"rateLimit"`
}

// ClientStatus represents status of connected clients
type ClientStatus struct {
	WebSockets int `json:"webSockets"`
}

// TaskInfo represents information about a scheduled task
type TaskInfo struct {
	Name     string    `json:"name"`
	Interval string    `json:"interval"`
	LastRun  time.Time `json:"lastRun"`
	NextRun  time.Time `json:"nextRun"`
	Running  bool      `json:"running"`
	Enabled  bool      `json:"enabled"`
}

var serverStartTime = time.Now()

// getSystemStatus returns system status information
func (s *Server) getSystemStatus(c echo.Context) error {
	status := SystemStatus{
		Version:   Version,
		StartTime: serverStartTime,
		Uptime:    time.Since(serverStartTime).Round(time.Second).String(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
	}

	// Database status
	status.Database = DBStatus{
		Type:   "sqlite",
		Path:   s.config.DatabasePath,
		Status: "disabled",
	}
	if s.activity != nil {
		status.Database.Status = "connected"
	}
	if info, err := os.Stat(s.config.DatabasePath); err == nil {
		status.Database.Size = info.Size()
	}

	snap := s.catalog.Snapshot()
	status.Catalog = CatalogStatus{
		Topic:     string(snap.Topic),
		Page:      snap.Page,
		State:     string(snap.State()),
		Seq:       snap.Seq,
		Upstream:  s.config.OpenLibraryURL,
		RateLimit: s.config.RateLimit,
	}

	if s.wsHub != nil {
		status.Clients.WebSockets = s.wsHub.ClientCount()
	}

	return c.JSON(http.StatusOK, status)
}

// getSystemTasks returns information about scheduled tasks
func (s *Server) getSystemTasks(c echo.Context) error {
	tasks := make([]TaskInfo, 0)
	if s.tasks != nil {
		for _, t := range s.tasks.GetTasks() {
			tasks = append(tasks, TaskInfo{
				Name:     t.Name,
				Interval: t.Interval.String(),
				LastRun:  t.LastRun,
				NextRun:  t.NextRun,
				Running:  t.Running,
				Enabled:  t.Enabled,
			})
		}
	}

	return c.JSON(http.StatusOK, tasks)
}

// runSystemTask manually triggers a scheduled task
func (s *Server) runSystemTask(c echo.Context) error {
	taskName := c.Param("name")
	if s.tasks == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Task not found"})
	}

	if err := s.tasks.RunNow(taskName); err != nil {
		if errors.Is(err, scheduler.ErrUnknownTask) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Task not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Task failed: " + err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Task " + taskName + " completed",
	})
}

// TaskEnabledRequest toggles scheduling of a task
type TaskEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// setSystemTaskEnabled enables or disables a scheduled task
func (s *Server) setSystemTaskEnabled(c echo.Context) error {
	taskName := c.Param("name")
	if s.tasks == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Task not found"})
	}

	var req TaskEnabledRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	toggle := s.tasks.DisableTask
	if req.Enabled {
		toggle = s.tasks.EnableTask
	}
	if err := toggle(taskName); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Task not found"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":    taskName,
		"enabled": req.Enabled,
	})
}
