// Package handler implements the read-only HTTP mirror of the control
// socket's ListJobs/GetJob/HistoryFor operations (spec §6). Write
// operations (AddJob, StartNow, ...) are control-socket only; this surface
// exists for dashboards and external collectors that can't speak the
// control socket's framing.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/usecase"
)

// JobHandler serves the read-only job/execution endpoints.
type JobHandler struct {
	service *usecase.Service
}

// NewJobHandler wires a JobHandler to service.
func NewJobHandler(service *usecase.Service) *JobHandler {
	return &JobHandler{service: service}
}

// List handles GET /jobs, optionally filtered by ?enabled=true and ?tag=.
func (h *JobHandler) List(c *gin.Context) {
	var filter domain.JobFilter
	if raw := c.Query("enabled"); raw != "" {
		enabled := raw == "true"
		filter.Enabled = &enabled
	}
	if tag := c.Query("tag"); tag != "" {
		filter.Tags = []string{tag}
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// Get handles GET /jobs/:name.
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.service.GetJob(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, job)
}

// History handles GET /jobs/:name/history.
func (h *JobHandler) History(c *gin.Context) {
	filter := domain.ExecutionFilter{JobName: c.Param("name")}
	history, err := h.service.HistoryFor(c.Request.Context(), c.Param("name"), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, history)
}
