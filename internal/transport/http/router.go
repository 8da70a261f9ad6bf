// Package httptransport is the read-only HTTP mirror of the control socket
// (spec §6's "external HTTP collector component"): ListJobs/GetJob/
// HistoryFor plus /healthz and /readyz (/metrics is served by the separate
// metrics server, not this router). It never accepts
// mutations — AddJob/UpdateJob/StartNow/StopExecution/ImportConfig are
// control-socket only.
package httptransport

import (
	"github.com/gin-gonic/gin"

	"github.com/lunasched/lunasched/internal/transport/http/handler"
	"github.com/lunasched/lunasched/internal/transport/http/middleware"
)

// NewRouter wires jobHandler and healthHandler onto a gin.Engine. The
// caller mounts promhttp's handler at /metrics separately (internal/metrics
// runs it on its own listener, per the teacher's metrics-server idiom).
func NewRouter(jobHandler *handler.JobHandler, healthHandler *handler.HealthHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())

	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	jobs := r.Group("/jobs")
	jobs.GET("", jobHandler.List)
	jobs.GET("/:name", jobHandler.Get)
	jobs.GET("/:name/history", jobHandler.History)

	return r
}
