// Package httpapi is the thin gin layer §6 documents contracts for but puts out of scope for
// the core: generic entity CRUD over the write pipeline, the three workflow runtime endpoints,
// and webhook admin CRUD. Grounded on station's internal/api/v1 (webhooks.go, workflows.go,
// handlers.go) for route registration and gin.H error-response shape.
package httpapi

import (
	"log"

	"github.com/gin-gonic/gin"

	"rocketcore/internal/pipeline"
	"rocketcore/internal/registry"
	"rocketcore/internal/workflow"
)

// Server wires the pipeline, registry, and workflow engine into gin routes.
type Server struct {
	Pipeline *pipeline.Pipeline
	Registry *registry.Registry
	Workflow *workflow.Engine
	Logger   *log.Logger
}

// NewServer constructs a Server.
func NewServer(p *pipeline.Pipeline, reg *registry.Registry, wf *workflow.Engine, logger *log.Logger) *Server {
	return &Server{Pipeline: p, Registry: reg, Workflow: wf, Logger: logger}
}

// Router builds the gin engine with every route §6 names, mirroring
// station/cmd/main/server.go's "new engine, register route groups" wiring.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	entities := r.Group("/:entity")
	entities.POST("", s.createRecord)
	entities.GET("/:id", s.getRecord)
	entities.PUT("/:id", s.updateRecord)
	entities.DELETE("/:id", s.deleteRecord)

	wfGroup := r.Group("/_workflows")
	wfGroup.GET("/pending", s.listPendingWorkflows)
	wfGroup.GET("/:id", s.getWorkflowInstance)
	wfGroup.POST("/:id/approve", s.approveWorkflow)
	wfGroup.POST("/:id/reject", s.rejectWorkflow)

	webhooks := r.Group("/_webhooks")
	webhooks.GET("", s.listWebhooks)
	webhooks.POST("", s.createWebhook)
	webhooks.PUT("/:id", s.updateWebhook)
	webhooks.DELETE("/:id", s.deleteWebhook)

	return r
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
