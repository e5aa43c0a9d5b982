package httpapi

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rocketcore/internal/apperr"
	"rocketcore/internal/workflow"
)

// listPendingWorkflows lists running instances paused on a step, per §6's workflow runtime
// surface.
func (s *Server) listPendingWorkflows(c *gin.Context) {
	instances, err := s.Workflow.Store.Pending(c.Request.Context())
	if err != nil {
		writeError(c, apperr.Wrap(apperr.CodeInternal, "failed to list pending workflow instances", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": instances})
}

// getWorkflowInstance fetches a single workflow instance by id.
func (s *Server) getWorkflowInstance(c *gin.Context) {
	id := c.Param("id")
	inst, err := s.Workflow.Store.Get(c.Request.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(c, apperr.New(apperr.CodeNotFound, "workflow instance "+id+" not found"))
		return
	}
	if err != nil {
		writeError(c, apperr.Wrap(apperr.CodeInternal, "failed to fetch workflow instance", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inst})
}

// approveWorkflow resolves the instance's current approval step as approved.
func (s *Server) approveWorkflow(c *gin.Context) {
	s.resolveWorkflowAction(c, workflow.Approved)
}

// rejectWorkflow resolves the instance's current approval step as rejected.
func (s *Server) rejectWorkflow(c *gin.Context) {
	s.resolveWorkflowAction(c, workflow.Rejected)
}

func (s *Server) resolveWorkflowAction(c *gin.Context, action workflow.ApprovalAction) {
	id := c.Param("id")

	actorID := "anonymous"
	if u := currentUser(c); u != nil {
		actorID = u.ID
	}

	inst, err := s.Workflow.ResolveAction(c.Request.Context(), id, action, actorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inst})
}
