package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rocketcore/internal/apperr"
	"rocketcore/internal/writeplan"
)

// createRecord implements the generic entity-create contract §6 documents: planWrite →
// executeWritePlan, mapping errors the way every pack handler maps service errors to gin.H.
func (s *Server) createRecord(c *gin.Context) {
	entityName := c.Param("entity")

	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.New(apperr.CodeInvalidPayload, "request body must be a JSON object"))
		return
	}

	plan, issues := writeplan.Build(s.Registry, entityName, body, "", currentUser(c))
	if len(issues) > 0 {
		writeError(c, apperr.Validation(issues))
		return
	}

	record, err := s.Pipeline.Execute(c.Request.Context(), plan)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": record})
}

// getRecord fetches a single record by id.
func (s *Server) getRecord(c *gin.Context) {
	entityName := c.Param("entity")
	id := c.Param("id")

	entity := s.Registry.Entity(entityName)
	if entity == nil {
		writeError(c, apperr.New(apperr.CodeUnknownEntity, "unknown entity "+entityName))
		return
	}

	record, found, err := s.Pipeline.Fetch(c.Request.Context(), entity, id)
	if err != nil {
		writeError(c, apperr.Wrap(apperr.CodeInternal, "failed to fetch record", err))
		return
	}
	if !found {
		writeError(c, apperr.New(apperr.CodeNotFound, entityName+" "+id+" not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": record})
}

// updateRecord implements the generic entity-update contract.
func (s *Server) updateRecord(c *gin.Context) {
	entityName := c.Param("entity")
	id := c.Param("id")

	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.New(apperr.CodeInvalidPayload, "request body must be a JSON object"))
		return
	}

	plan, issues := writeplan.Build(s.Registry, entityName, body, id, currentUser(c))
	if len(issues) > 0 {
		writeError(c, apperr.Validation(issues))
		return
	}

	record, err := s.Pipeline.Execute(c.Request.Context(), plan)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": record})
}

// deleteRecord implements the generic cascade-delete contract.
func (s *Server) deleteRecord(c *gin.Context) {
	entityName := c.Param("entity")
	id := c.Param("id")

	entity := s.Registry.Entity(entityName)
	if entity == nil {
		writeError(c, apperr.New(apperr.CodeUnknownEntity, "unknown entity "+entityName))
		return
	}

	if err := s.Pipeline.Delete(c.Request.Context(), entity, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
