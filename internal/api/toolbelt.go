package api

import (
	"net/http"
	"time"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/internal/telemetry"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/gin-gonic/gin"
)

// ownedItem loads a toolbelt item and verifies it belongs to the calling
// agent. A foreign item is indistinguishable from a missing one.
func (s *Server) ownedItem(c *gin.Context) (*model.ToolbeltItem, bool) {
	id, ok := idParam(c, "id")
	if !ok {
		return nil, false
	}
	item, err := s.toolbeltService.GetItem(id)
	if err != nil {
		renderError(c, err)
		return nil, false
	}
	if item.AgentID != callingAgent(c).ID {
		renderError(c, apperr.ErrNotFound)
		return nil, false
	}
	return item, true
}

func (s *Server) listToolbeltHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := s.toolbeltService.ListItems(callingAgent(c).ID)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

func (s *Server) addToBeltHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input types.AddToolbeltItemInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		item, err := s.toolbeltService.AddToBelt(callingAgent(c).ID, input.ToolInstanceID)
		if err != nil {
			renderError(c, err)
			return
		}

		c.JSON(http.StatusCreated, &types.ToolbeltItem{
			ID:             item.ID,
			AgentID:        item.AgentID,
			ToolInstanceID: item.ToolInstanceID,
			Active:         item.Active,
		})
	}
}

func (s *Server) removeFromBeltHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		item, ok := s.ownedItem(c)
		if !ok {
			return
		}
		if err := s.toolbeltService.RemoveFromBelt(c.Request.Context(), item.ID); err != nil {
			renderError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) setCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		item, ok := s.ownedItem(c)
		if !ok {
			return
		}

		var input types.SetCredentialInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cred, err := s.toolbeltService.SetCredential(c.Request.Context(), item.ID, &input)
		if err != nil {
			renderError(c, err)
			return
		}

		// The response carries the masked display id, never the secret.
		c.JSON(http.StatusOK, &types.SetCredentialResponse{
			ID:        cred.ID,
			Kind:      cred.Kind,
			DisplayID: cred.DisplayID,
			Status:    cred.Status,
		})
	}
}

func (s *Server) setCapabilityPermissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		item, ok := s.ownedItem(c)
		if !ok {
			return
		}

		var input types.SetCapabilityPermissionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		perm, err := s.toolbeltService.SetCapabilityPermission(item.ID, &input)
		if err != nil {
			renderError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"capability": perm.Capability,
			"allowed":    perm.Allowed,
		})
	}
}

// executeToolHandler is the execution entry point. Every request passes the
// authorization choke point before anything is relayed to a host agent.
func (s *Server) executeToolHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		item, ok := s.ownedItem(c)
		if !ok {
			return
		}

		var input types.ExecuteToolInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		ag := callingAgent(c)
		start := time.Now()

		inst, err := s.toolbeltService.CheckAuthorization(ag.ID, item.ToolInstanceID, input.Capability)
		if err != nil {
			s.metrics.RecordToolExecution(ctx, telemetry.ExecutionOutcomeDenied, time.Since(start))
			renderError(c, err)
			return
		}

		result, err := s.instanceService.Execute(ctx, inst, ag.ID, input.Capability, input.Payload)
		if err != nil {
			s.metrics.RecordToolExecution(ctx, telemetry.ExecutionOutcomeError, time.Since(start))
			renderError(c, err)
			return
		}

		s.metrics.RecordToolExecution(ctx, telemetry.ExecutionOutcomeSuccess, time.Since(start))
		c.JSON(http.StatusOK, &types.ExecuteToolResponse{
			RequestID: result.RequestID,
			Output:    result.Output,
		})
	}
}
