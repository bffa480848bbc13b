package api

import (
	"net/http"
	"time"

	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/gin-gonic/gin"
)

func toolInstanceDTO(i *model.ToolInstance) *types.ToolInstance {
	dto := &types.ToolInstance{
		ID:           i.ID,
		ToolboxID:    i.ToolboxID,
		CatalogID:    i.CatalogID,
		Name:         i.Name,
		Status:       i.Status,
		Port:         i.Port,
		StatusDetail: i.StatusDetail,
	}
	if i.LastHeartbeatAt != nil {
		dto.LastHeartbeat = i.LastHeartbeatAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func (s *Server) deployToolInstanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		toolboxID, ok := idParam(c, "id")
		if !ok {
			return
		}

		var input types.DeployToolInstanceInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		inst, err := s.instanceService.Deploy(c.Request.Context(), toolboxID, &input)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, toolInstanceDTO(inst))
	}
}

func (s *Server) listToolInstancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		toolboxID, ok := idParam(c, "id")
		if !ok {
			return
		}
		instances, err := s.instanceService.ListInstances(toolboxID)
		if err != nil {
			renderError(c, err)
			return
		}

		resp := make([]*types.ToolInstance, len(instances))
		for i := range instances {
			resp[i] = toolInstanceDTO(&instances[i])
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) startToolInstanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := s.instanceService.Start(c.Request.Context(), id); err != nil {
			renderError(c, err)
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func (s *Server) stopToolInstanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := s.instanceService.Stop(c.Request.Context(), id); err != nil {
			renderError(c, err)
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func (s *Server) removeToolInstanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := s.instanceService.Remove(c.Request.Context(), id); err != nil {
			renderError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
