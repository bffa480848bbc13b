package api

import (
	"net/http"
	"time"

	"github.com/agentopia/toolbox/pkg/types"
	"github.com/gin-gonic/gin"
)

func (s *Server) createAgentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ag, err := s.agentService.CreateAgent(input.Name)
		if err != nil {
			renderError(c, err)
			return
		}

		// The access token is shown exactly once.
		resp := &types.CreateAgentResponse{
			ID:          ag.ID,
			Name:        ag.Name,
			Role:        string(ag.Role),
			AccessToken: ag.AccessToken,
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func (s *Server) listAgentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		agents, err := s.agentService.ListAgents()
		if err != nil {
			renderError(c, err)
			return
		}

		resp := make([]*types.Agent, len(agents))
		for i, ag := range agents {
			resp[i] = &types.Agent{ID: ag.ID, Name: ag.Name, Role: ag.Role}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) deleteAgentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.agentService.DeleteAgent(c.Param("name")); err != nil {
			renderError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) whoAmIHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ag := callingAgent(c)
		c.JSON(http.StatusOK, &types.Agent{ID: ag.ID, Name: ag.Name, Role: ag.Role})
	}
}

func (s *Server) grantToolboxAccessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ag, err := s.agentService.GetAgentByName(c.Param("name"))
		if err != nil {
			renderError(c, err)
			return
		}

		var input types.GrantToolboxAccessInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		grant, err := s.toolbeltService.GrantHostAccess(ag.ID, input.ToolboxID)
		if err != nil {
			renderError(c, err)
			return
		}

		c.JSON(http.StatusCreated, &types.ToolboxAccessGrant{
			ID:        grant.ID,
			AgentID:   grant.AgentID,
			ToolboxID: grant.ToolboxID,
			GrantedAt: grant.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) revokeToolboxAccessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ag, err := s.agentService.GetAgentByName(c.Param("name"))
		if err != nil {
			renderError(c, err)
			return
		}
		toolboxID, ok := idParam(c, "toolbox_id")
		if !ok {
			return
		}

		if err := s.toolbeltService.RevokeHostAccess(c.Request.Context(), ag.ID, toolboxID); err != nil {
			renderError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
