package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/gin-gonic/gin"
)

// toolboxDTO converts a host record into its API representation. The bearer
// secret never appears here.
func toolboxDTO(h *model.HostEnvironment) *types.Toolbox {
	dto := &types.Toolbox{
		ID:           h.ID,
		Name:         h.Name,
		Owner:        h.Owner,
		Status:       h.Status,
		Address:      h.Address,
		AgentVersion: h.AgentVersion,
		StatusDetail: h.StatusDetail,
	}
	if h.LastHeartbeatAt != nil {
		dto.LastHeartbeat = h.LastHeartbeatAt.UTC().Format(time.RFC3339)
	}
	if len(h.Health) > 0 {
		dto.Health = json.RawMessage(h.Health)
	}
	return dto
}

func (s *Server) provisionToolboxHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input types.ProvisionToolboxInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		host, err := s.hostEnvService.Provision(callingAgent(c).Name, &input)
		if err != nil {
			renderError(c, err)
			return
		}

		// Provisioning continues in the background; the caller polls for
		// progress.
		c.JSON(http.StatusAccepted, &types.ProvisionToolboxResponse{
			ID:     host.ID,
			Status: host.Status,
		})
	}
}

func (s *Server) listToolboxesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hosts, err := s.hostEnvService.ListToolboxes(callingAgent(c).Name)
		if err != nil {
			renderError(c, err)
			return
		}

		resp := make([]*types.Toolbox, len(hosts))
		for i := range hosts {
			resp[i] = toolboxDTO(&hosts[i])
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) getToolboxHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		host, err := s.hostEnvService.GetToolbox(id)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, toolboxDTO(host))
	}
}

func (s *Server) deprovisionToolboxHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := s.hostEnvService.Deprovision(c.Request.Context(), id); err != nil {
			renderError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) listAuditEntriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		entries, err := s.brokerService.ListAuditEntries(id)
		if err != nil {
			renderError(c, err)
			return
		}

		resp := make([]*types.CredentialAuditEntry, len(entries))
		for i, e := range entries {
			resp[i] = &types.CredentialAuditEntry{
				ID:             e.ID,
				RequestID:      e.RequestID,
				ToolboxID:      e.ToolboxID,
				AgentID:        e.AgentID,
				ToolInstanceID: e.ToolInstanceID,
				Kind:           e.Kind,
				FetchedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
