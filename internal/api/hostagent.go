package api

import (
	"net/http"

	"github.com/agentopia/toolbox/pkg/types"
	"github.com/gin-gonic/gin"
)

// heartbeatHandler ingests one heartbeat from an authenticated host agent.
func (s *Server) heartbeatHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.HeartbeatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// The reconciler re-authenticates by bearer secret so heartbeat
		// processing stays a single code path for all callers.
		host, err := s.reconciler.HandleHeartbeat(c.Request.Context(), bearerToken(c), &req)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": string(host.Status)})
	}
}

// fetchCredentialHandler resolves a credential for a single execution on the
// calling host.
func (s *Server) fetchCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.FetchCredentialRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := s.brokerService.FetchCredential(c.Request.Context(), callingToolbox(c), &req)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
