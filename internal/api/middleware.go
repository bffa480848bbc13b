package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/gin-gonic/gin"
)

const (
	ctxKeyAgent   = "agent"
	ctxKeyToolbox = "toolbox"
)

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// renderError maps a domain error to its HTTP status and writes the response.
func renderError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
}

// verifyAgentAuth authenticates API requests by agent access token.
func (s *Server) verifyAgentAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ag, err := s.agentService.GetAgentByAccessToken(bearerToken(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": apperr.ErrAuthorization.Error()})
			c.Abort()
			return
		}
		c.Set(ctxKeyAgent, ag)
		c.Next()
	}
}

// requireAdminAgent restricts an endpoint to admin principals.
func (s *Server) requireAdminAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		ag := callingAgent(c)
		if ag == nil || ag.Role != types.AgentRoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": apperr.ErrAuthorization.Error()})
			c.Abort()
			return
		}
		c.Next()
	}
}

// verifyHostAgentAuth authenticates host agent requests by per-host bearer
// secret.
func (s *Server) verifyHostAgentAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, err := s.hostEnvService.GetToolboxByBearerSecret(bearerToken(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": apperr.ErrAuthorization.Error()})
			c.Abort()
			return
		}
		c.Set(ctxKeyToolbox, host)
		c.Next()
	}
}

// callingAgent returns the authenticated agent set by verifyAgentAuth.
func callingAgent(c *gin.Context) *model.Agent {
	v, ok := c.Get(ctxKeyAgent)
	if !ok {
		return nil
	}
	ag, _ := v.(*model.Agent)
	return ag
}

// callingToolbox returns the authenticated host set by verifyHostAgentAuth.
func callingToolbox(c *gin.Context) *model.HostEnvironment {
	v, ok := c.Get(ctxKeyToolbox)
	if !ok {
		return nil
	}
	host, _ := v.(*model.HostEnvironment)
	return host
}

// idParam parses a numeric path parameter.
func idParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
