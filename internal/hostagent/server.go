package hostagent

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/agentopia/toolbox/internal/apperr"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/agentopia/toolbox/pkg/version"
	"github.com/gin-gonic/gin"
)

// Server is the host agent's inbound command server. Only the control plane
// talks to it, authenticated by the shared system key.
type Server struct {
	addr      string
	systemKey string
	manager   *Manager
	router    *gin.Engine
}

func NewServer(addr, systemKey string, manager *Manager) *Server {
	s := &Server{addr: addr, systemKey: systemKey, manager: manager}
	s.router = s.setupRouter()
	return s
}

// Start runs the inbound server (blocking call).
func (s *Server) Start() error {
	return s.router.Run(s.addr)
}

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.Use(s.verifySystemKey())

	r.POST("/tools", s.deployHandler())
	r.POST("/tools/:name/start", s.startHandler())
	r.POST("/tools/:name/stop", s.stopHandler())
	r.DELETE("/tools/:name", s.removeHandler())
	r.POST("/tools/:name/execute", s.executeHandler())
	r.GET("/status", s.statusHandler())

	return r
}

func (s *Server) verifySystemKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": apperr.ErrAuthorization.Error()})
			c.Abort()
			return
		}
		key := strings.TrimPrefix(h, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.systemKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": apperr.ErrAuthorization.Error()})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) deployHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd types.DeployCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.manager.Deploy(cmd); err != nil {
			c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func (s *Server) startHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.manager.StartTool(c.Request.Context(), c.Param("name")); err != nil {
			c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusOK)
	}
}

func (s *Server) stopHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.manager.StopTool(c.Request.Context(), c.Param("name")); err != nil {
			c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusOK)
	}
}

func (s *Server) removeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.manager.RemoveTool(c.Request.Context(), c.Param("name")); err != nil {
			c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) executeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd types.ExecuteCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := s.manager.Execute(c.Request.Context(), c.Param("name"), cmd)
		if err != nil {
			c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Server) statusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, &types.AgentStatusResponse{
			Version:   version.GetVersion(),
			Instances: s.manager.StatusReports(),
		})
	}
}
