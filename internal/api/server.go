// Package api provides the control plane's HTTP API: admin and agent
// endpoints under /api/v0, and the host agent endpoints under /hostagent.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentopia/toolbox/internal/service/agent"
	"github.com/agentopia/toolbox/internal/service/broker"
	"github.com/agentopia/toolbox/internal/service/catalog"
	"github.com/agentopia/toolbox/internal/service/hostenv"
	"github.com/agentopia/toolbox/internal/service/instance"
	"github.com/agentopia/toolbox/internal/service/reconcile"
	"github.com/agentopia/toolbox/internal/service/toolbelt"
	"github.com/agentopia/toolbox/internal/telemetry"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/agentopia/toolbox/pkg/version"
)

const (
	V0PathPrefix    = "/v0"
	V0ApiPathPrefix = "/api" + V0PathPrefix

	HostAgentPathPrefix = "/hostagent"
)

type ServerOptions struct {
	// Port is the HTTP port to bind the server to
	Port string

	AgentService    *agent.AgentService
	CatalogService  *catalog.CatalogService
	HostEnvService  *hostenv.HostEnvService
	InstanceService *instance.InstanceService
	ToolbeltService *toolbelt.ToolbeltService
	BrokerService   *broker.BrokerService
	Reconciler      *reconcile.Reconciler

	OtelProviders *telemetry.Providers
	Metrics       telemetry.CustomMetrics
}

// Server is the control plane HTTP server.
type Server struct {
	port   string
	router *gin.Engine

	agentService    *agent.AgentService
	catalogService  *catalog.CatalogService
	hostEnvService  *hostenv.HostEnvService
	instanceService *instance.InstanceService
	toolbeltService *toolbelt.ToolbeltService
	brokerService   *broker.BrokerService
	reconciler      *reconcile.Reconciler

	otelProviders *telemetry.Providers
	metrics       telemetry.CustomMetrics
}

// NewServer initializes a new Gin server for the Toolbox control plane.
func NewServer(opts *ServerOptions) (*Server, error) {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopCustomMetrics()
	}
	s := &Server{
		port:            opts.Port,
		agentService:    opts.AgentService,
		catalogService:  opts.CatalogService,
		hostEnvService:  opts.HostEnvService,
		instanceService: opts.InstanceService,
		toolbeltService: opts.ToolbeltService,
		brokerService:   opts.BrokerService,
		reconciler:      opts.Reconciler,
		otelProviders:   opts.OtelProviders,
		metrics:         metrics,
	}

	// Set up the router after the server is fully initialized
	r, err := s.setupRouter()
	if err != nil {
		return nil, err
	}
	s.router = r

	return s, nil
}

// Start runs the Gin server (blocking call)
func (s *Server) Start() error {
	if err := s.router.Run(":" + s.port); err != nil {
		return fmt.Errorf("failed to run the server: %w", err)
	}
	return nil
}

// setupRouter sets up the Gin router with the API and host agent endpoints.
func (s *Server) setupRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// if otel is enabled, expose the prometheus metrics endpoint
	if s.otelProviders != nil && s.otelProviders.IsEnabled() {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET(
		"/health",
		func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok"})
		},
	)

	r.GET(
		"/metadata",
		func(c *gin.Context) {
			m := &types.ServerMetadata{
				Version: version.GetVersion(),
			}
			c.JSON(http.StatusOK, m)
		},
	)

	// Endpoints called by host agents, authenticated by per-host bearer secret.
	hostAgentAPI := r.Group(HostAgentPathPrefix, s.verifyHostAgentAuth())
	{
		hostAgentAPI.POST("/heartbeat", s.heartbeatHandler())
		hostAgentAPI.POST("/fetch-credential", s.fetchCredentialHandler())
	}

	apiV0 := r.Group(V0ApiPathPrefix, s.verifyAgentAuth())

	// endpoints accessible by any authenticated agent
	agentAPI := apiV0.Group("/")
	{
		agentAPI.GET("/agents/whoami", s.whoAmIHandler())

		agentAPI.GET("/catalog", s.listCatalogHandler())

		agentAPI.GET("/toolbelt", s.listToolbeltHandler())
		agentAPI.POST("/toolbelt", s.addToBeltHandler())
		agentAPI.DELETE("/toolbelt/:id", s.removeFromBeltHandler())
		agentAPI.PUT("/toolbelt/:id/credential", s.setCredentialHandler())
		agentAPI.PUT("/toolbelt/:id/permissions", s.setCapabilityPermissionHandler())
		agentAPI.POST("/toolbelt/:id/execute", s.executeToolHandler())
	}

	// endpoints only accessible by an admin principal
	adminAPI := apiV0.Group("/", s.requireAdminAgent())
	{
		adminAPI.POST("/agents", s.createAgentHandler())
		adminAPI.GET("/agents", s.listAgentsHandler())
		adminAPI.DELETE("/agents/:name", s.deleteAgentHandler())

		adminAPI.POST("/agents/:name/grants", s.grantToolboxAccessHandler())
		adminAPI.DELETE("/agents/:name/grants/:toolbox_id", s.revokeToolboxAccessHandler())

		adminAPI.POST("/catalog", s.createCatalogEntryHandler())
		adminAPI.POST("/catalog/:name/enable", s.setCatalogEnabledHandler(true))
		adminAPI.POST("/catalog/:name/disable", s.setCatalogEnabledHandler(false))
		adminAPI.DELETE("/catalog/:name", s.deleteCatalogEntryHandler())

		adminAPI.POST("/toolboxes", s.provisionToolboxHandler())
		adminAPI.GET("/toolboxes", s.listToolboxesHandler())
		adminAPI.GET("/toolboxes/:id", s.getToolboxHandler())
		adminAPI.DELETE("/toolboxes/:id", s.deprovisionToolboxHandler())
		adminAPI.GET("/toolboxes/:id/audit", s.listAuditEntriesHandler())

		adminAPI.POST("/toolboxes/:id/tools", s.deployToolInstanceHandler())
		adminAPI.GET("/toolboxes/:id/tools", s.listToolInstancesHandler())
		adminAPI.POST("/tools/:id/start", s.startToolInstanceHandler())
		adminAPI.POST("/tools/:id/stop", s.stopToolInstanceHandler())
		adminAPI.DELETE("/tools/:id", s.removeToolInstanceHandler())
	}

	return r, nil
}
