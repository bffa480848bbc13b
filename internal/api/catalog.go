package api

import (
	"net/http"

	"github.com/agentopia/toolbox/internal/model"
	"github.com/agentopia/toolbox/pkg/types"
	"github.com/gin-gonic/gin"
)

// catalogEntryDTO converts a catalog model into its API representation.
func catalogEntryDTO(e *model.ToolCatalogEntry) (*types.ToolCatalogEntry, error) {
	slots, err := e.GetSecretSlots()
	if err != nil {
		return nil, err
	}
	capabilities, err := e.GetCapabilities()
	if err != nil {
		return nil, err
	}
	return &types.ToolCatalogEntry{
		ID:           e.ID,
		Name:         e.Name,
		Image:        e.Image,
		SecretSlots:  slots,
		Capabilities: capabilities,
		Enabled:      e.Enabled,
	}, nil
}

func (s *Server) createCatalogEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input types.CreateCatalogEntryInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		entry, err := s.catalogService.CreateEntry(&input)
		if err != nil {
			renderError(c, err)
			return
		}

		resp, err := catalogEntryDTO(entry)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func (s *Server) listCatalogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := s.catalogService.ListEntries()
		if err != nil {
			renderError(c, err)
			return
		}

		resp := make([]*types.ToolCatalogEntry, 0, len(entries))
		for i := range entries {
			dto, err := catalogEntryDTO(&entries[i])
			if err != nil {
				renderError(c, err)
				return
			}
			resp = append(resp, dto)
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) setCatalogEnabledHandler(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := s.catalogService.GetEntryByName(c.Param("name"))
		if err != nil {
			renderError(c, err)
			return
		}
		if err := s.catalogService.SetEnabled(entry.ID, enabled); err != nil {
			renderError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) deleteCatalogEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := s.catalogService.GetEntryByName(c.Param("name"))
		if err != nil {
			renderError(c, err)
			return
		}
		if err := s.catalogService.DeleteEntry(entry.ID); err != nil {
			renderError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
