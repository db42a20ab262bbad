package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/talka-ai/talka-backend/internal/middleware"
	"github.com/talka-ai/talka-backend/internal/storage"
)

// AppServiceHandler serves the channel/assistant bindings for an organization
type AppServiceHandler struct {
	store storage.Store
}

// NewAppServiceHandler creates a new app service handler
func NewAppServiceHandler(store storage.Store) *AppServiceHandler {
	return &AppServiceHandler{store: store}
}

// List returns the organization's app services
func (h *AppServiceHandler) List(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	appServices, err := h.store.GetAppServicesByOrganization(orgID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch app services"})
	}
	return c.JSON(appServices)
}

// Get returns one app service by id
func (h *AppServiceHandler) Get(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	appService, err := h.store.GetAppService(c.Params("id"))
	if err != nil || appService.OrganizationID != orgID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "App service not found"})
	}
	return c.JSON(appService)
}
