package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/talka-ai/talka-backend/internal/middleware"
	"github.com/talka-ai/talka-backend/internal/storage"
)

// ChannelHandler serves the provisioned channels for an organization
type ChannelHandler struct {
	store storage.Store
}

// NewChannelHandler creates a new channel handler
func NewChannelHandler(store storage.Store) *ChannelHandler {
	return &ChannelHandler{store: store}
}

// List returns the organization's channels
func (h *ChannelHandler) List(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	channels, err := h.store.GetChannelsByOrganization(orgID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch channels"})
	}
	return c.JSON(channels)
}

// Get returns one channel by id
func (h *ChannelHandler) Get(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	channel, err := h.store.GetChannel(c.Params("id"))
	if err != nil || channel.OrganizationID != orgID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Channel not found"})
	}
	return c.JSON(channel)
}
