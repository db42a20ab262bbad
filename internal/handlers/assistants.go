package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/talka-ai/talka-backend/internal/middleware"
	"github.com/talka-ai/talka-backend/internal/models"
	"github.com/talka-ai/talka-backend/internal/storage"
)

// AssistantHandler serves the organization's assistants. Signup fetches this
// list when binding a channel; creation belongs to the assistant builder.
type AssistantHandler struct {
	store storage.Store
}

// NewAssistantHandler creates a new assistant handler
func NewAssistantHandler(store storage.Store) *AssistantHandler {
	return &AssistantHandler{store: store}
}

// List returns the organization's assistants
func (h *AssistantHandler) List(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	assistants, err := h.store.GetAssistantsByOrganization(orgID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch assistants"})
	}
	return c.JSON(assistants)
}

// Create registers a new assistant for the organization
func (h *AssistantHandler) Create(c *fiber.Ctx) error {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if body.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Assistant name is required"})
	}

	orgID := middleware.OrganizationID(c)
	assistant, err := h.store.CreateAssistant(&models.Assistant{
		OrganizationID: orgID,
		Name:           body.Name,
		Description:    body.Description,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create assistant"})
	}
	return c.Status(fiber.StatusCreated).JSON(assistant)
}
