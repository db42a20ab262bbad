package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/talka-ai/talka-backend/internal/middleware"
	"github.com/talka-ai/talka-backend/internal/services"
	"github.com/talka-ai/talka-backend/internal/storage"
)

// SignupHandler exposes the embedded-signup flow to the dashboard. Every
// endpoint is one user-visible action or retry control; the orchestrator owns
// all sequencing.
type SignupHandler struct {
	orchestrator   *services.Orchestrator
	store          storage.Store
	allowedOrigins map[string]bool
}

// NewSignupHandler creates a new signup handler
func NewSignupHandler(orchestrator *services.Orchestrator, store storage.Store, allowedOrigins []string) *SignupHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &SignupHandler{
		orchestrator:   orchestrator,
		store:          store,
		allowedOrigins: origins,
	}
}

// StartSession creates (or returns) the organization's signup session
func (h *SignupHandler) StartSession(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	session := h.orchestrator.Start(orgID)
	return c.JSON(session)
}

// GetSession returns the current session for UI display
func (h *SignupHandler) GetSession(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	session, err := h.orchestrator.Session(orgID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(session)
}

// HandleConsentEvent receives the message the OAuth consent widget posted.
// Messages from unknown origins are dropped without comment; so are payloads
// that do not parse.
func (h *SignupHandler) HandleConsentEvent(c *fiber.Ctx) error {
	origin := c.Get("Origin")
	if !h.allowedOrigins[origin] {
		log.Printf("Dropped consent event from unlisted origin %q", origin)
		return c.SendStatus(fiber.StatusNoContent)
	}

	var event services.ConsentEvent
	if err := c.BodyParser(&event); err != nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	orgID := middleware.OrganizationID(c)
	if err := h.orchestrator.HandleConsentEvent(orgID, event); err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, orgID)
}

// SetCode records the grant code reported by the widget
func (h *SignupHandler) SetCode(c *fiber.Ctx) error {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	orgID := middleware.OrganizationID(c)
	if err := h.orchestrator.SetGrantCode(orgID, body.Code); err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, orgID)
}

// ExchangeCode trades the grant code for an access token
func (h *SignupHandler) ExchangeCode(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	if err := h.orchestrator.ExchangeCode(c.Context(), orgID); err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, orgID)
}

// RegisterPhone registers a fresh number with the submitted PIN
func (h *SignupHandler) RegisterPhone(c *fiber.Ctx) error {
	var body struct {
		PIN string `json:"pin"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	orgID := middleware.OrganizationID(c)
	if err := h.orchestrator.RegisterPhone(c.Context(), orgID, body.PIN); err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, orgID)
}

// Subscribe subscribes the app to the business account's event feed
func (h *SignupHandler) Subscribe(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	if err := h.orchestrator.Subscribe(c.Context(), orgID); err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, orgID)
}

// RefreshPhoneNumbers retries the phone number listing
func (h *SignupHandler) RefreshPhoneNumbers(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	if err := h.orchestrator.FetchPhoneNumbers(c.Context(), orgID); err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, orgID)
}

// ConfirmPhone stores the user's phone number choice
func (h *SignupHandler) ConfirmPhone(c *fiber.Ctx) error {
	var body struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	orgID := middleware.OrganizationID(c)
	if err := h.orchestrator.ConfirmPhone(c.Context(), orgID, body.PhoneNumber); err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, orgID)
}

// RetryChannel retries backend channel creation
func (h *SignupHandler) RetryChannel(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	if err := h.orchestrator.CreateChannel(c.Context(), orgID); err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, orgID)
}

// SelectAssistant binds the chosen assistant
func (h *SignupHandler) SelectAssistant(c *fiber.Ctx) error {
	var body struct {
		AssistantID string `json:"assistant_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	orgID := middleware.OrganizationID(c)

	// Selecting is pointless with no assistants to pick from; point the user
	// at the assistant builder instead of offering a retry.
	assistants, err := h.store.GetAssistantsByOrganization(orgID)
	if err == nil && len(assistants) == 0 {
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{
			"error": "No assistants found. Create an assistant first.",
		})
	}

	if err := h.orchestrator.SelectAssistant(c.Context(), orgID, body.AssistantID); err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, orgID)
}

// RetryAppService retries app service creation
func (h *SignupHandler) RetryAppService(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	if err := h.orchestrator.CreateAppService(c.Context(), orgID); err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, orgID)
}

// RetrySync re-issues one sync job's initiation call
func (h *SignupHandler) RetrySync(c *fiber.Ctx) error {
	var body struct {
		Job string `json:"job"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	orgID := middleware.OrganizationID(c)
	if err := h.orchestrator.RetrySync(c.Context(), orgID, services.SyncJobType(body.Job)); err != nil {
		return respondError(c, err)
	}
	return h.sessionResponse(c, orgID)
}

// Restart discards the session ("Start Again")
func (h *SignupHandler) Restart(c *fiber.Ctx) error {
	orgID := middleware.OrganizationID(c)
	if err := h.orchestrator.Restart(orgID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "restarted"})
}

func (h *SignupHandler) sessionResponse(c *fiber.Ctx, orgID string) error {
	session, err := h.orchestrator.Session(orgID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(session)
}

// respondError maps orchestrator errors onto HTTP statuses. External-call
// failures keep the session in place, so the body carries the session too.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadGateway
	switch {
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrOperationInFlight):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrInvalidPIN),
		errors.Is(err, services.ErrPINNotRequired),
		errors.Is(err, services.ErrPhoneNotOffered),
		errors.Is(err, services.ErrSyncNotStarted):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrMissingSessionData), errors.Is(err, services.ErrNoPhoneNumbers):
		status = fiber.StatusPreconditionFailed
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
