package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/talka-ai/talka-backend/internal/config"
	"github.com/talka-ai/talka-backend/internal/handlers"
	"github.com/talka-ai/talka-backend/internal/middleware"
	"github.com/talka-ai/talka-backend/internal/services"
	"github.com/talka-ai/talka-backend/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, cfg *config.Config, store storage.Store, orchestrator *services.Orchestrator) {
	signupHandler := handlers.NewSignupHandler(orchestrator, store, cfg.Signup.AllowedOrigins)
	channelHandler := handlers.NewChannelHandler(store)
	appServiceHandler := handlers.NewAppServiceHandler(store)
	assistantHandler := handlers.NewAssistantHandler(store)

	app.Get("/health", handlers.HealthCheck)

	// All dashboard routes are tenant-scoped behind bearer auth
	api := app.Group("/api", middleware.RequireAuth(cfg.Auth.JWTSecret))

	// Embedded signup flow
	signup := api.Group("/signup")
	signup.Post("/start", signupHandler.StartSession)
	signup.Get("/session", signupHandler.GetSession)
	signup.Post("/consent", signupHandler.HandleConsentEvent)
	signup.Post("/code", signupHandler.SetCode)
	signup.Post("/exchange", signupHandler.ExchangeCode)
	signup.Post("/register", signupHandler.RegisterPhone)
	signup.Post("/subscribe", signupHandler.Subscribe)
	signup.Post("/phone-numbers/refresh", signupHandler.RefreshPhoneNumbers)
	signup.Post("/phone", signupHandler.ConfirmPhone)
	signup.Post("/channel/retry", signupHandler.RetryChannel)
	signup.Post("/assistant", signupHandler.SelectAssistant)
	signup.Post("/app-service/retry", signupHandler.RetryAppService)
	signup.Post("/sync/retry", signupHandler.RetrySync)
	signup.Post("/restart", signupHandler.Restart)

	// Provisioned resources
	channels := api.Group("/channels")
	channels.Get("/", channelHandler.List)
	channels.Get("/:id", channelHandler.Get)

	appServices := api.Group("/app-services")
	appServices.Get("/", appServiceHandler.List)
	appServices.Get("/:id", appServiceHandler.Get)

	assistants := api.Group("/assistants")
	assistants.Get("/", assistantHandler.List)
	assistants.Post("/", assistantHandler.Create)
}
