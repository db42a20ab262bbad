package handlers

import (
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/talka-ai/talka-backend/database"
)

// HealthCheck reports service and database status for monitoring
func HealthCheck(c *fiber.Ctx) error {
	status := "healthy"
	statusCode := fiber.StatusOK
	dbHealthy := true

	if os.Getenv("USE_MEMORY_STORE") != "true" && database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			status = "unhealthy"
			statusCode = fiber.StatusServiceUnavailable
			dbHealthy = false
		}
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status": status,
		"services": fiber.Map{
			"database": dbHealthy,
		},
	})
}
