package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const organizationIDKey = "organizationID"

// OrgClaims are the claims the identity provider puts in dashboard tokens
type OrgClaims struct {
	OrganizationID string `json:"org_id"`
	jwt.RegisteredClaims
}

// RequireAuth verifies the bearer token and stores the organization id on the
// request context. Everything behind it is tenant-scoped.
func RequireAuth(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authentication token",
			})
		}

		claims := &OrgClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid || claims.OrganizationID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authentication token",
			})
		}

		c.Locals(organizationIDKey, claims.OrganizationID)
		return c.Next()
	}
}

// OrganizationID returns the authenticated organization id for the request
func OrganizationID(c *fiber.Ctx) string {
	if v, ok := c.Locals(organizationIDKey).(string); ok {
		return v
	}
	return ""
}
