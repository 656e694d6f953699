package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/zapboard/whatsapp-inbox-api/pkg/router"
	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
)

// AdminAuth validates the X-Admin-Secret header for admin endpoints
func AdminAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminSecret := c.Get("X-Admin-Secret")
		if adminSecret == "" {
			return router.ResponseUnauthorized(c, "Missing X-Admin-Secret header")
		}

		if AdminSecretKey == "" {
			return router.ResponseInternalError(c, "Admin secret key not configured")
		}

		if subtle.ConstantTimeCompare([]byte(adminSecret), []byte(AdminSecretKey)) != 1 {
			return router.ResponseUnauthorized(c, "Invalid admin secret")
		}

		return c.Next()
	}
}

// APIKeyAuth validates the X-API-Key header and stores API key context
func APIKeyAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			return router.ResponseUnauthorized(c, "Missing X-API-Key header")
		}

		ctx := c.UserContext()
		if ctx == nil {
			ctx = context.Background()
		}

		record, err := storage.GetStore().GetAPIKeyByKey(ctx, apiKey)
		if err != nil {
			return router.ResponseUnauthorized(c, "Invalid API key")
		}

		if !record.IsActive {
			return router.ResponseUnauthorized(c, "API key is inactive")
		}

		c.Locals("client_id", record.ClientID)
		c.Locals("api_key_id", record.ID)

		return c.Next()
	}
}

// ClientAuth validates the JWT token from Authorization header
// Token format: "Bearer <jwt_token>"
// Claims are trusted after signature check; the backing API key is verified
// against the database so key deactivation revokes tokens immediately.
func ClientAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return router.ResponseUnauthorized(c, "Missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return router.ResponseUnauthorized(c, "Invalid Authorization header format. Use: Bearer <token>")
		}

		tokenString := parts[1]
		if tokenString == "" {
			return router.ResponseUnauthorized(c, "Missing token")
		}

		claims, err := ValidateClientToken(tokenString)
		if err != nil {
			return router.ResponseUnauthorized(c, "Invalid or expired token")
		}

		ctx := c.UserContext()
		if ctx == nil {
			ctx = context.Background()
		}
		record, err := storage.GetStore().GetAPIKeyByID(ctx, claims.APIKeyID)
		if err != nil || !record.IsActive {
			return router.ResponseUnauthorized(c, "Token has been revoked. Please request a new token.")
		}

		c.Locals("client_id", claims.ClientID)
		c.Locals("api_key_id", claims.APIKeyID)

		return c.Next()
	}
}
