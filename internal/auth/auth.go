package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/zapboard/whatsapp-inbox-api/internal/types"
	pkgAuth "github.com/zapboard/whatsapp-inbox-api/pkg/auth"
	"github.com/zapboard/whatsapp-inbox-api/pkg/env"
	"github.com/zapboard/whatsapp-inbox-api/pkg/log"
	"github.com/zapboard/whatsapp-inbox-api/pkg/router"
	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
)

// Token
// @Summary     Issue Client Token
// @Description Exchange an API key for a JWT bound to the client
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body body types.RequestToken true "Credentials"
// @Success     200
// @Failure     400
// @Failure     401
// @Router      /auth/token [post]
func Token(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	var req types.RequestToken
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}
	if req.ClientID == "" || req.APIKey == "" {
		return router.ResponseBadRequest(c, "client_id and api_key are required")
	}

	record, err := storage.GetStore().GetAPIKeyByKey(ctx, req.APIKey)
	if err != nil || !record.IsActive || record.ClientID != req.ClientID {
		return router.ResponseUnauthorized(c, "Invalid credentials")
	}

	ttl := env.GetEnvDurationOrDefault("JWT_TOKEN_TTL", 24*time.Hour)
	token, err := pkgAuth.GenerateClientToken(record.ClientID, record.ID, ttl)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to generate token")
	}

	log.ClientOp(record.ClientID, "token").Info("Client token issued")

	return router.ResponseSuccessWithData(c, "Token issued successfully", fiber.Map{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(ttl.Seconds()),
	})
}
