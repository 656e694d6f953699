package internal

import (
	"github.com/gofiber/fiber/v2"
	swagger "github.com/gofiber/swagger"

	"github.com/zapboard/whatsapp-inbox-api/pkg/auth"
	"github.com/zapboard/whatsapp-inbox-api/pkg/router"

	ctlAdmin "github.com/zapboard/whatsapp-inbox-api/internal/admin"
	ctlAuth "github.com/zapboard/whatsapp-inbox-api/internal/auth"
	ctlChats "github.com/zapboard/whatsapp-inbox-api/internal/chats"
	ctlIndex "github.com/zapboard/whatsapp-inbox-api/internal/index"
	ctlMessages "github.com/zapboard/whatsapp-inbox-api/internal/messages"
	ctlMetaWebhook "github.com/zapboard/whatsapp-inbox-api/internal/metawebhook"
	ctlSessions "github.com/zapboard/whatsapp-inbox-api/internal/sessions"
	ctlWebhooks "github.com/zapboard/whatsapp-inbox-api/internal/webhooks"
)

func Routes(app *fiber.App) {
	// Configure OpenAPI / Swagger
	specURL := router.BaseURL + "/docs/swagger.json"
	swaggerHandler := swagger.New(swagger.Config{
		URL: specURL,
	})

	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	// Route for OpenAPI / Swagger
	// ---------------------------------------------
	app.Get(router.BaseURL+"/docs/swagger.json", func(c *fiber.Ctx) error {
		return c.SendFile("docs/swagger.json")
	})
	app.Get(router.BaseURL+"/docs/*", swaggerHandler)

	// ============================================================
	// ADMIN ROUTES (X-Admin-Secret authentication)
	// ============================================================
	adminMiddleware := auth.AdminAuth()

	app.Get(router.BaseURL+"/admin/stats", adminMiddleware, ctlAdmin.GetStats)
	app.Get(router.BaseURL+"/admin/health", adminMiddleware, ctlAdmin.GetHealth)

	// API Key Management
	app.Post(router.BaseURL+"/admin/api-keys", adminMiddleware, ctlAdmin.CreateAPIKey)
	app.Get(router.BaseURL+"/admin/api-keys", adminMiddleware, ctlAdmin.ListAPIKeys)
	app.Patch(router.BaseURL+"/admin/api-keys/:id", adminMiddleware, ctlAdmin.UpdateAPIKey)
	app.Delete(router.BaseURL+"/admin/api-keys/:id", adminMiddleware, ctlAdmin.DeleteAPIKey)

	// ============================================================
	// TOKEN ISSUANCE (No auth - uses API key in body)
	// ============================================================
	app.Post(router.BaseURL+"/auth/token", ctlAuth.Token)

	// ============================================================
	// META WEBHOOK (verify-token handshake, no other auth)
	// ============================================================
	app.Get(router.BaseURL+"/whatsapp/webhook", ctlMetaWebhook.Verify)
	app.Post(router.BaseURL+"/whatsapp/webhook", ctlMetaWebhook.Receive)

	// ============================================================
	// MESSAGE INGESTION (X-API-Key authentication)
	// ============================================================
	apiKeyMiddleware := auth.APIKeyAuth()
	app.Post(router.BaseURL+"/webhooks/messages", apiKeyMiddleware, ctlMessages.CreateMessage)
	app.Get(router.BaseURL+"/webhooks/messages", apiKeyMiddleware, ctlMessages.ListMessages)

	// ============================================================
	// CLIENT OPERATIONS (JWT Bearer token authentication)
	// ============================================================
	clientAuthMiddleware := auth.ClientAuth()

	// Session management
	app.Post(router.BaseURL+"/sessions", clientAuthMiddleware, ctlSessions.CreateSession)
	app.Get(router.BaseURL+"/sessions", clientAuthMiddleware, ctlSessions.ListSessions)
	app.Get(router.BaseURL+"/sessions/:id", clientAuthMiddleware, ctlSessions.GetSession)
	app.Delete(router.BaseURL+"/sessions/:id", clientAuthMiddleware, ctlSessions.DeleteSession)

	// Webhook registry
	app.Get(router.BaseURL+"/webhooks", clientAuthMiddleware, ctlWebhooks.ListWebhooks)
	app.Post(router.BaseURL+"/webhooks", clientAuthMiddleware, ctlWebhooks.CreateWebhook)
	app.Post(router.BaseURL+"/webhooks/stats/recalculate", clientAuthMiddleware, ctlWebhooks.RecalculateStats)
	app.Get(router.BaseURL+"/webhooks/:id", clientAuthMiddleware, ctlWebhooks.GetWebhook)
	app.Patch(router.BaseURL+"/webhooks/:id", clientAuthMiddleware, ctlWebhooks.UpdateWebhook)
	app.Delete(router.BaseURL+"/webhooks/:id", clientAuthMiddleware, ctlWebhooks.DeleteWebhook)
	app.Post(router.BaseURL+"/webhooks/:id/test", clientAuthMiddleware, ctlWebhooks.TestWebhook)

	// Evolution proxy (cached: aggregation over an upstream fetch)
	app.Get(router.BaseURL+"/evolution/chats", clientAuthMiddleware, router.HttpCacheInMemory(router.CacheTTLSeconds), ctlChats.GetChats)
}
