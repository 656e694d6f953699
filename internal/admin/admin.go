package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/zapboard/whatsapp-inbox-api/pkg/evolution"
	"github.com/zapboard/whatsapp-inbox-api/pkg/router"
	"github.com/zapboard/whatsapp-inbox-api/pkg/session"
	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
	"github.com/zapboard/whatsapp-inbox-api/pkg/wabridge"
)

var (
	tracker         *session.Tracker
	evolutionClient *evolution.Client
)

// Configure wires the tracker and the optional Evolution client for the
// stats and health endpoints.
func Configure(t *session.Tracker, e *evolution.Client) {
	tracker = t
	evolutionClient = e
}

type CreateAPIKeyRequest struct {
	ClientID   string `json:"client_id" form:"client_id"`
	ClientName string `json:"client_name" form:"client_name"`
	RateLimit  int    `json:"rate_limit_per_hour" form:"rate_limit_per_hour"`
}

type UpdateAPIKeyRequest struct {
	IsActive *bool `json:"is_active" form:"is_active"`
}

func parseAPIKeyID(idStr string) (int64, error) {
	return strconv.ParseInt(idStr, 10, 64)
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "zb_" + hex.EncodeToString(buf), nil
}

func maskKey(key string) string {
	if len(key) < 12 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

// GetStats
// @Summary     Server Stats
// @Description Message, webhook, and session counters (Admin only)
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200
// @Failure     401
// @Router      /admin/stats [get]
func GetStats(c *fiber.Ctx) error {
	totals, err := storage.GetStore().GetTotals(requestContext(c))
	if err != nil {
		return router.ResponseInternalError(c, "Failed to load totals: "+err.Error())
	}

	sessionCounts := map[session.Status]int{}
	if tracker != nil {
		sessionCounts = tracker.CountByStatus()
	}

	return router.ResponseSuccessWithData(c, "Stats retrieved successfully", fiber.Map{
		"messages":              totals.Messages,
		"webhooks":              totals.Webhooks,
		"api_keys":              totals.APIKeys,
		"messages_by_sentiment": totals.BySentiment,
		"sessions_by_status":    sessionCounts,
		"bridged_clients":       wabridge.ClientsLen(),
	})
}

// GetHealth
// @Summary     Health Check
// @Description Database and upstream reachability (Admin only)
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200
// @Router      /admin/health [get]
func GetHealth(c *fiber.Ctx) error {
	ctx := requestContext(c)

	dbOK := storage.GetStore().Ping(ctx) == nil

	evolutionOK := false
	evolutionConfigured := evolutionClient != nil
	if evolutionConfigured {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		evolutionOK = evolutionClient.Health(probeCtx)
		cancel()
	}

	return router.ResponseSuccessWithData(c, "Health retrieved successfully", fiber.Map{
		"database": dbOK,
		"evolution": fiber.Map{
			"configured": evolutionConfigured,
			"healthy":    evolutionOK,
		},
		"bridge_enabled": wabridge.Enabled(),
	})
}

// CreateAPIKey
// @Summary     Create API Key
// @Description Create a new API key for a client (Admin only)
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Param       body body CreateAPIKeyRequest true "API Key details"
// @Success     201
// @Failure     400
// @Failure     401
// @Router      /admin/api-keys [post]
func CreateAPIKey(c *fiber.Ctx) error {
	ctx := requestContext(c)

	var req CreateAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}
	if req.ClientID == "" {
		return router.ResponseBadRequest(c, "client_id is required")
	}
	if req.ClientName == "" {
		req.ClientName = req.ClientID
	}
	if req.RateLimit <= 0 {
		req.RateLimit = 1000
	}

	key, err := generateAPIKey()
	if err != nil {
		return router.ResponseInternalError(c, "Failed to generate API key")
	}

	record := storage.APIKey{
		Key:              key,
		ClientID:         req.ClientID,
		ClientName:       req.ClientName,
		RateLimitPerHour: req.RateLimit,
		IsActive:         true,
		CreatedAt:        time.Now(),
	}
	if err := storage.GetStore().CreateAPIKey(ctx, &record); err != nil {
		return router.ResponseInternalError(c, "Failed to create API key: "+err.Error())
	}

	// The full key is only ever returned here; list/get responses mask it.
	return router.ResponseCreatedWithData(c, "API key created successfully", fiber.Map{
		"id":                  record.ID,
		"api_key":             record.Key,
		"client_id":           record.ClientID,
		"client_name":         record.ClientName,
		"rate_limit_per_hour": record.RateLimitPerHour,
	})
}

// ListAPIKeys
// @Summary     List API Keys
// @Description List all API keys, masked (Admin only)
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200
// @Failure     401
// @Router      /admin/api-keys [get]
func ListAPIKeys(c *fiber.Ctx) error {
	keys, err := storage.GetStore().ListAPIKeys(requestContext(c))
	if err != nil {
		return router.ResponseInternalError(c, "Failed to list API keys: "+err.Error())
	}

	type maskedAPIKey struct {
		ID               int64  `json:"id"`
		APIKeyMasked     string `json:"api_key_masked"`
		ClientID         string `json:"client_id"`
		ClientName       string `json:"client_name"`
		RateLimitPerHour int    `json:"rate_limit_per_hour"`
		IsActive         bool   `json:"is_active"`
	}

	masked := make([]maskedAPIKey, 0, len(keys))
	for _, k := range keys {
		masked = append(masked, maskedAPIKey{
			ID:               k.ID,
			APIKeyMasked:     maskKey(k.Key),
			ClientID:         k.ClientID,
			ClientName:       k.ClientName,
			RateLimitPerHour: k.RateLimitPerHour,
			IsActive:         k.IsActive,
		})
	}

	return router.ResponseSuccessWithData(c, "API keys retrieved successfully", masked)
}

// UpdateAPIKey
// @Summary     Update API Key
// @Description Activate or deactivate an API key (Admin only)
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Param       id path int true "API Key ID"
// @Param       body body UpdateAPIKeyRequest true "Update details"
// @Success     200
// @Failure     400
// @Failure     404
// @Router      /admin/api-keys/{id} [patch]
func UpdateAPIKey(c *fiber.Ctx) error {
	ctx := requestContext(c)

	id, err := parseAPIKeyID(c.Params("id"))
	if err != nil {
		return router.ResponseBadRequest(c, "Invalid API key ID")
	}

	var req UpdateAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}
	if req.IsActive == nil {
		return router.ResponseBadRequest(c, "is_active is required")
	}

	if err := storage.GetStore().SetAPIKeyActive(ctx, id, *req.IsActive); err != nil {
		if err == storage.ErrNotFound {
			return router.ResponseNotFound(c, "API key not found")
		}
		return router.ResponseInternalError(c, "Failed to update API key: "+err.Error())
	}

	return router.ResponseSuccess(c, "API key updated successfully")
}

// DeleteAPIKey
// @Summary     Delete API Key
// @Description Delete an API key (Admin only)
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Param       id path int true "API Key ID"
// @Success     200
// @Failure     404
// @Router      /admin/api-keys/{id} [delete]
func DeleteAPIKey(c *fiber.Ctx) error {
	id, err := parseAPIKeyID(c.Params("id"))
	if err != nil {
		return router.ResponseBadRequest(c, "Invalid API key ID")
	}

	if err := storage.GetStore().DeleteAPIKey(requestContext(c), id); err != nil {
		if err == storage.ErrNotFound {
			return router.ResponseNotFound(c, "API key not found")
		}
		return router.ResponseInternalError(c, "Failed to delete API key: "+err.Error())
	}

	return router.ResponseSuccess(c, "API key deleted successfully")
}
