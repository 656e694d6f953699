package webhooks

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zapboard/whatsapp-inbox-api/internal/types"
	"github.com/zapboard/whatsapp-inbox-api/internal/webhook"
	"github.com/zapboard/whatsapp-inbox-api/pkg/log"
	"github.com/zapboard/whatsapp-inbox-api/pkg/router"
	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
)

const recalculateConcurrency = 4

var engine *webhook.Engine

// Configure wires the outbound delivery engine for the test-fire endpoint.
func Configure(e *webhook.Engine) {
	engine = e
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

func clientID(c *fiber.Ctx) string {
	if v, ok := c.Locals("client_id").(string); ok {
		return v
	}
	return ""
}

// CreateWebhook
// @Summary     Register Webhook
// @Description Register an integration; with a URL it also receives signed event posts
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       body body types.RequestCreateWebhook true "Webhook details"
// @Success     201
// @Failure     400
// @Router      /webhooks [post]
func CreateWebhook(c *fiber.Ctx) error {
	ctx := requestContext(c)

	var req types.RequestCreateWebhook
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}
	if req.Name == "" {
		return router.ResponseBadRequest(c, "name is required")
	}
	if req.Platform == "" {
		req.Platform = "custom"
	}
	if req.URL != "" {
		if err := webhook.ValidateDeliveryURL(req.URL); err != nil {
			return router.ResponseBadRequest(c, "Invalid delivery URL: "+err.Error())
		}
	}

	w := storage.Webhook{
		ID:        "wh_" + uuid.NewString(),
		ClientID:  clientID(c),
		Name:      req.Name,
		Platform:  req.Platform,
		URL:       req.URL,
		Secret:    req.Secret,
		Events:    req.Events,
		Status:    "active",
		CreatedAt: time.Now(),
	}
	if err := storage.GetStore().CreateWebhook(ctx, &w); err != nil {
		return router.ResponseInternalError(c, "Failed to create webhook: "+err.Error())
	}

	log.ClientOp(w.ClientID, "webhook_create").Info("Webhook " + w.ID + " registered")

	return router.ResponseCreatedWithData(c, "Webhook registered successfully", w)
}

// ListWebhooks
// @Summary     List Webhooks
// @Description List the client's registered webhooks
// @Tags        Webhooks
// @Produce     json
// @Success     200
// @Router      /webhooks [get]
func ListWebhooks(c *fiber.Ctx) error {
	webhooks, err := storage.GetStore().ListWebhooks(requestContext(c), clientID(c))
	if err != nil {
		return router.ResponseInternalError(c, "Failed to list webhooks: "+err.Error())
	}
	return router.ResponseSuccessWithData(c, "Webhooks retrieved successfully", webhooks)
}

// GetWebhook
// @Summary     Get Webhook
// @Description Get one webhook with its recent delivery log
// @Tags        Webhooks
// @Produce     json
// @Param       id path string true "Webhook ID"
// @Success     200
// @Failure     404
// @Router      /webhooks/{id} [get]
func GetWebhook(c *fiber.Ctx) error {
	ctx := requestContext(c)

	w, err := storage.GetStore().GetWebhook(ctx, c.Params("id"), clientID(c))
	if err != nil {
		return router.ResponseNotFound(c, "Webhook not found")
	}

	logs, err := storage.GetStore().GetDeliveryLogs(ctx, w.ID, 20)
	if err != nil {
		logs = []storage.DeliveryLog{}
	}

	return router.ResponseSuccessWithData(c, "Webhook retrieved successfully", fiber.Map{
		"webhook":    w,
		"deliveries": logs,
	})
}

// UpdateWebhook
// @Summary     Update Webhook
// @Description Update a webhook registration
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       id path string true "Webhook ID"
// @Param       body body types.RequestUpdateWebhook true "Fields to update"
// @Success     200
// @Failure     400
// @Failure     404
// @Router      /webhooks/{id} [patch]
func UpdateWebhook(c *fiber.Ctx) error {
	ctx := requestContext(c)

	existing, err := storage.GetStore().GetWebhook(ctx, c.Params("id"), clientID(c))
	if err != nil {
		return router.ResponseNotFound(c, "Webhook not found")
	}

	var req types.RequestUpdateWebhook
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Platform != "" {
		existing.Platform = req.Platform
	}
	if req.URL != "" {
		if err := webhook.ValidateDeliveryURL(req.URL); err != nil {
			return router.ResponseBadRequest(c, "Invalid delivery URL: "+err.Error())
		}
		existing.URL = req.URL
	}
	if req.Events != nil {
		existing.Events = req.Events
	}
	if req.Status != "" {
		if req.Status != "active" && req.Status != "paused" {
			return router.ResponseBadRequest(c, "status must be active or paused")
		}
		existing.Status = req.Status
	}

	if err := storage.GetStore().UpdateWebhook(ctx, existing); err != nil {
		return router.ResponseInternalError(c, "Failed to update webhook: "+err.Error())
	}

	return router.ResponseSuccessWithData(c, "Webhook updated successfully", existing)
}

// DeleteWebhook
// @Summary     Delete Webhook
// @Description Remove a webhook registration
// @Tags        Webhooks
// @Produce     json
// @Param       id path string true "Webhook ID"
// @Success     200
// @Failure     404
// @Router      /webhooks/{id} [delete]
func DeleteWebhook(c *fiber.Ctx) error {
	err := storage.GetStore().DeleteWebhook(requestContext(c), c.Params("id"), clientID(c))
	if err == storage.ErrNotFound {
		return router.ResponseNotFound(c, "Webhook not found")
	}
	if err != nil {
		return router.ResponseInternalError(c, "Failed to delete webhook: "+err.Error())
	}
	return router.ResponseSuccess(c, "Webhook deleted successfully")
}

// TestWebhook
// @Summary     Test Webhook
// @Description Queue a test.ping delivery to the webhook URL
// @Tags        Webhooks
// @Produce     json
// @Param       id path string true "Webhook ID"
// @Success     200
// @Failure     400
// @Failure     404
// @Router      /webhooks/{id}/test [post]
func TestWebhook(c *fiber.Ctx) error {
	w, err := storage.GetStore().GetWebhook(requestContext(c), c.Params("id"), clientID(c))
	if err != nil {
		return router.ResponseNotFound(c, "Webhook not found")
	}
	if engine == nil {
		return router.ResponseInternalError(c, "Delivery engine is not running")
	}

	err = engine.DeliverTo(*w, webhook.Event{
		EventType: webhook.EventTestPing,
		ClientID:  w.ClientID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"webhook_id": w.ID,
		},
	})
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	return router.ResponseSuccess(c, "Test delivery queued")
}

type recalcResult struct {
	WebhookID    string `json:"webhook_id"`
	MessageCount int64  `json:"message_count"`
	Error        string `json:"error,omitempty"`
}

// RecalculateStats
// @Summary     Recalculate Webhook Stats
// @Description Recompute message_count and last_received per webhook from stored messages
// @Tags        Webhooks
// @Produce     json
// @Success     200
// @Router      /webhooks/stats/recalculate [post]
func RecalculateStats(c *fiber.Ctx) error {
	ctx := requestContext(c)
	store := storage.GetStore()

	webhooks, err := store.ListWebhooks(ctx, clientID(c))
	if err != nil {
		return router.ResponseInternalError(c, "Failed to list webhooks: "+err.Error())
	}

	results := make([]recalcResult, len(webhooks))

	// No global transaction: each webhook is recomputed independently and
	// failures are reported per row instead of rolling back the batch.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recalculateConcurrency)
	for i, w := range webhooks {
		g.Go(func() error {
			count, last, err := store.MessageStats(gctx, w.ID)
			if err != nil {
				results[i] = recalcResult{WebhookID: w.ID, Error: err.Error()}
				return nil
			}
			if err := store.SetWebhookStats(gctx, w.ID, count, last); err != nil {
				results[i] = recalcResult{WebhookID: w.ID, Error: err.Error()}
				return nil
			}
			results[i] = recalcResult{WebhookID: w.ID, MessageCount: count}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	log.ClientOp(clientID(c), "stats_recalculate").Info("Recalculated webhook stats")

	return router.ResponseSuccessWithData(c, "Webhook stats recalculated", fiber.Map{
		"recalculated": len(results) - failed,
		"failed":       failed,
		"results":      results,
	})
}
