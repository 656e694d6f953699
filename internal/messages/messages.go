package messages

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/zapboard/whatsapp-inbox-api/internal/ingest"
	"github.com/zapboard/whatsapp-inbox-api/internal/types"
	"github.com/zapboard/whatsapp-inbox-api/pkg/log"
	"github.com/zapboard/whatsapp-inbox-api/pkg/router"
	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
	"github.com/zapboard/whatsapp-inbox-api/pkg/validation"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Pagination mirrors what dashboard polling expects: hasMore is true
// exactly when offset+limit still leaves rows behind.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// CreateMessage
// @Summary     Ingest Message
// @Description Score and store one inbound message
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       body body types.RequestCreateMessage true "Message"
// @Success     201
// @Failure     400
// @Failure     403
// @Failure     429
// @Router      /webhooks/messages [post]
func CreateMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	var req types.RequestCreateMessage
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}

	// The authenticated client owns the row regardless of what the body says.
	clientID := req.ClientID
	if v, ok := c.Locals("client_id").(string); ok && v != "" {
		if clientID != "" && clientID != v {
			return router.ResponseForbidden(c, "clientId does not match the authenticated client")
		}
		clientID = v
	}

	var missing []string
	if clientID == "" {
		missing = append(missing, "clientId")
	}
	if req.From == "" {
		missing = append(missing, "from")
	}
	if req.Message == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return router.ResponseBadRequest(c, "Missing required fields: "+strings.Join(missing, ", "))
	}

	if err := validation.ValidatePhone(req.From); err != nil {
		return router.ResponseBadRequest(c, "Invalid from: "+err.Error())
	}

	if !ingest.Allow(clientID) {
		return router.ResponseTooManyRequests(c, "Message ingestion rate limit exceeded")
	}

	result, err := ingest.Ingest(ctx, ingest.Input{
		ClientID:  clientID,
		From:      req.From,
		Message:   req.Message,
		Platform:  req.Platform,
		WebhookID: req.WebhookID,
	})
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	log.ClientOp(clientID, "message").Info("Message " + result.Message.ID + " scored " + result.Message.Sentiment)

	return router.ResponseCreatedWithData(c, "Message stored successfully", fiber.Map{
		"id":        result.Message.ID,
		"sentiment": result.Message.Sentiment,
		"score":     result.Sentiment.Score,
		"processed": result.Message.Processed,
	})
}

// ListMessages
// @Summary     List Messages
// @Description List stored messages for a client, newest first
// @Tags        Messages
// @Produce     json
// @Param       clientId query string true "Client ID"
// @Param       limit query int false "Page size (max 200)"
// @Param       offset query int false "Page offset"
// @Success     200
// @Failure     400
// @Router      /webhooks/messages [get]
func ListMessages(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	// Same ownership rule as ingestion: the authenticated client cannot page
	// through another tenant's messages by naming it in the query.
	clientID := c.Query("clientId")
	if v, ok := c.Locals("client_id").(string); ok && v != "" {
		if clientID != "" && clientID != v {
			return router.ResponseForbidden(c, "clientId does not match the authenticated client")
		}
		clientID = v
	}
	if clientID == "" {
		return router.ResponseBadRequest(c, "clientId is required")
	}

	limit := c.QueryInt("limit", defaultPageLimit)
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	messages, total, err := storage.GetStore().ListMessages(ctx, clientID, limit, offset)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to list messages: "+err.Error())
	}

	return router.ResponseSuccessWithData(c, "Messages retrieved successfully", fiber.Map{
		"messages": messages,
		"pagination": Pagination{
			Limit:   limit,
			Offset:  offset,
			Total:   total,
			HasMore: offset+limit < total,
		},
	})
}
