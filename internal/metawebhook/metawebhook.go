package metawebhook

import (
	"context"
	"crypto/subtle"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/zapboard/whatsapp-inbox-api/internal/ingest"
	"github.com/zapboard/whatsapp-inbox-api/pkg/env"
	"github.com/zapboard/whatsapp-inbox-api/pkg/log"
	"github.com/zapboard/whatsapp-inbox-api/pkg/router"
)

// Payload follows the Meta Cloud API webhook envelope; only text messages
// are ingested, everything else is acknowledged and dropped.
type Payload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Verify
// @Summary     Meta Webhook Verification
// @Description Answer the hub.challenge handshake
// @Tags        Meta
// @Produce     plain
// @Param       hub.mode query string true "subscribe"
// @Param       hub.verify_token query string true "Shared verify token"
// @Param       hub.challenge query string true "Challenge to echo"
// @Success     200
// @Failure     403
// @Router      /whatsapp/webhook [get]
func Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	verifyToken, _ := env.GetEnvString("WHATSAPP_VERIFY_TOKEN")
	if verifyToken == "" {
		return router.ResponseInternalError(c, "Verify token not configured")
	}

	if mode == "subscribe" && subtle.ConstantTimeCompare([]byte(token), []byte(verifyToken)) == 1 {
		log.Print(c).Info("Meta webhook verified")
		return c.Status(fiber.StatusOK).SendString(challenge)
	}

	return router.ResponseForbidden(c, "Verification failed")
}

// Receive
// @Summary     Meta Webhook Ingestion
// @Description Ingest text messages delivered by the Meta Cloud API
// @Tags        Meta
// @Accept      json
// @Produce     json
// @Success     200
// @Failure     400
// @Router      /whatsapp/webhook [post]
func Receive(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	var payload Payload
	if err := c.BodyParser(&payload); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}

	defaultClientID := env.GetEnvStringOrDefault("META_DEFAULT_CLIENT_ID", "meta")

	ingested := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			clientID := change.Value.Metadata.PhoneNumberID
			if clientID == "" {
				clientID = defaultClientID
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "" && msg.Type != "text" {
					continue
				}
				if msg.Text.Body == "" {
					continue
				}

				ts := time.Now()
				if unix, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil && unix > 0 {
					ts = time.Unix(unix, 0)
				}

				_, err := ingest.Ingest(ctx, ingest.Input{
					ClientID:  clientID,
					From:      msg.From,
					Message:   msg.Text.Body,
					Platform:  "meta",
					Timestamp: ts,
				})
				if err != nil {
					log.ClientOp(clientID, "meta_ingest").WithError(err).Warn("Dropped Meta webhook message")
					continue
				}
				ingested++
			}
		}
	}

	// Meta expects 200 even when nothing was ingested, otherwise it retries.
	return router.ResponseSuccessWithData(c, "Webhook processed", fiber.Map{
		"ingested": ingested,
	})
}
