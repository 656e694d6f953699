package ingest

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/zapboard/whatsapp-inbox-api/internal/webhook"
	"github.com/zapboard/whatsapp-inbox-api/pkg/env"
	"github.com/zapboard/whatsapp-inbox-api/pkg/log"
	"github.com/zapboard/whatsapp-inbox-api/pkg/sentiment"
	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
	"github.com/zapboard/whatsapp-inbox-api/pkg/validation"
)

// Input is one inbound message regardless of source: direct POST, Meta
// webhook, or the WhatsApp bridge.
type Input struct {
	ClientID  string
	From      string
	Message   string
	Platform  string
	WebhookID string
	Timestamp time.Time
}

// Result pairs the stored row with the full scoring breakdown; only the
// label survives persistence.
type Result struct {
	Message   storage.Message
	Sentiment sentiment.Result
}

var (
	engine *webhook.Engine

	limitersMu sync.Mutex
	limiters   = make(map[string]*rate.Limiter)
)

// SetEngine wires the outbound delivery engine. Called once from startup;
// a nil engine disables event fan-out but not ingestion.
func SetEngine(e *webhook.Engine) {
	engine = e
}

func clientLimiter(clientID string) *rate.Limiter {
	limitersMu.Lock()
	defer limitersMu.Unlock()

	limiter, ok := limiters[clientID]
	if !ok {
		perMinute := env.GetEnvIntOrDefault("INGEST_RATE_PER_MINUTE", 600)
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute/10+1)
		limiters[clientID] = limiter
	}
	return limiter
}

// Allow reports whether the client is within its ingestion rate.
func Allow(clientID string) bool {
	return clientLimiter(clientID).Allow()
}

func newMessageID() string {
	return "msg_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Ingest validates, scores, stores, and fans out one inbound message. The
// sentiment label is computed exactly once here and never recomputed.
func Ingest(ctx context.Context, in Input) (*Result, error) {
	if err := validation.ValidateClientID(in.ClientID); err != nil {
		return nil, err
	}
	if err := validation.ValidateMessageText(in.Message); err != nil {
		return nil, err
	}

	if in.Platform == "" {
		in.Platform = "webhook"
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}

	scored := sentiment.Analyze(in.Message)

	msg := storage.Message{
		ID:         newMessageID(),
		ClientID:   in.ClientID,
		FromNumber: in.From,
		Message:    in.Message,
		Timestamp:  in.Timestamp,
		Platform:   in.Platform,
		Sentiment:  string(scored.Sentiment),
		Processed:  true,
		WebhookID:  in.WebhookID,
	}

	store := storage.GetStore()
	if err := store.InsertMessage(ctx, &msg); err != nil {
		return nil, err
	}

	if in.WebhookID != "" {
		if err := store.BumpWebhookStats(ctx, in.WebhookID, in.Timestamp); err != nil && err != storage.ErrNotFound {
			log.ClientOp(in.ClientID, "ingest").WithError(err).Warn("Failed to bump webhook stats")
		}
	}

	if engine != nil {
		engine.Dispatch(ctx, in.ClientID, webhook.Event{
			EventType: webhook.EventMessageReceived,
			ClientID:  in.ClientID,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"message_id": msg.ID,
				"from":       msg.FromNumber,
				"platform":   msg.Platform,
				"sentiment":  msg.Sentiment,
				"timestamp":  msg.Timestamp.Unix(),
			},
		})
	}

	return &Result{Message: msg, Sentiment: scored}, nil
}

// DispatchSessionEvent publishes session lifecycle changes to the client's
// registered webhooks.
func DispatchSessionEvent(ctx context.Context, clientID string, eventType webhook.EventType, sessionID string) {
	if engine == nil {
		return
	}
	engine.Dispatch(ctx, clientID, webhook.Event{
		EventType: eventType,
		ClientID:  clientID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"session_id": sessionID,
		},
	})
}
