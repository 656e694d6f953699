package ingest

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
)

func TestMessageIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^msg_\d+_[0-9a-f]{8}$`)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id := newMessageID()
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestAllowRateLimit(t *testing.T) {
	t.Setenv("INGEST_RATE_PER_MINUTE", "60")

	// 60/min refills one token per second with a burst of 7; draining the
	// burst makes the next call fail immediately.
	const clientID = "rate-limited-client"
	for i := 0; i < 7; i++ {
		require.True(t, Allow(clientID), "call %d", i)
	}
	assert.False(t, Allow(clientID))
}

func TestIngestValidatesInput(t *testing.T) {
	storage.SetStore(storage.NewMemoryStore())

	_, err := Ingest(context.Background(), Input{ClientID: "bad client!", Message: "oi"})
	assert.Error(t, err)

	_, err = Ingest(context.Background(), Input{ClientID: "client-1", Message: "   "})
	assert.Error(t, err)
}

func TestIngestStoresScoredMessage(t *testing.T) {
	store := storage.NewMemoryStore()
	storage.SetStore(store)

	result, err := Ingest(context.Background(), Input{
		ClientID: "client-1",
		From:     "5511999990000",
		Message:  "Muito obrigado, excelente atendimento!",
	})
	require.NoError(t, err)

	assert.Equal(t, "positive", result.Message.Sentiment)
	assert.Equal(t, "webhook", result.Message.Platform)
	assert.True(t, result.Message.Processed)
	assert.False(t, result.Message.Timestamp.IsZero())
	assert.Positive(t, result.Sentiment.Score)

	messages, total, err := store.ListMessages(context.Background(), "client-1", 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, result.Message.ID, messages[0].ID)
}

func TestIngestBumpsWebhookStats(t *testing.T) {
	store := storage.NewMemoryStore()
	storage.SetStore(store)
	ctx := context.Background()

	require.NoError(t, store.CreateWebhook(ctx, &storage.Webhook{
		ID: "wh_1", ClientID: "client-1", Name: "hook", Platform: "custom",
		Status: "active", CreatedAt: time.Now(),
	}))

	_, err := Ingest(ctx, Input{
		ClientID:  "client-1",
		From:      "5511999990000",
		Message:   "oi",
		WebhookID: "wh_1",
	})
	require.NoError(t, err)

	w, err := store.GetWebhook(ctx, "wh_1", "client-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.MessageCount)
	assert.NotNil(t, w.LastReceived)
}
