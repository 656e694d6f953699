package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
)

func newTestApp(t *testing.T, clientID string) (*fiber.App, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	storage.SetStore(store)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("client_id", clientID)
		return c.Next()
	})
	app.Post("/webhooks", CreateWebhook)
	app.Get("/webhooks", ListWebhooks)
	app.Post("/webhooks/stats/recalculate", RecalculateStats)
	app.Get("/webhooks/:id", GetWebhook)
	app.Patch("/webhooks/:id", UpdateWebhook)
	app.Delete("/webhooks/:id", DeleteWebhook)
	return app, store
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestCreateWebhookAndList(t *testing.T) {
	app, _ := newTestApp(t, "client-1")

	resp := doJSON(t, app, http.MethodPost, "/webhooks", map[string]interface{}{
		"name":     "Zapier bridge",
		"platform": "zapier",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := decodeBody(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, "client-1", data["client_id"])

	resp = doJSON(t, app, http.MethodGet, "/webhooks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody(t, resp)["data"].([]interface{})
	assert.Len(t, list, 1)
}

func TestCreateWebhookRequiresName(t *testing.T) {
	app, _ := newTestApp(t, "client-1")

	resp := doJSON(t, app, http.MethodPost, "/webhooks", map[string]interface{}{
		"platform": "zapier",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateWebhookRejectsPlaintextURL(t *testing.T) {
	app, _ := newTestApp(t, "client-1")

	resp := doJSON(t, app, http.MethodPost, "/webhooks", map[string]interface{}{
		"name": "insecure",
		"url":  "http://example.com/hook",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookScopedToClient(t *testing.T) {
	app, store := newTestApp(t, "client-1")

	err := store.CreateWebhook(context.Background(), &storage.Webhook{
		ID:        "wh_other",
		ClientID:  "client-2",
		Name:      "Someone else's",
		Platform:  "custom",
		Status:    "active",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodGet, "/webhooks/wh_other", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, app, http.MethodDelete, "/webhooks/wh_other", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateWebhookStatus(t *testing.T) {
	app, store := newTestApp(t, "client-1")

	err := store.CreateWebhook(context.Background(), &storage.Webhook{
		ID: "wh_1", ClientID: "client-1", Name: "hook", Platform: "custom", Status: "active", CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodPatch, "/webhooks/wh_1", map[string]interface{}{"status": "paused"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	w, err := store.GetWebhook(context.Background(), "wh_1", "client-1")
	require.NoError(t, err)
	assert.Equal(t, "paused", w.Status)

	resp = doJSON(t, app, http.MethodPatch, "/webhooks/wh_1", map[string]interface{}{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecalculateStats(t *testing.T) {
	app, store := newTestApp(t, "client-1")
	ctx := context.Background()

	require.NoError(t, store.CreateWebhook(ctx, &storage.Webhook{
		ID: "wh_1", ClientID: "client-1", Name: "hook", Platform: "custom", Status: "active", CreatedAt: time.Now(),
	}))
	require.NoError(t, store.CreateWebhook(ctx, &storage.Webhook{
		ID: "wh_2", ClientID: "client-1", Name: "idle hook", Platform: "custom", Status: "active",
		MessageCount: 99, CreatedAt: time.Now(),
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertMessage(ctx, &storage.Message{
			ID: "msg_" + string(rune('a'+i)), ClientID: "client-1", Message: "oi",
			Timestamp: time.Now(), Platform: "webhook", Sentiment: "neutral", Processed: true, WebhookID: "wh_1",
		}))
	}

	resp := doJSON(t, app, http.MethodPost, "/webhooks/stats/recalculate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := decodeBody(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["recalculated"])
	assert.Equal(t, float64(0), data["failed"])

	w1, err := store.GetWebhook(ctx, "wh_1", "client-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), w1.MessageCount)
	assert.NotNil(t, w1.LastReceived)

	w2, err := store.GetWebhook(ctx, "wh_2", "client-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), w2.MessageCount)
}
