package metawebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
)

func newTestApp(t *testing.T) (*fiber.App, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	storage.SetStore(store)

	app := fiber.New()
	app.Get("/whatsapp/webhook", Verify)
	app.Post("/whatsapp/webhook", Receive)
	return app, store
}

func TestVerifyHandshake(t *testing.T) {
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "shared-secret")
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet,
		"/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=shared-secret&hub.challenge=challenge-123", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "challenge-123", string(body))
}

func TestVerifyWrongToken(t *testing.T) {
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "shared-secret")
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet,
		"/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=challenge-123", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestVerifyWrongMode(t *testing.T) {
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "shared-secret")
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet,
		"/whatsapp/webhook?hub.mode=unsubscribe&hub.verify_token=shared-secret&hub.challenge=challenge-123", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestReceiveIngestsTextMessages(t *testing.T) {
	app, store := newTestApp(t)

	payload := map[string]interface{}{
		"object": "whatsapp_business_account",
		"entry": []map[string]interface{}{
			{
				"id": "entry-1",
				"changes": []map[string]interface{}{
					{
						"field": "messages",
						"value": map[string]interface{}{
							"metadata": map[string]interface{}{"phone_number_id": "pn-42"},
							"messages": []map[string]interface{}{
								{
									"from":      "5511999990000",
									"id":        "wamid.1",
									"timestamp": "1700000000",
									"type":      "text",
									"text":      map[string]interface{}{"body": "Péssimo, que problema horrível"},
								},
								{
									"from":      "5511999990000",
									"id":        "wamid.2",
									"timestamp": "1700000001",
									"type":      "image",
								},
							},
						},
					},
				},
			},
		},
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["ingested"])

	messages, total, err := store.ListMessages(context.Background(), "pn-42", 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "negative", messages[0].Sentiment)
	assert.Equal(t, "meta", messages[0].Platform)
}

func TestReceiveEmptyPayloadStillOK(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/whatsapp/webhook", bytes.NewReader([]byte(`{"object":"whatsapp_business_account","entry":[]}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
