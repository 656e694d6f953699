package messages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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
	app.Post("/webhooks/messages", CreateMessage)
	app.Get("/webhooks/messages", ListMessages)
	return app, store
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
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

func TestCreateMessageStoresAndScores(t *testing.T) {
	app, store := newTestApp(t)

	resp := postJSON(t, app, "/webhooks/messages", map[string]string{
		"clientId": "client-1",
		"from":     "5511999990000",
		"message":  "Muito obrigado, excelente atendimento!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["status"])

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "positive", data["sentiment"])
	assert.Equal(t, true, data["processed"])
	assert.NotEmpty(t, data["id"])

	messages, total, err := store.ListMessages(context.Background(), "client-1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "positive", messages[0].Sentiment)
}

func TestCreateMessageMissingFields(t *testing.T) {
	app, _ := newTestApp(t)

	resp := postJSON(t, app, "/webhooks/messages", map[string]string{
		"clientId": "client-1",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, false, body["status"])
	assert.Contains(t, body["message"], "message")
}

func TestCreateMessageMissingEverything(t *testing.T) {
	app, _ := newTestApp(t)

	resp := postJSON(t, app, "/webhooks/messages", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["message"], "clientId")
	assert.Contains(t, body["message"], "message")
}

func TestCreateMessageMissingFrom(t *testing.T) {
	app, store := newTestApp(t)

	resp := postJSON(t, app, "/webhooks/messages", map[string]string{
		"clientId": "client-1",
		"message":  "Muito obrigado",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, false, body["status"])
	assert.Contains(t, body["message"], "from")

	_, total, err := store.ListMessages(context.Background(), "client-1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestCreateMessageRejectsInvalidPhone(t *testing.T) {
	app, _ := newTestApp(t)

	resp := postJSON(t, app, "/webhooks/messages", map[string]string{
		"clientId": "client-1",
		"from":     "not-a-number",
		"message":  "oi",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func newScopedTestApp(t *testing.T, clientID string) (*fiber.App, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	storage.SetStore(store)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("client_id", clientID)
		return c.Next()
	})
	app.Post("/webhooks/messages", CreateMessage)
	app.Get("/webhooks/messages", ListMessages)
	return app, store
}

func TestCreateMessageScopedToAuthenticatedClient(t *testing.T) {
	app, store := newScopedTestApp(t, "client-1")

	resp := postJSON(t, app, "/webhooks/messages", map[string]string{
		"clientId": "client-2",
		"from":     "5511999990000",
		"message":  "oi",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Omitting clientId stores under the authenticated client.
	resp = postJSON(t, app, "/webhooks/messages", map[string]string{
		"from":    "5511999990000",
		"message": "oi",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, total, err := store.ListMessages(context.Background(), "client-1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestListMessagesScopedToAuthenticatedClient(t *testing.T) {
	app, store := newScopedTestApp(t, "client-1")

	require.NoError(t, store.InsertMessage(context.Background(), &storage.Message{
		ID: "msg_other", ClientID: "client-2", FromNumber: "5511999990000",
		Message: "confidencial", Timestamp: time.Now(), Platform: "webhook",
		Sentiment: "neutral", Processed: true,
	}))

	req := httptest.NewRequest(http.MethodGet, "/webhooks/messages?clientId=client-2", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/webhooks/messages", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	data := body["data"].(map[string]interface{})
	assert.Empty(t, data["messages"])
}

func TestListMessagesRequiresClientID(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/messages", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func seedMessages(t *testing.T, store *storage.MemoryStore, clientID string, n int) {
	t.Helper()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		err := store.InsertMessage(context.Background(), &storage.Message{
			ID:         fmt.Sprintf("msg_%d", i),
			ClientID:   clientID,
			FromNumber: "5511999990000",
			Message:    fmt.Sprintf("mensagem %d", i),
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			Platform:   "webhook",
			Sentiment:  "neutral",
			Processed:  true,
		})
		require.NoError(t, err)
	}
}

func TestListMessagesPagination(t *testing.T) {
	app, store := newTestApp(t)
	seedMessages(t, store, "client-1", 25)

	cases := []struct {
		limit, offset int
		wantLen       int
		wantHasMore   bool
	}{
		{10, 0, 10, true},
		{10, 10, 10, true},
		{10, 20, 5, false},
		{25, 0, 25, false},
		{10, 30, 0, false},
	}

	for _, tc := range cases {
		url := fmt.Sprintf("/webhooks/messages?clientId=client-1&limit=%d&offset=%d", tc.limit, tc.offset)
		req := httptest.NewRequest(http.MethodGet, url, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		data := body["data"].(map[string]interface{})
		pagination := data["pagination"].(map[string]interface{})

		assert.Equal(t, float64(25), pagination["total"], "limit=%d offset=%d", tc.limit, tc.offset)
		assert.Equal(t, tc.wantHasMore, pagination["hasMore"], "limit=%d offset=%d", tc.limit, tc.offset)

		messages := data["messages"].([]interface{})
		assert.Len(t, messages, tc.wantLen, "limit=%d offset=%d", tc.limit, tc.offset)
	}
}

func TestListMessagesNewestFirst(t *testing.T) {
	app, store := newTestApp(t)
	seedMessages(t, store, "client-1", 3)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/messages?clientId=client-1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	body := decodeBody(t, resp)
	data := body["data"].(map[string]interface{})
	messages := data["messages"].([]interface{})
	require.Len(t, messages, 3)

	first := messages[0].(map[string]interface{})
	assert.Equal(t, "msg_2", first["id"])
}
