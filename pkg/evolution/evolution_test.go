package evolution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ts *httptest.Server) *Client {
	return &Client{
		BaseURL:    ts.URL,
		APIKey:     "test-key",
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
	}
}

func TestFindMessages(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/findMessages/inst-1", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": map[string]interface{}{
				"records": []map[string]interface{}{
					{
						"key":              map[string]interface{}{"remoteJid": "5511999990000@s.whatsapp.net", "fromMe": false, "id": "m1"},
						"pushName":         "Maria",
						"message":          map[string]interface{}{"conversation": "obrigado"},
						"messageTimestamp": 1700000000,
					},
					{
						"key":              map[string]interface{}{"remoteJid": "5511888880000@s.whatsapp.net", "fromMe": true, "id": "m2"},
						"message":          map[string]interface{}{"extendedTextMessage": map[string]interface{}{"text": "segue o link"}},
						"messageTimestamp": 1700000100,
					},
				},
			},
		})
	}))
	defer ts.Close()

	client := newTestClient(ts)
	messages, err := client.FindMessages(context.Background(), "inst-1", 100)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, "obrigado", messages[0].Text())
	assert.Equal(t, "Maria", messages[0].PushName)
	assert.Equal(t, "segue o link", messages[1].Text())
	assert.True(t, messages[1].Key.FromMe)
}

func TestFindMessagesUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := newTestClient(ts)
	_, err := client.FindMessages(context.Background(), "inst-1", 100)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	assert.True(t, newTestClient(ts).Health(context.Background()))
}

func TestHealthDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	ts.Close()

	assert.False(t, newTestClient(ts).Health(context.Background()))
}

func TestMessageTextEmptyForMediaOnly(t *testing.T) {
	var m ChatMessage
	assert.Empty(t, m.Text())
}
