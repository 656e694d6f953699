package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zapboard/whatsapp-inbox-api/pkg/env"
)

// Client is a typed wrapper around an external Evolution API server.
// Every request carries the instance API key in the "apikey" header.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// MessageKey identifies a message within a chat.
type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// MessageContent carries the text variants Evolution exposes.
type MessageContent struct {
	Conversation    string `json:"conversation,omitempty"`
	ExtendedTextMsg *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage,omitempty"`
}

// ChatMessage is one message row returned by findMessages.
type ChatMessage struct {
	Key              MessageKey     `json:"key"`
	PushName         string         `json:"pushName,omitempty"`
	Message          MessageContent `json:"message"`
	MessageTimestamp int64          `json:"messageTimestamp"`
}

// Text returns the plain text of the message, empty for media-only payloads.
func (m ChatMessage) Text() string {
	if m.Message.Conversation != "" {
		return m.Message.Conversation
	}
	if m.Message.ExtendedTextMsg != nil {
		return m.Message.ExtendedTextMsg.Text
	}
	return ""
}

type findMessagesRequest struct {
	Where struct {
		Key struct {
			RemoteJID string `json:"remoteJid,omitempty"`
		} `json:"key"`
	} `json:"where"`
	Limit int `json:"limit,omitempty"`
}

type findMessagesResponse struct {
	Messages struct {
		Records []ChatMessage `json:"records"`
	} `json:"messages"`
}

// NewClientFromEnv builds a client from EVOLUTION_API_URL and
// EVOLUTION_API_KEY. Returns an error when the URL is not configured so
// callers can disable the proxy endpoints instead of failing requests.
func NewClientFromEnv() (*Client, error) {
	baseURL, err := env.GetEnvString("EVOLUTION_API_URL")
	if err != nil || baseURL == "" {
		return nil, errors.New("EVOLUTION_API_URL not configured")
	}
	apiKey, _ := env.GetEnvString("EVOLUTION_API_KEY")

	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: env.GetEnvDurationOrDefault("EVOLUTION_API_TIMEOUT", 15*time.Second),
		},
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("apikey", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("evolution api returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FindMessages fetches up to limit messages for an instance. Evolution
// paginates server-side; one page is enough for chat aggregation windows.
func (c *Client) FindMessages(ctx context.Context, instanceName string, limit int) ([]ChatMessage, error) {
	var req findMessagesRequest
	req.Limit = limit

	var resp findMessagesResponse
	err := c.do(ctx, http.MethodPost, "/chat/findMessages/"+instanceName, req, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Messages.Records, nil
}

// Health reports whether the Evolution server answers its root endpoint.
// Any failure maps to false; callers treat the upstream as down.
func (c *Client) Health(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/", nil, nil)
	return err == nil
}
