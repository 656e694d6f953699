package storage

import "time"

// Message is one inbound WhatsApp message, scored once at ingestion.
type Message struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	FromNumber string    `json:"from_number"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Platform   string    `json:"platform"`
	Sentiment  string    `json:"sentiment"`
	Processed  bool      `json:"processed"`
	WebhookID  string    `json:"webhook_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Webhook is a registered integration. Rows created by no-code tools carry
// only identity and counters; rows with a URL additionally receive signed
// outbound event deliveries.
type Webhook struct {
	ID           string     `json:"id"`
	ClientID     string     `json:"client_id"`
	Name         string     `json:"name"`
	Platform     string     `json:"platform"`
	URL          string     `json:"url,omitempty"`
	Secret       string     `json:"-"`
	Events       []string   `json:"events,omitempty"`
	Status       string     `json:"status"`
	MessageCount int64      `json:"message_count"`
	LastReceived *time.Time `json:"last_received,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type APIKey struct {
	ID               int64      `json:"id"`
	Key              string     `json:"api_key"`
	ClientID         string     `json:"client_id"`
	ClientName       string     `json:"client_name"`
	RateLimitPerHour int        `json:"rate_limit_per_hour"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

type DeliveryLog struct {
	ID           int64     `json:"id"`
	WebhookID    string    `json:"webhook_id"`
	EventType    string    `json:"event_type"`
	Status       string    `json:"status"`
	AttemptCount int       `json:"attempt_count"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Totals feeds the admin stats endpoint.
type Totals struct {
	Messages    int64            `json:"messages"`
	Webhooks    int64            `json:"webhooks"`
	APIKeys     int64            `json:"api_keys"`
	BySentiment map[string]int64 `json:"by_sentiment"`
}
