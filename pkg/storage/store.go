package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary. Production uses the Postgres
// implementation; tests and DB-less development use the in-memory one.
type Store interface {
	// Messages
	InsertMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, clientID string, limit, offset int) ([]Message, int, error)
	MessageStats(ctx context.Context, webhookID string) (int64, *time.Time, error)

	// Webhook registry
	CreateWebhook(ctx context.Context, w *Webhook) error
	GetWebhook(ctx context.Context, id string, clientID string) (*Webhook, error)
	ListWebhooks(ctx context.Context, clientID string) ([]Webhook, error)
	ListAllWebhooks(ctx context.Context) ([]Webhook, error)
	UpdateWebhook(ctx context.Context, w *Webhook) error
	DeleteWebhook(ctx context.Context, id string, clientID string) error
	BumpWebhookStats(ctx context.Context, id string, at time.Time) error
	SetWebhookStats(ctx context.Context, id string, count int64, last *time.Time) error

	// API keys
	CreateAPIKey(ctx context.Context, k *APIKey) error
	GetAPIKeyByKey(ctx context.Context, key string) (*APIKey, error)
	GetAPIKeyByID(ctx context.Context, id int64) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	SetAPIKeyActive(ctx context.Context, id int64, active bool) error
	DeleteAPIKey(ctx context.Context, id int64) error

	// Outbound delivery log
	LogDelivery(ctx context.Context, webhookID string, eventType string, status string, attempts int, lastError string) error
	GetDeliveryLogs(ctx context.Context, webhookID string, limit int) ([]DeliveryLog, error)

	// Health / dashboard
	GetTotals(ctx context.Context) (*Totals, error)
	Ping(ctx context.Context) error
	Close() error
}

var storeInstance Store

// SetStore sets the process-wide store (called once from startup).
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the process-wide store.
func GetStore() Store {
	return storeInstance
}
