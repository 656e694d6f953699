package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore backs the Store interface with database/sql over the pgx
// stdlib driver. Schema bootstrap is idempotent and runs at open time.
type PostgresStore struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &PostgresStore{db: db}
	if err := s.bootstrapSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) bootstrapSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS whatsapp_messages (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			from_number TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			platform TEXT NOT NULL DEFAULT 'webhook',
			sentiment TEXT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT TRUE,
			webhook_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_whatsapp_messages_client ON whatsapp_messages(client_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_whatsapp_messages_webhook ON whatsapp_messages(webhook_id)`,
		`CREATE TABLE IF NOT EXISTS webhooks (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			name TEXT NOT NULL,
			platform TEXT NOT NULL,
			url TEXT,
			secret TEXT,
			events JSONB NOT NULL DEFAULT '[]'::jsonb,
			status TEXT NOT NULL DEFAULT 'active',
			message_count BIGINT NOT NULL DEFAULT 0,
			last_received TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhooks_client ON webhooks(client_id)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id SERIAL PRIMARY KEY,
			api_key VARCHAR(64) UNIQUE NOT NULL,
			client_id TEXT NOT NULL,
			client_name VARCHAR(255) NOT NULL,
			rate_limit_per_hour INT DEFAULT 1000,
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_key ON api_keys(api_key)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id BIGSERIAL PRIMARY KEY,
			webhook_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			status TEXT NOT NULL,
			attempt_count INT NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_webhook ON webhook_deliveries(webhook_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, msg *Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whatsapp_messages (id, client_id, from_number, message, timestamp, platform, sentiment, processed, webhook_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), CURRENT_TIMESTAMP)
	`, msg.ID, msg.ClientID, msg.FromNumber, msg.Message, msg.Timestamp, msg.Platform, msg.Sentiment, msg.Processed, msg.WebhookID)
	return err
}

func (s *PostgresStore) ListMessages(ctx context.Context, clientID string, limit, offset int) ([]Message, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM whatsapp_messages WHERE client_id = $1
	`, clientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, from_number, message, timestamp, platform, sentiment, processed, COALESCE(webhook_id, ''), created_at
		FROM whatsapp_messages
		WHERE client_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		err := rows.Scan(&m.ID, &m.ClientID, &m.FromNumber, &m.Message, &m.Timestamp, &m.Platform, &m.Sentiment, &m.Processed, &m.WebhookID, &m.CreatedAt)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, m)
	}
	return messages, total, rows.Err()
}

func (s *PostgresStore) MessageStats(ctx context.Context, webhookID string) (int64, *time.Time, error) {
	var count int64
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(timestamp) FROM whatsapp_messages WHERE webhook_id = $1
	`, webhookID).Scan(&count, &last)
	if err != nil {
		return 0, nil, err
	}
	if last.Valid {
		return count, &last.Time, nil
	}
	return count, nil, nil
}

func (s *PostgresStore) CreateWebhook(ctx context.Context, w *Webhook) error {
	eventsJSON, err := json.Marshal(w.Events)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, client_id, name, platform, url, secret, events, status, message_count, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7::jsonb, $8, 0, CURRENT_TIMESTAMP)
	`, w.ID, w.ClientID, w.Name, w.Platform, w.URL, w.Secret, string(eventsJSON), w.Status)
	return err
}

func (s *PostgresStore) scanWebhook(row interface{ Scan(...interface{}) error }) (*Webhook, error) {
	var w Webhook
	var url, secret sql.NullString
	var eventsJSON []byte
	var last sql.NullTime
	err := row.Scan(&w.ID, &w.ClientID, &w.Name, &w.Platform, &url, &secret, &eventsJSON, &w.Status, &w.MessageCount, &last, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(eventsJSON, &w.Events); err != nil {
		return nil, err
	}
	w.URL = url.String
	w.Secret = secret.String
	if last.Valid {
		w.LastReceived = &last.Time
	}
	return &w, nil
}

const webhookColumns = `id, client_id, name, platform, url, secret, events, status, message_count, last_received, created_at`

func (s *PostgresStore) GetWebhook(ctx context.Context, id string, clientID string) (*Webhook, error) {
	if clientID == "" {
		return s.scanWebhook(s.db.QueryRowContext(ctx,
			`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id))
	}
	return s.scanWebhook(s.db.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1 AND client_id = $2`, id, clientID))
}

func (s *PostgresStore) listWebhooks(ctx context.Context, query string, args ...interface{}) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	webhooks := []Webhook{}
	for rows.Next() {
		w, err := s.scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, *w)
	}
	return webhooks, rows.Err()
}

func (s *PostgresStore) ListWebhooks(ctx context.Context, clientID string) ([]Webhook, error) {
	return s.listWebhooks(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE client_id = $1 ORDER BY created_at`, clientID)
}

func (s *PostgresStore) ListAllWebhooks(ctx context.Context) ([]Webhook, error) {
	return s.listWebhooks(ctx,
		`SELECT `+webhookColumns+` FROM webhooks ORDER BY created_at`)
}

func (s *PostgresStore) UpdateWebhook(ctx context.Context, w *Webhook) error {
	eventsJSON, err := json.Marshal(w.Events)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhooks
		SET name = $1, platform = $2, url = NULLIF($3, ''), events = $4::jsonb, status = $5
		WHERE id = $6 AND client_id = $7
	`, w.Name, w.Platform, w.URL, string(eventsJSON), w.Status, w.ID, w.ClientID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) DeleteWebhook(ctx context.Context, id string, clientID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM webhooks WHERE id = $1 AND client_id = $2
	`, id, clientID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) BumpWebhookStats(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhooks SET message_count = message_count + 1, last_received = $1 WHERE id = $2
	`, at, id)
	return err
}

func (s *PostgresStore) SetWebhookStats(ctx context.Context, id string, count int64, last *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhooks SET message_count = $1, last_received = $2 WHERE id = $3
	`, count, last, id)
	return err
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, k *APIKey) error {
	return s.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (api_key, client_id, client_name, rate_limit_per_hour, is_active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, CURRENT_TIMESTAMP)
		RETURNING id, created_at
	`, k.Key, k.ClientID, k.ClientName, k.RateLimitPerHour).Scan(&k.ID, &k.CreatedAt)
}

func (s *PostgresStore) scanAPIKey(row interface{ Scan(...interface{}) error }) (*APIKey, error) {
	var k APIKey
	var updated sql.NullTime
	err := row.Scan(&k.ID, &k.Key, &k.ClientID, &k.ClientName, &k.RateLimitPerHour, &k.IsActive, &k.CreatedAt, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if updated.Valid {
		k.UpdatedAt = &updated.Time
	}
	return &k, nil
}

func (s *PostgresStore) GetAPIKeyByKey(ctx context.Context, key string) (*APIKey, error) {
	return s.scanAPIKey(s.db.QueryRowContext(ctx, `
		SELECT id, api_key, client_id, client_name, rate_limit_per_hour, is_active, created_at, updated_at
		FROM api_keys WHERE api_key = $1
	`, key))
}

func (s *PostgresStore) GetAPIKeyByID(ctx context.Context, id int64) (*APIKey, error) {
	return s.scanAPIKey(s.db.QueryRowContext(ctx, `
		SELECT id, api_key, client_id, client_name, rate_limit_per_hour, is_active, created_at, updated_at
		FROM api_keys WHERE id = $1
	`, id))
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, api_key, client_id, client_name, rate_limit_per_hour, is_active, created_at, updated_at
		FROM api_keys ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []APIKey{}
	for rows.Next() {
		k, err := s.scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) SetAPIKeyActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET is_active = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, active, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) DeleteAPIKey(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) LogDelivery(ctx context.Context, webhookID string, eventType string, status string, attempts int, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (webhook_id, event_type, status, attempt_count, last_error, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), CURRENT_TIMESTAMP)
	`, webhookID, eventType, status, attempts, lastError)
	return err
}

func (s *PostgresStore) GetDeliveryLogs(ctx context.Context, webhookID string, limit int) ([]DeliveryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, webhook_id, event_type, status, attempt_count, COALESCE(last_error, ''), created_at
		FROM webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []DeliveryLog{}
	for rows.Next() {
		var l DeliveryLog
		err := rows.Scan(&l.ID, &l.WebhookID, &l.EventType, &l.Status, &l.AttemptCount, &l.LastError, &l.CreatedAt)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) GetTotals(ctx context.Context) (*Totals, error) {
	totals := &Totals{BySentiment: make(map[string]int64)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM whatsapp_messages`).Scan(&totals.Messages); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhooks`).Scan(&totals.Webhooks); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&totals.APIKeys); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT sentiment, COUNT(*) FROM whatsapp_messages GROUP BY sentiment`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sentiment string
		var count int64
		if err := rows.Scan(&sentiment, &count); err != nil {
			return nil, err
		}
		totals.BySentiment[sentiment] = count
	}
	return totals, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
