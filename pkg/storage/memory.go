package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps everything in process memory. It backs tests and
// DB-less development (STORAGE_TYPE=memory); data is lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	messages  []Message
	webhooks  map[string]*Webhook
	apiKeys   map[int64]*APIKey
	logs      []DeliveryLog
	keySeq    int64
	logSeq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		webhooks: make(map[string]*Webhook),
		apiKeys:  make(map[int64]*APIKey),
	}
}

func (m *MemoryStore) InsertMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, clientID string, limit, offset int) ([]Message, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []Message
	for _, msg := range m.messages {
		if msg.ClientID == clientID {
			filtered = append(filtered, msg)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	total := len(filtered)
	if offset >= total {
		return []Message{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (m *MemoryStore) MessageStats(ctx context.Context, webhookID string) (int64, *time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	var last *time.Time
	for _, msg := range m.messages {
		if msg.WebhookID != webhookID {
			continue
		}
		count++
		ts := msg.Timestamp
		if last == nil || ts.After(*last) {
			last = &ts
		}
	}
	return count, last, nil
}

func (m *MemoryStore) CreateWebhook(ctx context.Context, w *Webhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.webhooks[w.ID] = &cp
	return nil
}

func (m *MemoryStore) GetWebhook(ctx context.Context, id string, clientID string) (*Webhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.webhooks[id]
	if !ok || (clientID != "" && w.ClientID != clientID) {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) ListWebhooks(ctx context.Context, clientID string) ([]Webhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Webhook
	for _, w := range m.webhooks {
		if clientID == "" || w.ClientID == clientID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListAllWebhooks(ctx context.Context) ([]Webhook, error) {
	return m.ListWebhooks(ctx, "")
}

func (m *MemoryStore) UpdateWebhook(ctx context.Context, w *Webhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.webhooks[w.ID]
	if !ok || existing.ClientID != w.ClientID {
		return ErrNotFound
	}
	cp := *w
	m.webhooks[w.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteWebhook(ctx context.Context, id string, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webhooks[id]
	if !ok || (clientID != "" && w.ClientID != clientID) {
		return ErrNotFound
	}
	delete(m.webhooks, id)
	return nil
}

func (m *MemoryStore) BumpWebhookStats(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webhooks[id]
	if !ok {
		return ErrNotFound
	}
	w.MessageCount++
	ts := at
	w.LastReceived = &ts
	return nil
}

func (m *MemoryStore) SetWebhookStats(ctx context.Context, id string, count int64, last *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webhooks[id]
	if !ok {
		return ErrNotFound
	}
	w.MessageCount = count
	w.LastReceived = last
	return nil
}

func (m *MemoryStore) CreateAPIKey(ctx context.Context, k *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keySeq++
	k.ID = m.keySeq
	cp := *k
	m.apiKeys[k.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAPIKeyByKey(ctx context.Context, key string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.apiKeys {
		if k.Key == key {
			cp := *k
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetAPIKeyByID(ctx context.Context, id int64) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.apiKeys[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *MemoryStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []APIKey
	for _, k := range m.apiKeys {
		out = append(out, *k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetAPIKeyActive(ctx context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.apiKeys[id]
	if !ok {
		return ErrNotFound
	}
	k.IsActive = active
	now := time.Now()
	k.UpdatedAt = &now
	return nil
}

func (m *MemoryStore) DeleteAPIKey(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apiKeys[id]; !ok {
		return ErrNotFound
	}
	delete(m.apiKeys, id)
	return nil
}

func (m *MemoryStore) LogDelivery(ctx context.Context, webhookID string, eventType string, status string, attempts int, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logSeq++
	m.logs = append(m.logs, DeliveryLog{
		ID:           m.logSeq,
		WebhookID:    webhookID,
		EventType:    eventType,
		Status:       status,
		AttemptCount: attempts,
		LastError:    lastError,
		CreatedAt:    time.Now(),
	})
	return nil
}

func (m *MemoryStore) GetDeliveryLogs(ctx context.Context, webhookID string, limit int) ([]DeliveryLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []DeliveryLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].WebhookID == webhookID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) GetTotals(ctx context.Context) (*Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	totals := &Totals{
		Messages:    int64(len(m.messages)),
		Webhooks:    int64(len(m.webhooks)),
		APIKeys:     int64(len(m.apiKeys)),
		BySentiment: make(map[string]int64),
	}
	for _, msg := range m.messages {
		totals.BySentiment[msg.Sentiment]++
	}
	return totals, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
