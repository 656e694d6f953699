package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/zapboard/whatsapp-inbox-api/pkg/env"
	"github.com/zapboard/whatsapp-inbox-api/pkg/log"
	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
	"github.com/zapboard/whatsapp-inbox-api/pkg/validation"
)

// Engine delivers signed event posts to registered webhook URLs. Registrations
// without a URL (counter-only rows created by no-code tools) are skipped.
type Engine struct {
	store      storage.Store
	httpClient *http.Client
	queue      chan *deliveryTask
	workers    int
	retryLimit int
	enabled    bool
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	// queueMu guards queue sends against Shutdown closing the channel; a
	// dispatch racing a shutdown drops the delivery instead of panicking.
	queueMu sync.RWMutex
	stopped bool
}

type deliveryTask struct {
	webhook storage.Webhook
	event   Event
}

func NewEngine(store storage.Store) *Engine {
	workers := env.GetEnvIntOrDefault("WEBHOOK_WORKERS", 4)
	retryLimit := env.GetEnvIntOrDefault("WEBHOOK_RETRY_LIMIT", 3)
	enabled := env.GetEnvBoolOrDefault("WEBHOOKS_ENABLED", true)

	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan *deliveryTask, 1000),
		workers:    workers,
		retryLimit: retryLimit,
		enabled:    enabled,
		ctx:        ctx,
		cancel:     cancel,
	}

	if enabled {
		for i := 0; i < workers; i++ {
			engine.wg.Add(1)
			go engine.worker()
		}
	}

	return engine
}

func (e *Engine) Shutdown() {
	e.queueMu.Lock()
	if e.stopped {
		e.queueMu.Unlock()
		return
	}
	e.stopped = true
	e.cancel()
	close(e.queue)
	e.queueMu.Unlock()

	e.wg.Wait()
}

var errEngineStopped = fmt.Errorf("delivery engine is shut down")

func (e *Engine) enqueue(task *deliveryTask) error {
	e.queueMu.RLock()
	defer e.queueMu.RUnlock()

	if e.stopped {
		return errEngineStopped
	}
	select {
	case e.queue <- task:
		return nil
	default:
		return fmt.Errorf("webhook delivery queue is full")
	}
}

// Dispatch fans the event out to every active registration of the client
// that subscribes to its type. Never blocks the caller: a full queue drops
// the delivery with a log line.
func (e *Engine) Dispatch(ctx context.Context, clientID string, event Event) {
	if !e.enabled {
		return
	}

	webhooks, err := e.store.ListWebhooks(ctx, clientID)
	if err != nil {
		log.With("webhook").WithError(err).Error("Failed to fetch webhooks for dispatch")
		return
	}

	dispatched := 0
	for _, w := range webhooks {
		if e.shouldDispatch(w, event.EventType) {
			if err := e.enqueue(&deliveryTask{webhook: w, event: event}); err != nil {
				log.ClientOp(clientID, "dispatch").Warn("Dropping " + string(event.EventType) + ": " + err.Error())
				continue
			}
			dispatched++
		}
	}

	if dispatched > 0 {
		log.ClientOp(clientID, "dispatch").Debug(fmt.Sprintf("Queued %s to %d webhook(s)", event.EventType, dispatched))
	}
}

// DeliverTo queues the event to a single registration, bypassing the
// subscription filter. Used by the test-fire endpoint.
func (e *Engine) DeliverTo(w storage.Webhook, event Event) error {
	if !e.enabled {
		return fmt.Errorf("webhook deliveries are disabled")
	}
	if w.URL == "" {
		return fmt.Errorf("webhook has no delivery URL")
	}
	return e.enqueue(&deliveryTask{webhook: w, event: event})
}

func (e *Engine) shouldDispatch(w storage.Webhook, eventType EventType) bool {
	if w.Status != "active" || w.URL == "" {
		return false
	}
	if len(w.Events) == 0 {
		return true
	}
	for _, evt := range w.Events {
		if EventType(evt) == eventType {
			return true
		}
	}
	return false
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case task, ok := <-e.queue:
			if !ok {
				return
			}
			e.deliver(task)
		}
	}
}

func (e *Engine) deliver(task *deliveryTask) {
	if err := ValidateDeliveryURL(task.webhook.URL); err != nil {
		_ = e.store.LogDelivery(context.Background(), task.webhook.ID, string(task.event.EventType), string(DeliveryFailed), 0, err.Error())
		return
	}

	payload, err := json.Marshal(task.event)
	if err != nil {
		log.With("webhook").WithError(err).Error("Failed to marshal webhook event")
		return
	}

	signature := e.generateSignature(payload, task.webhook.Secret)

	var lastErr error
	for attempt := 1; attempt <= e.retryLimit; attempt++ {
		req, err := http.NewRequestWithContext(context.Background(), "POST", task.webhook.URL, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			continue
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Signature", signature)
		req.Header.Set("X-Hub-Signature-256", signature)
		req.Header.Set("X-Webhook-Event", string(task.event.EventType))
		req.Header.Set("User-Agent", "ZapBoard-Inbox-API/1.0")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < e.retryLimit {
				time.Sleep(time.Duration(attempt*2) * time.Second)
			}
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_ = e.store.LogDelivery(context.Background(), task.webhook.ID, string(task.event.EventType), string(DeliverySuccess), attempt, "")
			return
		}

		lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		if attempt < e.retryLimit {
			time.Sleep(time.Duration(attempt*2) * time.Second)
		}
	}

	errorMsg := ""
	if lastErr != nil {
		errorMsg = lastErr.Error()
	}
	_ = e.store.LogDelivery(context.Background(), task.webhook.ID, string(task.event.EventType), string(DeliveryFailed), e.retryLimit, errorMsg)
	log.ClientOp(task.event.ClientID, "deliver").Warn("Webhook delivery failed: " + errorMsg)
}

func (e *Engine) generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ValidateDeliveryURL rejects malformed, plaintext, and private-network
// targets. Applied both at registration time and again before each delivery.
func ValidateDeliveryURL(rawURL string) error {
	if err := validation.ValidateURL(rawURL); err != nil {
		return err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	if u.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0" || strings.HasPrefix(host, "192.168.") || strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "172.") {
		return fmt.Errorf("private/local network URLs are not allowed")
	}

	return nil
}
