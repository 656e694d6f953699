package wabridge

import (
	"context"
	"encoding/base64"
	"errors"
	"runtime"
	"sync"
	"time"

	qrCode "github.com/skip2/go-qrcode"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/zapboard/whatsapp-inbox-api/pkg/env"
	"github.com/zapboard/whatsapp-inbox-api/pkg/log"
	"github.com/zapboard/whatsapp-inbox-api/pkg/session"
)

// MessageSink receives the text of every inbound message seen by a bridged
// client. Startup wires this to the ingestion pipeline.
type MessageSink func(ctx context.Context, clientID string, from string, text string, at time.Time)

// SessionHook is notified when a bridged session authenticates or drops, so
// lifecycle events reach the client's registered webhooks.
type SessionHook func(ctx context.Context, clientID string, sessionID string, connected bool)

const (
	qrChannelWaitTimeout = 2 * time.Minute
	logoutRequestTimeout = 30 * time.Second
)

var (
	clientsMu sync.RWMutex
	clients   = make(map[string]*whatsmeow.Client)

	datastore   *sqlstore.Container
	tracker     *session.Tracker
	sink        MessageSink
	sessionHook SessionHook
	enabled     bool
)

// Configure opens the whatsmeow datastore and wires the tracker and message
// sink. When WHATSAPP_BRIDGE_ENABLED is false the bridge stays inert and
// sessions run on generated QR payloads only.
func Configure(ctx context.Context, t *session.Tracker, s MessageSink) error {
	tracker = t
	sink = s

	enabled = env.GetEnvBoolOrDefault("WHATSAPP_BRIDGE_ENABLED", false)
	if !enabled {
		log.With("wabridge").Info("WhatsApp bridge disabled")
		return nil
	}

	dsn, err := env.GetEnvString("DATABASE_URL")
	if err != nil || dsn == "" {
		return errors.New("WHATSAPP_BRIDGE_ENABLED requires DATABASE_URL")
	}

	container, err := sqlstore.New(ctx, "pgx", dsn, nil)
	if err != nil {
		return err
	}
	if err := container.Upgrade(ctx); err != nil {
		return err
	}
	datastore = container

	store.DeviceProps.Os = proto.String(runtime.GOOS)
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	store.DeviceProps.RequireFullSync = proto.Bool(false)

	log.With("wabridge").Info("WhatsApp bridge ready")
	return nil
}

// SetSessionHook wires lifecycle notifications. Optional.
func SetSessionHook(h SessionHook) {
	sessionHook = h
}

// Enabled reports whether Configure activated the bridge.
func Enabled() bool {
	return enabled
}

func getClient(sessionID string) *whatsmeow.Client {
	clientsMu.RLock()
	defer clientsMu.RUnlock()
	return clients[sessionID]
}

func setClient(sessionID string, client *whatsmeow.Client) {
	clientsMu.Lock()
	clients[sessionID] = client
	clientsMu.Unlock()
}

func deleteClient(sessionID string) {
	clientsMu.Lock()
	delete(clients, sessionID)
	clientsMu.Unlock()
}

// ClientsLen is used by the admin stats endpoint.
func ClientsLen() int {
	clientsMu.RLock()
	defer clientsMu.RUnlock()
	return len(clients)
}

func initClient(sessionID string, clientID string) *whatsmeow.Client {
	if client := getClient(sessionID); client != nil {
		return client
	}

	device := datastore.NewDevice()
	client := whatsmeow.NewClient(device, nil)
	client.EnableAutoReconnect = true
	client.AutoTrustIdentity = true
	client.AddEventHandler(handleEvents(sessionID, clientID))

	setClient(sessionID, client)
	return client
}

func handleEvents(sessionID string, clientID string) func(interface{}) {
	return func(evt interface{}) {
		switch e := evt.(type) {
		case *events.Connected:
			client := getClient(sessionID)
			if client == nil || client.Store.ID == nil {
				return
			}
			profile := session.Profile{
				PushName: client.Store.PushName,
				Phone:    client.Store.ID.User,
				JID:      client.Store.ID.String(),
			}
			if _, err := tracker.MarkAuthenticated(sessionID, profile); err != nil {
				log.ClientOp(clientID, "connected").WithError(err).Warn("Session not in authenticatable state")
				return
			}
			log.ClientOp(clientID, "connected").Info("Session authenticated via bridge")
			if sessionHook != nil {
				sessionHook(context.Background(), clientID, sessionID, true)
			}
		case *events.LoggedOut:
			log.ClientOp(clientID, "logged_out").Warn("Client logged out remotely")
			if client := getClient(sessionID); client != nil {
				client.Disconnect()
			}
			deleteClient(sessionID)
			_ = tracker.Disconnect(sessionID)
			if sessionHook != nil {
				sessionHook(context.Background(), clientID, sessionID, false)
			}
		case *events.StreamReplaced:
			log.ClientOp(clientID, "stream_replaced").Warn("Client stream replaced by another connection")
			if client := getClient(sessionID); client != nil {
				client.Disconnect()
			}
			deleteClient(sessionID)
			_ = tracker.Disconnect(sessionID)
		case *events.Message:
			if sink == nil || e.Info.IsFromMe {
				return
			}
			text := extractText(e)
			if text == "" {
				return
			}
			sink(context.Background(), clientID, e.Info.Sender.User, text, e.Info.Timestamp)
		}
	}
}

func extractText(e *events.Message) string {
	if e.Message == nil {
		return ""
	}
	if conv := e.Message.GetConversation(); conv != "" {
		return conv
	}
	return e.Message.GetExtendedTextMessage().GetText()
}

// Login pairs a fresh device for the session: it walks the tracker to
// qr_pending with the real pairing code and lets the Connected event finish
// the transition to connected.
func Login(sessionID string, clientID string) (session.Session, error) {
	if !enabled {
		return session.Session{}, errors.New("whatsapp bridge is not enabled")
	}

	if _, err := tracker.Begin(sessionID, clientID); err != nil {
		return session.Session{}, err
	}

	client := initClient(sessionID, clientID)
	client.Disconnect()

	if client.Store.ID != nil {
		// Device already paired; reconnect and let events drive the tracker.
		if err := client.Connect(); err != nil {
			return session.Session{}, err
		}
		return tracker.Get(sessionID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), qrChannelWaitTimeout)

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		cancel()
		return session.Session{}, err
	}
	if err := client.Connect(); err != nil {
		cancel()
		return session.Session{}, err
	}

	qr, timeout, err := waitForQR(ctx, qrChan)
	if err != nil {
		cancel()
		return session.Session{}, err
	}

	s, err := tracker.SetQRPending(sessionID, qr, timeout)
	if err != nil {
		cancel()
		return session.Session{}, err
	}

	// Drain the remaining channel events so pairing outcomes get logged;
	// the Connected event handler performs the actual state transition.
	go func() {
		defer cancel()
		for evt := range qrChan {
			if evt.Event == whatsmeow.QRChannelSuccess.Event {
				log.ClientOp(clientID, "qr_scan").Info("QR pairing succeeded")
				return
			}
		}
	}()

	return s, nil
}

func waitForQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) (string, time.Duration, error) {
	select {
	case <-ctx.Done():
		return "", 0, ctx.Err()
	case evt, ok := <-qrChan:
		if !ok {
			return "", 0, errors.New("whatsapp qr channel closed before delivering a code")
		}
		switch evt.Event {
		case "code":
			png, err := qrCode.Encode(evt.Code, qrCode.Medium, 256)
			if err != nil {
				return "", 0, err
			}
			return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), evt.Timeout, nil
		case "error":
			if evt.Error != nil {
				return "", 0, evt.Error
			}
			return "", 0, errors.New("whatsapp qr channel reported an unspecified error")
		default:
			return "", 0, errors.New("whatsapp qr channel entered an unexpected state")
		}
	}
}

// Logout tears the bridged client down and removes the session.
func Logout(sessionID string) error {
	client := getClient(sessionID)
	if client == nil {
		return nil
	}

	if client.IsConnected() && client.IsLoggedIn() {
		ctx, cancel := context.WithTimeout(context.Background(), logoutRequestTimeout)
		defer cancel()
		if err := client.Logout(ctx); err != nil {
			client.Disconnect()
		}
	} else {
		client.Disconnect()
	}

	deleteClient(sessionID)
	return nil
}

// Shutdown disconnects every bridged client. Called on graceful stop.
func Shutdown() {
	clientsMu.Lock()
	for id, client := range clients {
		client.Disconnect()
		delete(clients, id)
	}
	clientsMu.Unlock()
}
