package internal

import (
	"context"
	"time"

	"github.com/zapboard/whatsapp-inbox-api/internal/admin"
	"github.com/zapboard/whatsapp-inbox-api/internal/chats"
	"github.com/zapboard/whatsapp-inbox-api/internal/ingest"
	"github.com/zapboard/whatsapp-inbox-api/internal/sessions"
	"github.com/zapboard/whatsapp-inbox-api/internal/webhook"
	"github.com/zapboard/whatsapp-inbox-api/internal/webhooks"
	"github.com/zapboard/whatsapp-inbox-api/pkg/env"
	"github.com/zapboard/whatsapp-inbox-api/pkg/evolution"
	"github.com/zapboard/whatsapp-inbox-api/pkg/log"
	"github.com/zapboard/whatsapp-inbox-api/pkg/session"
	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
	"github.com/zapboard/whatsapp-inbox-api/pkg/wabridge"
)

var (
	tracker         *session.Tracker
	engine          *webhook.Engine
	evolutionClient *evolution.Client
)

func openStore(ctx context.Context) (storage.Store, error) {
	storageType := env.GetEnvStringOrDefault("STORAGE_TYPE", "")
	dsn, _ := env.GetEnvString("DATABASE_URL")

	if storageType == "memory" || (storageType == "" && dsn == "") {
		log.Print(nil).Warn("Using in-memory storage; data is lost on restart")
		return storage.NewMemoryStore(), nil
	}
	return storage.OpenPostgres(ctx, dsn)
}

// Startup wires storage, the session tracker, the delivery engine, and the
// optional upstreams. Must run before Routes.
func Startup() {
	log.Print(nil).Info("Running Startup Tasks")

	ctx := context.Background()

	store, err := openStore(ctx)
	if err != nil {
		log.Print(nil).WithError(err).Fatal("Failed to open storage")
	}
	storage.SetStore(store)

	qrTTL := env.GetEnvDurationOrDefault("SESSION_QR_TTL", 60*time.Second)
	tracker = session.NewTracker(session.NewMemoryStore(), qrTTL)
	sessions.Configure(tracker)

	engine = webhook.NewEngine(store)
	ingest.SetEngine(engine)
	webhooks.Configure(engine)

	evolutionClient, err = evolution.NewClientFromEnv()
	if err != nil {
		log.Print(nil).Info("Evolution API proxy disabled: " + err.Error())
		evolutionClient = nil
	}
	chats.Configure(evolutionClient)
	admin.Configure(tracker, evolutionClient)

	if err := wabridge.Configure(ctx, tracker, bridgeMessageSink); err != nil {
		log.Print(nil).WithError(err).Fatal("Failed to configure WhatsApp bridge")
	}
	wabridge.SetSessionHook(bridgeSessionHook)

	log.Print(nil).Info("Startup complete")
}

func bridgeMessageSink(ctx context.Context, clientID string, from string, text string, at time.Time) {
	_, err := ingest.Ingest(ctx, ingest.Input{
		ClientID:  clientID,
		From:      from,
		Message:   text,
		Platform:  "whatsapp",
		Timestamp: at,
	})
	if err != nil {
		log.ClientOp(clientID, "bridge_ingest").WithError(err).Warn("Dropped bridged message")
	}
}

func bridgeSessionHook(ctx context.Context, clientID string, sessionID string, connected bool) {
	eventType := webhook.EventSessionDisconnected
	if connected {
		eventType = webhook.EventSessionConnected
	}
	ingest.DispatchSessionEvent(ctx, clientID, eventType, sessionID)
}

// Shutdown drops bridged clients first so no more messages flow into the
// delivery engine, then stops the engine and closes storage. Called from
// main on graceful stop.
func Shutdown() {
	wabridge.Shutdown()
	if engine != nil {
		engine.Shutdown()
	}
	if store := storage.GetStore(); store != nil {
		if err := store.Close(); err != nil {
			log.Print(nil).WithError(err).Warn("Error closing storage")
		}
	}
}
