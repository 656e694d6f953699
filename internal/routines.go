package internal

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zapboard/whatsapp-inbox-api/pkg/env"
	"github.com/zapboard/whatsapp-inbox-api/pkg/log"
	"github.com/zapboard/whatsapp-inbox-api/pkg/storage"
)

// Routines registers the recurring maintenance jobs. Specs use the
// robfig/cron six-field format with a seconds column.
func Routines(c *cron.Cron) {
	log.Print(nil).Info("Running Routine Tasks")

	// Expired QR sessions are marked by per-session timers; this sweep just
	// drops the leftovers after the retention window.
	retention := env.GetEnvDurationOrDefault("SESSION_EXPIRED_RETENTION", 5*time.Minute)
	_, err := c.AddFunc("*/30 * * * * *", func() {
		if removed := tracker.SweepExpired(retention); removed > 0 {
			log.With("routines").Info("Swept expired sessions")
		}
	})
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to add session sweep cron job")
	}

	if env.GetEnvBoolOrDefault("WEBHOOK_STATS_REFRESH_ENABLED", true) {
		_, err = c.AddFunc("0 */5 * * * *", refreshWebhookStats)
		if err != nil {
			log.Print(nil).WithError(err).Error("Failed to add webhook stats refresh cron job")
		}
	}

	if evolutionClient != nil {
		_, err = c.AddFunc("0 0 * * * *", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if !evolutionClient.Health(ctx) {
				log.With("routines").Warn("Evolution API health probe failed")
			}
		})
		if err != nil {
			log.Print(nil).WithError(err).Error("Failed to add Evolution health probe cron job")
		}
	}

	c.Start()
}

func refreshWebhookStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store := storage.GetStore()
	webhooks, err := store.ListAllWebhooks(ctx)
	if err != nil {
		log.With("routines").WithError(err).Error("Failed to list webhooks for stats refresh")
		return
	}

	refreshed := 0
	for _, w := range webhooks {
		count, last, err := store.MessageStats(ctx, w.ID)
		if err != nil {
			log.With("routines").WithError(err).Warn("Stats refresh failed for webhook " + w.ID)
			continue
		}
		if count == w.MessageCount {
			continue
		}
		if err := store.SetWebhookStats(ctx, w.ID, count, last); err != nil {
			log.With("routines").WithError(err).Warn("Stats write failed for webhook " + w.ID)
			continue
		}
		refreshed++
	}
	if refreshed > 0 {
		log.With("routines").Info("Refreshed webhook stats")
	}
}
