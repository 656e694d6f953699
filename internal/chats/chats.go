package chats

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/zapboard/whatsapp-inbox-api/pkg/evolution"
	"github.com/zapboard/whatsapp-inbox-api/pkg/router"
	"github.com/zapboard/whatsapp-inbox-api/pkg/sentiment"
)

var client *evolution.Client

// Configure wires the Evolution API client. A nil client keeps the routes
// registered but answers 502 so callers see the upstream is unconfigured.
func Configure(c *evolution.Client) {
	client = c
}

const (
	defaultDays  = 7
	maxDays      = 90
	fetchLimit   = 500
	previewRunes = 80
)

// Chat is one aggregated conversation.
type Chat struct {
	JID               string    `json:"jid"`
	Name              string    `json:"name,omitempty"`
	MessageCount      int       `json:"message_count"`
	Positive          int       `json:"positive"`
	Negative          int       `json:"negative"`
	Neutral           int       `json:"neutral"`
	MeanScore         float64   `json:"mean_score"`
	DominantSentiment string    `json:"dominant_sentiment"`
	LastMessage       string    `json:"last_message"`
	LastMessageAt     time.Time `json:"last_message_at"`
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "..."
}

// aggregateChats groups messages by remote JID and scores each text once.
// Messages sent by the instance itself count toward volume but carry no
// sender name.
func aggregateChats(messages []evolution.ChatMessage, since time.Time) []Chat {
	byJID := make(map[string]*Chat)

	for _, msg := range messages {
		at := time.Unix(msg.MessageTimestamp, 0)
		if at.Before(since) {
			continue
		}

		text := msg.Text()
		if text == "" {
			continue
		}

		chat, ok := byJID[msg.Key.RemoteJID]
		if !ok {
			chat = &Chat{JID: msg.Key.RemoteJID}
			byJID[msg.Key.RemoteJID] = chat
		}

		scored := sentiment.Analyze(text)
		switch scored.Sentiment {
		case sentiment.LabelPositive:
			chat.Positive++
		case sentiment.LabelNegative:
			chat.Negative++
		default:
			chat.Neutral++
		}
		chat.MeanScore += scored.Score
		chat.MessageCount++

		if !msg.Key.FromMe && msg.PushName != "" {
			chat.Name = msg.PushName
		}
		if at.After(chat.LastMessageAt) {
			chat.LastMessageAt = at
			chat.LastMessage = preview(text)
		}
	}

	chats := make([]Chat, 0, len(byJID))
	for _, chat := range byJID {
		chat.MeanScore = chat.MeanScore / float64(chat.MessageCount)
		switch {
		case chat.Positive > chat.Negative && chat.Positive > chat.Neutral:
			chat.DominantSentiment = string(sentiment.LabelPositive)
		case chat.Negative > chat.Positive && chat.Negative > chat.Neutral:
			chat.DominantSentiment = string(sentiment.LabelNegative)
		default:
			chat.DominantSentiment = string(sentiment.LabelNeutral)
		}
		chats = append(chats, *chat)
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].LastMessageAt.After(chats[j].LastMessageAt)
	})
	return chats
}

// GetChats
// @Summary     List Evolution Chats
// @Description Fetch messages from Evolution API and aggregate per chat
// @Tags        Evolution
// @Produce     json
// @Param       instance_name query string true "Evolution instance name"
// @Param       days query int false "Lookback window in days (default 7)"
// @Success     200
// @Failure     400
// @Failure     502
// @Router      /evolution/chats [get]
func GetChats(c *fiber.Ctx) error {
	if client == nil {
		return router.ResponseBadGateway(c, "Evolution API is not configured")
	}

	instanceName := c.Query("instance_name")
	if instanceName == "" {
		instanceName = c.Query("instanceName")
	}
	if instanceName == "" {
		return router.ResponseBadRequest(c, "instance_name is required")
	}

	days := c.QueryInt("days", defaultDays)
	if days <= 0 {
		days = defaultDays
	}
	if days > maxDays {
		days = maxDays
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	messages, err := client.FindMessages(ctx, instanceName, fetchLimit)
	if err != nil {
		return router.ResponseBadGateway(c, "Evolution API request failed: "+err.Error())
	}

	since := time.Now().AddDate(0, 0, -days)
	chats := aggregateChats(messages, since)

	return router.ResponseSuccessWithData(c, "Chats retrieved successfully", fiber.Map{
		"instance": instanceName,
		"days":     days,
		"chats":    chats,
	})
}
