// Package session holds the connection lifecycle of logical WhatsApp
// endpoints. A single tracker instance owns all sessions; handlers and the
// whatsmeow bridge drive transitions through it instead of keeping their
// own registries.
package session

import (
	"errors"
	"time"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusQRPending    Status = "qr_pending"
	StatusConnected    Status = "connected"
	StatusExpired      Status = "expired"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session status transition")
)

// Profile is populated only once a session reaches StatusConnected.
type Profile struct {
	PushName string `json:"push_name"`
	Phone    string `json:"phone"`
	JID      string `json:"jid"`
}

type Session struct {
	ID        string     `json:"id"`
	ClientID  string     `json:"client_id,omitempty"`
	Status    Status     `json:"status"`
	QR        string     `json:"qr,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Profile   *Profile   `json:"profile,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// allowedTransitions is the explicit state machine. Anything not listed is
// rejected with ErrInvalidTransition.
var allowedTransitions = map[Status][]Status{
	StatusDisconnected: {StatusConnecting},
	StatusConnecting:   {StatusQRPending, StatusConnected, StatusDisconnected},
	StatusQRPending:    {StatusConnected, StatusExpired, StatusDisconnected},
	StatusConnected:    {StatusDisconnected},
	StatusExpired:      {StatusConnecting, StatusDisconnected},
}

func canTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
