package session

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
	qrCode "github.com/skip2/go-qrcode"
)

const defaultQRTTL = 60 * time.Second

// Tracker is the single session state machine for the whole process. All
// transitions are serialized by mu, so a firing expiry timer and an
// authentication event cannot interleave their read-modify-write against the
// store; whichever acquires the lock second sees the new status and backs
// off. QR expiry timers are cancelled on authentication and on disconnect so
// they can never fire against a reused session id.
type Tracker struct {
	store Store
	qrTTL time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTracker(store Store, qrTTL time.Duration) *Tracker {
	if qrTTL <= 0 {
		qrTTL = defaultQRTTL
	}
	return &Tracker{
		store:  store,
		qrTTL:  qrTTL,
		timers: make(map[string]*time.Timer),
	}
}

// GenerateQR encodes a payload as a PNG data URL.
func GenerateQR(payload string) (string, error) {
	png, err := qrCode.Encode(payload, qrCode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Create registers a session and walks it to qr_pending with a generated
// QR payload. A colliding id returns the existing session untouched.
func (t *Tracker) Create(id string, clientID string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.store.Get(id); ok {
		return existing, nil
	}

	t.beginLocked(id, clientID)

	qr, err := GenerateQR("zapboard:" + id + ":" + uuid.NewString())
	if err != nil {
		t.store.Delete(id)
		return Session{}, err
	}

	return t.setQRPendingLocked(id, qr, t.qrTTL)
}

// Begin registers a session in connecting state without a QR. The bridge
// uses this before it has a real pairing code to show.
func (t *Tracker) Begin(id string, clientID string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.store.Get(id); ok {
		return existing, nil
	}
	return t.beginLocked(id, clientID), nil
}

func (t *Tracker) beginLocked(id string, clientID string) Session {
	now := time.Now()
	s := Session{
		ID:        id,
		ClientID:  clientID,
		Status:    StatusConnecting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.store.Set(s)
	return s
}

// SetQRPending attaches a QR payload and arms the expiry timer. Allowed
// from connecting and from expired (re-request after timeout).
func (t *Tracker) SetQRPending(id string, qr string, ttl time.Duration) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setQRPendingLocked(id, qr, ttl)
}

func (t *Tracker) setQRPendingLocked(id string, qr string, ttl time.Duration) (Session, error) {
	if ttl <= 0 {
		ttl = t.qrTTL
	}

	s, ok := t.store.Get(id)
	if !ok {
		return Session{}, ErrNotFound
	}
	if s.Status == StatusExpired {
		// Re-request path: expired → connecting → qr_pending.
		s.Status = StatusConnecting
	}
	if !canTransition(s.Status, StatusQRPending) {
		return Session{}, ErrInvalidTransition
	}

	expiresAt := time.Now().Add(ttl)
	s.Status = StatusQRPending
	s.QR = qr
	s.ExpiresAt = &expiresAt
	s.UpdatedAt = time.Now()
	t.store.Set(s)

	t.armExpiryLocked(id, ttl)
	return s, nil
}

// MarkAuthenticated transitions qr_pending (or connecting, for pairings
// that skip the QR snapshot) to connected and records the profile.
func (t *Tracker) MarkAuthenticated(id string, profile Profile) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.store.Get(id)
	if !ok {
		return Session{}, ErrNotFound
	}
	if !canTransition(s.Status, StatusConnected) {
		return Session{}, ErrInvalidTransition
	}

	t.cancelExpiryLocked(id)

	s.Status = StatusConnected
	s.QR = ""
	s.ExpiresAt = nil
	s.Profile = &profile
	s.UpdatedAt = time.Now()
	t.store.Set(s)
	return s, nil
}

// Get returns a read-only snapshot.
func (t *Tracker) Get(id string) (Session, error) {
	s, ok := t.store.Get(id)
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// Disconnect cancels any pending expiry and removes the session entirely;
// later lookups return ErrNotFound.
func (t *Tracker) Disconnect(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.store.Get(id); !ok {
		return ErrNotFound
	}
	t.cancelExpiryLocked(id)
	t.store.Delete(id)
	return nil
}

// List returns a snapshot of all sessions, optionally filtered by client.
func (t *Tracker) List(clientID string) []Session {
	var out []Session
	t.store.Range(func(s Session) bool {
		if clientID == "" || s.ClientID == clientID {
			out = append(out, s)
		}
		return true
	})
	return out
}

// CountByStatus is used by the admin stats endpoint.
func (t *Tracker) CountByStatus() map[Status]int {
	counts := make(map[Status]int)
	t.store.Range(func(s Session) bool {
		counts[s.Status]++
		return true
	})
	return counts
}

// SweepExpired removes sessions that have sat in expired state longer than
// retention. Returns the number removed.
func (t *Tracker) SweepExpired(retention time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	var stale []string
	t.store.Range(func(s Session) bool {
		if s.Status == StatusExpired && s.UpdatedAt.Before(cutoff) {
			stale = append(stale, s.ID)
		}
		return true
	})
	for _, id := range stale {
		t.cancelExpiryLocked(id)
		t.store.Delete(id)
	}
	return len(stale)
}

func (t *Tracker) armExpiryLocked(id string, ttl time.Duration) {
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
	}
	t.timers[id] = time.AfterFunc(ttl, func() {
		t.expire(id)
	})
}

func (t *Tracker) cancelExpiryLocked(id string) {
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *Tracker) expire(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.timers, id)

	// The session may have authenticated or disconnected between the timer
	// firing and this callback winning the lock.
	s, ok := t.store.Get(id)
	if !ok || s.Status != StatusQRPending {
		return
	}
	s.Status = StatusExpired
	s.QR = ""
	s.ExpiresAt = nil
	s.UpdatedAt = time.Now()
	t.store.Set(s)
}
