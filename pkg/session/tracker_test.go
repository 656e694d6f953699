package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(qrTTL time.Duration) *Tracker {
	return NewTracker(NewMemoryStore(), qrTTL)
}

func TestCreateWalksToQRPending(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	s, err := tracker.Create("sess-1", "client-1")
	require.NoError(t, err)

	assert.Equal(t, StatusQRPending, s.Status)
	assert.True(t, strings.HasPrefix(s.QR, "data:image/png;base64,"))
	require.NotNil(t, s.ExpiresAt)
	assert.Nil(t, s.Profile)
}

func TestCreateCollidingIDReturnsExisting(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	first, err := tracker.Create("sess-1", "client-1")
	require.NoError(t, err)

	second, err := tracker.Create("sess-1", "client-2")
	require.NoError(t, err)

	assert.Equal(t, first.QR, second.QR)
	assert.Equal(t, "client-1", second.ClientID)
}

func TestFullLifecycle(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	_, err := tracker.Create("sess-1", "client-1")
	require.NoError(t, err)

	s, err := tracker.MarkAuthenticated("sess-1", Profile{
		PushName: "Maria",
		Phone:    "5511999990000",
		JID:      "5511999990000@s.whatsapp.net",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, s.Status)
	assert.Empty(t, s.QR)
	require.NotNil(t, s.Profile)
	assert.Equal(t, "Maria", s.Profile.PushName)

	require.NoError(t, tracker.Disconnect("sess-1"))

	_, err = tracker.Get("sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUnknownSession(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	_, err := tracker.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisconnectUnknownSession(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	assert.ErrorIs(t, tracker.Disconnect("missing"), ErrNotFound)
}

func TestQRExpiry(t *testing.T) {
	tracker := newTestTracker(30 * time.Millisecond)

	_, err := tracker.Create("sess-1", "client-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := tracker.Get("sess-1")
		return err == nil && s.Status == StatusExpired
	}, time.Second, 10*time.Millisecond)

	s, err := tracker.Get("sess-1")
	require.NoError(t, err)
	assert.Empty(t, s.QR)
	assert.Nil(t, s.ExpiresAt)
}

func TestAuthenticationCancelsExpiry(t *testing.T) {
	tracker := newTestTracker(40 * time.Millisecond)

	_, err := tracker.Create("sess-1", "client-1")
	require.NoError(t, err)

	_, err = tracker.MarkAuthenticated("sess-1", Profile{Phone: "5511999990000"})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	s, err := tracker.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, s.Status)
}

func TestExpiryLosingRaceToAuthenticationBacksOff(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	_, err := tracker.Create("sess-1", "client-1")
	require.NoError(t, err)

	_, err = tracker.MarkAuthenticated("sess-1", Profile{Phone: "5511999990000"})
	require.NoError(t, err)

	// Simulate an expiry timer whose callback only wins the lock after the
	// session already authenticated: it must see connected and back off
	// rather than clobber the session to expired.
	tracker.expire("sess-1")

	s, err := tracker.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, s.Status)
}

func TestMarkAuthenticatedTwiceRejected(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	_, err := tracker.Create("sess-1", "client-1")
	require.NoError(t, err)

	_, err = tracker.MarkAuthenticated("sess-1", Profile{})
	require.NoError(t, err)

	_, err = tracker.MarkAuthenticated("sess-1", Profile{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReRequestQRAfterExpiry(t *testing.T) {
	tracker := newTestTracker(20 * time.Millisecond)

	_, err := tracker.Create("sess-1", "client-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := tracker.Get("sess-1")
		return err == nil && s.Status == StatusExpired
	}, time.Second, 10*time.Millisecond)

	s, err := tracker.SetQRPending("sess-1", "data:image/png;base64,abc", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusQRPending, s.Status)
}

func TestSweepExpired(t *testing.T) {
	tracker := newTestTracker(10 * time.Millisecond)

	_, err := tracker.Create("sess-1", "client-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := tracker.Get("sess-1")
		return err == nil && s.Status == StatusExpired
	}, time.Second, 5*time.Millisecond)

	removed := tracker.SweepExpired(0)
	assert.Equal(t, 1, removed)

	_, err = tracker.Get("sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountByStatus(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	_, err := tracker.Create("sess-1", "client-1")
	require.NoError(t, err)
	_, err = tracker.Create("sess-2", "client-1")
	require.NoError(t, err)
	_, err = tracker.MarkAuthenticated("sess-2", Profile{})
	require.NoError(t, err)

	counts := tracker.CountByStatus()
	assert.Equal(t, 1, counts[StatusQRPending])
	assert.Equal(t, 1, counts[StatusConnected])
}
