package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
)

const MaxMessageGraphemes = 4096

var (
	phonePattern    = regexp.MustCompile(`^[1-9][0-9]{5,15}$`)
	clientIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

// ValidatePhone ensures international format (no leading 0, digits only, length 6-16).
func ValidatePhone(phone string) error {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return errors.New("phone number cannot be empty")
	}
	if strings.HasPrefix(trimmed, "+") {
		trimmed = trimmed[1:]
	}
	if strings.HasPrefix(trimmed, "0") {
		return errors.New("phone number must be in international format without leading 0")
	}
	if !phonePattern.MatchString(trimmed) {
		return errors.New("phone number must be digits only and at least 6 characters")
	}
	return nil
}

// ValidateClientID rejects identifiers that would not survive as URL path
// segments or storage keys.
func ValidateClientID(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return errors.New("client_id is required")
	}
	if !clientIDPattern.MatchString(clientID) {
		return errors.New("client_id must be alphanumeric with - or _ and at most 64 characters")
	}
	return nil
}

// ValidateMessageText checks presence and grapheme length. Counting
// graphemes instead of bytes keeps emoji-heavy messages from tripping the
// limit early.
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("message cannot be empty")
	}
	if uniseg.GraphemeClusterCount(text) > MaxMessageGraphemes {
		return errors.New("message exceeds maximum length")
	}
	return nil
}

// ValidateURL ensures a non-empty valid URL when provided.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("url cannot be empty")
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return errors.New("url must be valid")
	}
	return nil
}
