package events

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const tokenBytes = 32

// newToken returns a URL-safe, unpadded random RSVP token.
func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// organizerZone is where offset-less start times are interpreted (America/Sao_Paulo, no DST).
var organizerZone = time.FixedZone("UTC-3", -3*60*60)

var startsAtLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseStartsAt accepts RFC 3339 or a local date-time without offset, which is read as UTC-3.
func ParseStartsAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range startsAtLayouts {
		if t, err := time.ParseInLocation(layout, s, organizerZone); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized start time %q", s)
}
