package events

import (
	"strings"

	"switchboard/internal/domain/usage"
)

// SanitizeUTF8 drops invalid UTF-8 byte sequences so the event encodes cleanly.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}

// sanitizeRecord returns a copy of rec with free-form caller fields cleaned.
func sanitizeRecord(rec *usage.Record) *usage.Record {
	out := *rec
	out.User = SanitizeUTF8(rec.User)
	out.RequestID = SanitizeUTF8(rec.RequestID)
	out.FinishReason = SanitizeUTF8(rec.FinishReason)
	return &out
}
