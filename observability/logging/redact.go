package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets such as API keys and exporter headers.
const RedactedValue = "[REDACTED]"

// Keys that may carry credentials. Everything else is logged as is.
var sensitiveKeys = map[string]struct{}{
	"api_key":       {},
	"authorization": {},
	"client":        {},
	"otlp_headers":  {},
}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns a string attribute, masking non-empty values of
// sensitive keys.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
