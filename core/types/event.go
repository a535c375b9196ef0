package types

import (
	"sort"
	"strings"
)

// Event is the flattened form of a ledger event as persisted and exported.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns an attribute value or the empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

// Keys returns the attribute keys in sorted order.
func (e *Event) Keys() []string {
	if e == nil {
		return nil
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the event as "type k=v k=v" with sorted keys.
func (e *Event) String() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Type)
	for _, k := range e.Keys() {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(e.Attributes[k])
	}
	return b.String()
}
