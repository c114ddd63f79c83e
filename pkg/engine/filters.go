package engine

import (
	"net/mail"
	"strings"
)

// Payload fields searched by keyword prefilters, in order.
var keywordFields = []string{"subject", "body", "text", "message"}

// Payload fields holding the sender, in order of preference.
var senderFields = []string{"from", "sender"}

// matchKeywords reports whether any keyword occurs, case-insensitively, in
// the text fields of the payload.
func matchKeywords(keywords []string, payload map[string]any) bool {
	parts := make([]string, 0, len(keywordFields))

	for _, field := range keywordFields {
		if value, ok := Lookup(payload, field); ok {
			if text, ok := asString(value); ok {
				parts = append(parts, text)
			}
		}
	}

	if len(parts) == 0 {
		return false
	}

	haystack := strings.ToLower(strings.Join(parts, "\n"))

	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(haystack, keyword) {
			return true
		}
	}

	return false
}

// matchSenders reports whether the event sender is in the allowed set.
// Entries starting with "@" allow a whole domain.
func matchSenders(senders []string, payload map[string]any) bool {
	sender, ok := eventSender(payload)
	if !ok {
		return false
	}

	for _, allowed := range senders {
		allowed = strings.ToLower(strings.TrimSpace(allowed))

		switch {
		case allowed == "":
			continue
		case strings.HasPrefix(allowed, "@") && strings.HasSuffix(sender, allowed):
			return true
		case normalizeAddress(allowed) == sender:
			return true
		}
	}

	return false
}

func eventSender(payload map[string]any) (string, bool) {
	for _, field := range senderFields {
		value, ok := Lookup(payload, field)
		if !ok {
			continue
		}

		if text, ok := asString(value); ok && strings.TrimSpace(text) != "" {
			return normalizeAddress(text), true
		}
	}

	return "", false
}

// normalizeAddress lowercases an address and strips a display name such as
// "Jane Doe <jane@example.com>".
func normalizeAddress(raw string) string {
	raw = strings.TrimSpace(raw)

	if address, err := mail.ParseAddress(raw); err == nil {
		raw = address.Address
	}

	return strings.ToLower(raw)
}
