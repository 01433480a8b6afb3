// Package logutil formats upstream HTTP exchanges for debug logs without
// leaking credentials.
package logutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const redacted = "[REDACTED]"

// IsSensitiveLogField returns true when a header or JSON key likely holds
// a credential.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	if normalized == "authorization" || normalized == "proxyauthorization" {
		return true
	}
	for _, marker := range []string{"token", "secret", "password", "apikey", "cookie", "databasekey"} {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// FormatHeaders returns stable, redacted header text: lower-cased names in
// sorted order, one "name=value" pair per header.
func FormatHeaders(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		values := headers.Values(k)
		if IsSensitiveLogField(k) {
			parts = append(parts, fmt.Sprintf("%s=%q", strings.ToLower(k), redacted))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", strings.ToLower(k), strings.Join(values, ", ")))
	}
	return strings.Join(parts, "; ")
}

// FormatBody truncates body to maxBytes and, for JSON content, redacts
// sensitive keys at any depth. Truncated JSON is not parsed.
func FormatBody(contentType string, body []byte, maxBytes int) string {
	if len(body) == 0 {
		return ""
	}
	if maxBytes > 0 && len(body) > maxBytes {
		return strings.ReplaceAll(string(body[:maxBytes]), "\n", "\\n") + " [truncated]"
	}
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return string(body)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return string(body)
	}
	safeJSON, err := json.Marshal(redactJSON(payload))
	if err != nil {
		return string(body)
	}
	return string(safeJSON)
}

func redactJSON(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		for k, child := range typed {
			if IsSensitiveLogField(k) {
				typed[k] = redacted
				continue
			}
			typed[k] = redactJSON(child)
		}
	case []any:
		for i, child := range typed {
			typed[i] = redactJSON(child)
		}
	}
	return v
}
