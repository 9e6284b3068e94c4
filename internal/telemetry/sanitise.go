package telemetry

import (
	"net/url"
	"path/filepath"
	"strings"
)

// maxAttributeSize bounds string span attributes
const maxAttributeSize = 4096

// URL query parameters that might contain secrets
var sensitiveQueryParams = map[string]bool{
	"api_key":      true,
	"apikey":       true,
	"token":        true,
	"access_token": true,
	"secret":       true,
	"key":          true,
	"password":     true,
	"auth":         true,
	"signature":    true,
	"sig":          true,
}

// SanitiseURL removes sensitive query parameters and credentials from URLs
func SanitiseURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" {
		return "[INVALID_URL]"
	}

	parsedURL.User = nil

	if parsedURL.RawQuery != "" {
		query := parsedURL.Query()
		for key := range query {
			keyLower := strings.ToLower(key)
			if sensitiveQueryParams[keyLower] || strings.Contains(keyLower, "key") || strings.Contains(keyLower, "token") {
				query.Set(key, "[REDACTED]")
			}
		}
		parsedURL.RawQuery = query.Encode()
	}

	return parsedURL.String()
}

// SanitiseTarget returns what is safe to record about a search target: the
// sanitised URL for url searches and only the base name for file searches.
func SanitiseTarget(mode, target string) string {
	if mode == "file" {
		return filepath.Base(target)
	}
	return SanitiseURL(target)
}

// TruncateString caps s at max bytes
func TruncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
