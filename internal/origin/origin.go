// Package origin decides whether a declared request origin is allowed to
// write logs for a project. The check is a browser-CORS-abuse mitigation,
// not an authentication mechanism: requests without any declared origin
// (server-side SDKs, curl) are always allowed.
package origin

import (
	"net/url"
	"strings"
)

// IsAllowed reports whether declared matches any of the project's origin
// patterns. An empty declared origin is allowed unconditionally. A pattern
// matches when it is "*", when it ends with "*" and the normalized origin
// starts with the prefix before the "*", or when it equals the normalized
// origin exactly.
func IsAllowed(declared string, patterns []string) bool {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return true
	}
	normalized := Normalize(declared)
	for _, pattern := range patterns {
		if Matches(normalized, pattern) {
			return true
		}
	}
	return false
}

// Matches evaluates a single pattern against an already-normalized origin.
func Matches(normalized, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(normalized, strings.TrimSuffix(pattern, "*"))
	}
	return normalized == pattern
}

// Normalize reduces a declared origin to scheme://host[:port], stripping any
// path, query or fragment. Referer headers carry full URLs, so this makes
// them comparable to configured origin patterns. Values that do not parse as
// a URL are returned trimmed and unchanged.
func Normalize(declared string) string {
	declared = strings.TrimSpace(declared)
	parsed, err := url.Parse(declared)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return declared
	}
	return parsed.Scheme + "://" + parsed.Host
}
