package utils

import "strings"

// NormalizeDomain normalizes a domain to a consistent format: lowercase,
// no scheme, no www prefix, no path, no port.
func NormalizeDomain(raw string) string {
	domain := strings.ToLower(strings.TrimSpace(raw))

	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "www.")

	// Drop path and trailing slash
	if i := strings.Index(domain, "/"); i >= 0 {
		domain = domain[:i]
	}

	// Drop port if present
	if i := strings.Index(domain, ":"); i >= 0 {
		domain = domain[:i]
	}

	return domain
}
