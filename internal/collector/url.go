package collector

import (
	"fmt"
	"net/url"
	"strings"
)

// Domain extracts the lowercase hostname from a raw URL. Rate quotas and
// cookie scoping key off this value.
func Domain(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return strings.ToLower(host), nil
}

// CanonicalizeURL normalizes a raw URL for fetching: strips fragments and
// defaults scheme and path.
func CanonicalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	parsed.Fragment = ""
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return parsed.String(), nil
}
