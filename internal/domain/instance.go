package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// Instance is one upstream extraction API server.
//
// The configured list of instances is ordered and immutable: it is built once
// at startup and only read afterwards. Two instances never share a URL.
type Instance struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// URL is the normalized base address of the instance, without trailing slash.
	// Example: https://cobalt-api.meowing.de
	URL string

	// ─────────────────────────────
	// Presentation
	// ─────────────────────────────

	// Name is a short label used in logs and /infra.
	// Defaults to the URL hostname.
	// Example: cobalt-api.meowing.de
	Name string
}

// NewInstance validates and normalizes a base URL into an Instance.
// Only absolute http(s) URLs with a host are accepted.
func NewInstance(rawURL, name string) (Instance, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return Instance{}, fmt.Errorf("instance url is empty")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return Instance{}, fmt.Errorf("failed to parse instance url %q: %w", trimmed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Instance{}, fmt.Errorf("instance url %q must use http or https", trimmed)
	}
	if u.Host == "" {
		return Instance{}, fmt.Errorf("instance url %q has no host", trimmed)
	}

	u.RawQuery = ""
	u.Fragment = ""
	base := strings.TrimRight(u.String(), "/")

	if strings.TrimSpace(name) == "" {
		name = u.Hostname()
	}

	return Instance{URL: base, Name: name}, nil
}

// Endpoint returns the address the download request is POSTed to.
func (i Instance) Endpoint() string {
	return i.URL + "/"
}
