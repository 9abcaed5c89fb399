package resolver

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidURL rejects input that is not an absolute http/https URL. It is
// a client-side failure and must be raised before any network call.
var ErrInvalidURL = errors.New("please provide a valid http/https URL")

// knownVideoHosts are domains the inference service resolves natively, so
// the resolver passes their URLs through without probing or scraping.
var knownVideoHosts = []string{"youtube.com", "youtu.be"}

// IsHTTPURL reports whether raw parses as an absolute http or https URL.
func IsHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

// IsKnownVideoHost reports whether the URL's host is on the pass-through
// allow-list. Subdomains (www, m, music) count.
func IsKnownVideoHost(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	for _, known := range knownVideoHosts {
		if host == known || strings.HasSuffix(host, "."+known) {
			return true
		}
	}
	return false
}
