package textmatch

import (
	"net/url"
	"strings"
)

// CanonicalURL reduces a URL to its duplicate-detection identity: lowercase
// host and path with the scheme, "www." prefix, query string, fragment, and
// trailing slash removed. Two records with the same canonical URL are the
// same opportunity regardless of how their titles were written.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// Tolerate scheme-less input like "example.com/x".
		u, err = url.Parse("https://" + raw)
		if err != nil || u.Host == "" {
			return strings.ToLower(raw)
		}
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	path := strings.ToLower(u.EscapedPath())
	path = strings.TrimSuffix(path, "/")

	return host + path
}
