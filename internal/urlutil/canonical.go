// Package urlutil normalizes the URLs of monitored sites.
package urlutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var errNotHTTP = errors.New("url must be an absolute http or https url")

// Canonicalize returns the canonical form of an http(s) site URL: scheme
// and host lowercased, default ports stripped, fragment removed. The path
// and query are kept because the probe requests them as given.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", errNotHTTP
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errNotHTTP
	}
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443") {
		u.Host = strings.TrimSuffix(u.Host, ":"+u.Port())
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// TLSAddress returns the lowercased host of a site URL, with ":port"
// appended when the URL names a port other than 443. A bare domain without
// a scheme is accepted.
func TLSAddress(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", errors.New("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	if port := u.Port(); port != "" && port != "443" {
		return net.JoinHostPort(host, port), nil
	}
	return host, nil
}
