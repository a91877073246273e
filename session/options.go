package session

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Options holds the session cookie settings that apply to a request.
type Options struct {
	// Name of the session cookie.
	CookieName   string
	CookieDomain string
	Secure       bool
	HTTPOnly     bool
	SameSite     http.SameSite
}

// Configuration resolves session options per request.
// The zero value derives the cookie name from the request host.
type Configuration struct {
	// Fixed cookie name. If empty, the name is derived from the cookie domain.
	Name string
	// Cookie domain. If empty, the request host is used.
	CookieDomain string
}

// OptionsFor returns the session options for the given request.
//
// A derived cookie name is `SESS` followed by the first 32 hex characters of the
// SHA-256 hash of the cookie domain. Requests over HTTPS get an `SSESS` prefix,
// so that secure and insecure sessions never share a cookie.
func (c Configuration) OptionsFor(r *http.Request) Options {
	secure := isSecure(r)
	domain := c.CookieDomain
	if domain == "" {
		domain = requestHost(r)
	}
	name := c.Name
	if name == "" {
		name = derivedName(domain, secure)
	}
	return Options{
		CookieName:   name,
		CookieDomain: domain,
		Secure:       secure,
		HTTPOnly:     true,
		SameSite:     http.SameSiteLaxMode,
	}
}

// HasSessionCookie reports whether the request carries the session cookie.
func HasSessionCookie(r *http.Request, opts Options) bool {
	return HasCookie(r, opts.CookieName)
}

// HasCookie reports whether the request carries a cookie with the given name.
//
// Only the name is looked at. Unlike r.Cookie, a cookie whose value net/http
// considers invalid (e.g. non-ASCII text) still counts as present.
func HasCookie(r *http.Request, name string) bool {
	if name == "" {
		return false
	}
	for _, line := range r.Header.Values("Cookie") {
		for _, part := range strings.Split(line, ";") {
			n, _, _ := strings.Cut(strings.TrimSpace(part), "=")
			if strings.TrimSpace(n) == name {
				return true
			}
		}
	}
	return false
}

func derivedName(domain string, secure bool) string {
	prefix := "SESS"
	if secure {
		prefix = "SSESS"
	}
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(strings.TrimPrefix(domain, "."))))
	return prefix + hash[:32]
}

func requestHost(r *http.Request) string {
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

func isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
