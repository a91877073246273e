// Package remoteuser extracts the user name that the front web server asserts
// for a request, e.g. after basic-auth or SSO.
//
// Names are never validated here. Whether a name belongs to a real account is
// decided later by the application authenticating the request.
package remoteuser

import (
	"net/http"
	"strings"
)

// Source returns a candidate remote user name for a request, or the empty string.
type Source func(r *http.Request) string

// Header reads the remote user from a request header set by the web server.
func Header(name string) Source {
	return func(r *http.Request) string {
		return r.Header.Get(name)
	}
}

// BasicAuth reads the user name of HTTP basic authentication credentials.
// The password is ignored.
func BasicAuth(r *http.Request) string {
	username, _, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	return username
}

// DefaultSources lists the places web servers commonly put the remote user,
// in order of precedence.
func DefaultSources() []Source {
	return []Source{
		Header("X-Remote-User"),
		Header("Remote-User"),
		Header("Redirect-Remote-User"),
		BasicAuth,
	}
}

type Helper struct {
	// Sources are tried in order. DefaultSources are used if empty.
	Sources []Source
	// Remove a trailing `@domain` from the name.
	StripDomain bool
	// Remove a leading `DOMAIN\` from the name.
	StripPrefix bool
	Lowercase   bool
}

// RemoteUser returns the first non-empty, normalized remote user name found.
func (h Helper) RemoteUser(r *http.Request) string {
	sources := h.Sources
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	for _, source := range sources {
		if name := h.normalize(source(r)); name != "" {
			return name
		}
	}
	return ""
}

func (h Helper) normalize(name string) string {
	name = strings.TrimSpace(name)
	if h.StripPrefix {
		if i := strings.LastIndex(name, `\`); i != -1 {
			name = name[i+1:]
		}
	}
	if h.StripDomain {
		if i := strings.LastIndex(name, "@"); i != -1 {
			name = name[:i]
		}
	}
	if h.Lowercase {
		name = strings.ToLower(name)
	}
	return name
}
