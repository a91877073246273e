package pagecache

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrMethodNotSupported = errors.New("method not supported")
	ErrMalformedKey       = errors.New("malformed key")
)

const (
	originSeparator = ":"
	methodSeparator = ":"
)

type Keyer struct {
	// Unique identifier for the origin, usually its URL.
	OriginID string
	// Cache key prefix for this origin
	OriginPrefix string
}

func NewKeyer(originID string) Keyer {
	return Keyer{
		OriginID:     originID,
		OriginPrefix: originID + originSeparator,
	}
}

// Key returns the cache key for a request.
// Pages are keyed on method and request URI only: requests with a session
// cookie never reach the cache.
func (k Keyer) Key(r *http.Request) string {
	return k.OriginPrefix + r.Method + methodSeparator + r.URL.RequestURI()
}

// RequestFromKey creates a request equivalent (cache-wise) to the one that
// resulted in the given key. Only GET keys can be turned into requests.
func (k Keyer) RequestFromKey(key string) (*http.Request, error) {
	if !strings.HasPrefix(key, k.OriginPrefix) {
		return nil, fmt.Errorf("%w: key and origin do not match: %s", ErrMalformedKey, key)
	}
	method, uri, found := strings.Cut(strings.TrimPrefix(key, k.OriginPrefix), methodSeparator)
	if !found || uri == "" {
		return nil, fmt.Errorf("%w: %s", ErrMalformedKey, key)
	}
	if method != http.MethodGet {
		return nil, ErrMethodNotSupported
	}
	return http.NewRequest(method, uri, nil)
}
