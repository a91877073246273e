package pagecache

import (
	"fmt"
	"strings"
)

// Name of the cache in the Cache-Status header.
const cacheName = "webserver-auth"

type FwdReason string

// Forward reasons, as per RFC 9211 section 2.2.
const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"
	// The request method's semantics require the request to be forwarded.
	FwdReasonMethod FwdReason = "method"
	// The cache did not contain any responses that matched the request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"
	// The request's semantics did not allow a stored response to be used.
	FwdReasonRequest FwdReason = "request"
)

// CacheStatus is the value of a Cache-Status header entry.
type CacheStatus struct {
	hit        bool
	FwdReason  FwdReason
	Stored     bool
	TimeToLive int
	Detail     string
}

func (cs *CacheStatus) Hit() {
	cs.hit = true
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.hit = false
	cs.FwdReason = reason
}

func (cs CacheStatus) String() string {
	parts := []string{cacheName}
	if cs.hit {
		parts = append(parts, "hit")
		if cs.TimeToLive > 0 {
			parts = append(parts, fmt.Sprintf("ttl=%d", cs.TimeToLive))
		}
	} else if cs.FwdReason != "" {
		parts = append(parts, "fwd="+string(cs.FwdReason))
		if cs.Stored {
			parts = append(parts, "stored")
		}
	}
	if cs.Detail != "" {
		parts = append(parts, fmt.Sprintf("detail=%q", cs.Detail))
	}
	return strings.Join(parts, "; ")
}
