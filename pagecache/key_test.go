package pagecache

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestRequestFromKey(t *testing.T) {
	keyer := NewKeyer("http://origin.localhost:8080")
	r, _ := http.NewRequest("GET", "http://dev.localhost/page?q=1", nil)
	key := keyer.Key(r)
	req, err := keyer.RequestFromKey(key)
	if err != nil {
		t.Fatalf("%s: %s", key, err)
	}
	if url := req.URL.String(); url != "/page?q=1" {
		t.Fatalf("Created request url for key %s is %s", key, url)
	}
}

func TestOriginPrefixIncludesOrigin(t *testing.T) {
	origin := "this-is-the-origin"
	keyer := NewKeyer(origin)
	if !strings.Contains(keyer.OriginPrefix, origin) {
		t.Fatalf("OriginPrefix is %s", keyer.OriginPrefix)
	}
}

func TestRequestFromKeyErrors(t *testing.T) {
	keyer := NewKeyer("origin")
	head, _ := http.NewRequest("HEAD", "/", nil)
	if _, err := keyer.RequestFromKey(keyer.Key(head)); !errors.Is(err, ErrMethodNotSupported) {
		t.Fatalf("Error is %v", err)
	}
	if _, err := keyer.RequestFromKey("other:GET:/"); !errors.Is(err, ErrMalformedKey) {
		t.Fatalf("Error is %v", err)
	}
	if _, err := keyer.RequestFromKey("origin:GET"); !errors.Is(err, ErrMalformedKey) {
		t.Fatalf("Error is %v", err)
	}
}

func TestParseCacheControl(t *testing.T) {
	cc := ParseCacheControl(`public, max-age=60,s-maxage="120", No-Cache`)
	if maxAge, ok := cc.MaxAge(); !ok || maxAge.Seconds() != 120 {
		t.Fatalf("Max age is %s", maxAge)
	}
	if !cc.Has("no-cache") || !cc.Has("public") {
		t.Fatalf("Directives are %v", cc.m)
	}
	if _, ok := ParseCacheControl("").MaxAge(); ok {
		t.Fatal("Empty header has max age")
	}
}

func TestCacheStatusString(t *testing.T) {
	var cs CacheStatus
	cs.Forward(FwdReasonUriMiss)
	cs.Stored = true
	if s := cs.String(); s != "webserver-auth; fwd=uri-miss; stored" {
		t.Fatalf("Cache-Status is %s", s)
	}
	cs = CacheStatus{TimeToLive: 30}
	cs.Hit()
	if s := cs.String(); s != "webserver-auth; hit; ttl=30" {
		t.Fatalf("Cache-Status is %s", s)
	}
}
