package webserverauth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/always-cache/webserver-auth/feature"
	"github.com/always-cache/webserver-auth/remoteuser"
	"github.com/always-cache/webserver-auth/request"
	"github.com/always-cache/webserver-auth/session"

	"github.com/go-chi/chi/v5"
)

type fixedUser string

func (u fixedUser) RemoteUser(*http.Request) string {
	return string(u)
}

type env struct {
	pageCache bool
	cli       bool
	user      string
}

func (e env) config() Config {
	features := feature.NewRegistry()
	if e.pageCache {
		features.Enable(feature.PageCache)
	}
	return Config{
		Features:   features,
		Sessions:   session.Configuration{Name: "SESSID"},
		RemoteUser: fixedUser(e.user),
		CLI:        func() bool { return e.cli },
	}
}

// serve runs a request through the bypass and returns the cookies the next handler saw.
func serve(t *testing.T, e env, kind request.Kind, cookies ...*http.Cookie) []*http.Cookie {
	t.Helper()
	var seen []*http.Cookie
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Cookies()
		w.Write([]byte("ok"))
	})
	req := request.WithKind(httptest.NewRequest("GET", "/", nil), kind)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	Handler(e.config(), next).ServeHTTP(rr, req)
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("Body is %s", body)
	}
	return seen
}

func TestNoPageCacheLeavesCookies(t *testing.T) {
	for _, kind := range []request.Kind{request.Main, request.Sub} {
		for _, user := range []string{"", "alice"} {
			if cookies := serve(t, env{user: user}, kind); len(cookies) != 0 {
				t.Fatalf("Cookies added for kind %s user %q: %v", kind, user, cookies)
			}
		}
	}
}

func TestSubRequestLeavesCookies(t *testing.T) {
	for _, pageCache := range []bool{true, false} {
		if cookies := serve(t, env{pageCache: pageCache, user: "alice"}, request.Sub); len(cookies) != 0 {
			t.Fatalf("Cookies added with page cache %v: %v", pageCache, cookies)
		}
	}
}

func TestCLILeavesCookies(t *testing.T) {
	if cookies := serve(t, env{pageCache: true, cli: true, user: "alice"}, request.Main); len(cookies) != 0 {
		t.Fatalf("Cookies added: %v", cookies)
	}
}

func TestAnonymousLeavesCookies(t *testing.T) {
	if cookies := serve(t, env{pageCache: true}, request.Main); len(cookies) != 0 {
		t.Fatalf("Cookies added: %v", cookies)
	}
}

func TestRemoteUserBlocksCache(t *testing.T) {
	cookies := serve(t, env{pageCache: true, user: "alice"}, request.Main)
	if len(cookies) != 1 || cookies[0].Name != "SESSID" || cookies[0].Value != CacheBlockedValue {
		t.Fatalf("Cookies are %v", cookies)
	}
}

func TestRemoteUserKeepsOtherCookies(t *testing.T) {
	cookies := serve(t, env{pageCache: true, user: "alice"}, request.Main,
		&http.Cookie{Name: "theme", Value: "dark"})
	if len(cookies) != 2 {
		t.Fatalf("Cookies are %v", cookies)
	}
	if cookies[0].Name != "theme" || cookies[0].Value != "dark" {
		t.Fatalf("Existing cookie changed: %v", cookies[0])
	}
	if cookies[1].Name != "SESSID" || cookies[1].Value != CacheBlockedValue {
		t.Fatalf("Placeholder cookie is %v", cookies[1])
	}
}

func TestExistingSessionIsNotOverwritten(t *testing.T) {
	for _, value := range []string{"abc123", "", CacheBlockedValue} {
		cookies := serve(t, env{pageCache: true, user: "alice"}, request.Main,
			&http.Cookie{Name: "SESSID", Value: value})
		if len(cookies) != 1 || cookies[0].Value != value {
			t.Fatalf("Cookies are %v, expected SESSID=%s", cookies, value)
		}
	}

	// values net/http does not parse are still existing sessions
	for _, value := range []string{"café", `a\b`} {
		var header []string
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header = r.Header.Values("Cookie")
		})
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Cookie", "SESSID="+value)
		Handler(env{pageCache: true, user: "alice"}.config(), next).ServeHTTP(httptest.NewRecorder(), req)
		if len(header) != 1 || header[0] != "SESSID="+value {
			t.Fatalf("Cookie header is %q, expected SESSID=%s", header, value)
		}
	}
}

func TestResponseIsFromNext(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Next", "yes")
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, "short and stout")
	})
	rr := httptest.NewRecorder()
	Handler(env{pageCache: true, user: "alice"}.config(), next).
		ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusTeapot || rr.Header().Get("X-Next") != "yes" || rr.Body.String() != "short and stout" {
		t.Fatalf("Response changed: %d %v %s", rr.Code, rr.Header(), rr.Body.String())
	}
}

func TestPanicsPropagate(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	defer func() {
		if err := recover(); err != "boom" {
			t.Fatalf("Recovered %v", err)
		}
	}()
	Handler(env{pageCache: true, user: "alice"}.config(), next).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	t.Fatal("Panic was swallowed")
}

func TestChiMiddlewareWithHeaderUser(t *testing.T) {
	var sessionCookie string
	router := chi.NewRouter()
	router.Use(New(Config{
		Features:   feature.NewRegistry(feature.PageCache),
		Sessions:   session.Configuration{},
		RemoteUser: remoteuser.Helper{},
	}).Middleware)
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		opts := session.Configuration{}.OptionsFor(r)
		if c, err := r.Cookie(opts.CookieName); err == nil {
			sessionCookie = c.Value
		}
	})

	req := httptest.NewRequest("GET", "http://example.com/", nil)
	req.Header.Set("X-Remote-User", "alice")
	router.ServeHTTP(httptest.NewRecorder(), req)

	if sessionCookie != CacheBlockedValue {
		t.Fatalf("Session cookie is %q", sessionCookie)
	}
}
