package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	webserverauth "github.com/always-cache/webserver-auth"
	"github.com/always-cache/webserver-auth/feature"
	"github.com/always-cache/webserver-auth/origin"
	"github.com/always-cache/webserver-auth/pagecache"
	"github.com/always-cache/webserver-auth/remoteuser"
	"github.com/always-cache/webserver-auth/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const healthPath = "/.webserver-auth/health"

type app struct {
	// full handler chain for clients
	router http.Handler
	// chain without the router, used for in-process requests
	chain     http.Handler
	pageCache *pagecache.PageCache
	// target for page cache refreshes
	refreshTarget http.Handler
	features      feature.Registry
	closeCache    func() error
}

// newApp wires up the handler chain:
// router -> cache bypass -> page cache (if enabled) -> origin.
// If cli is true, requests are handled as command-line tasks.
func newApp(config Config, logger zerolog.Logger, cli bool) (*app, error) {
	if config.Origin.URL == "" {
		return nil, fmt.Errorf("origin url not set")
	}
	originURL, err := url.Parse(config.Origin.URL)
	if err != nil {
		return nil, fmt.Errorf("could not parse origin url: %w", err)
	}
	if originURL.Path != "" && originURL.Path != "/" {
		return nil, fmt.Errorf("origins with paths are not supported: %s", originURL)
	}

	a := &app{
		features:   feature.NewRegistry(config.Features...),
		closeCache: func() error { return nil },
	}
	sessions := session.Configuration{
		Name:         config.Session.Name,
		CookieDomain: config.Session.CookieDomain,
	}

	proxy := origin.New(origin.Config{
		URL:    *originURL,
		Host:   config.Origin.Host,
		Logger: &logger,
	})

	bypass := webserverauth.New(webserverauth.Config{
		Features:   a.features,
		Sessions:   sessions,
		RemoteUser: remoteUserHelper(config.RemoteUser),
		CLI:        func() bool { return cli },
		Logger:     &logger,
	})

	var next http.Handler = proxy
	if a.features.Exists(feature.PageCache) {
		cache, closeCache, err := openCache(config.Cache.DB)
		if err != nil {
			return nil, fmt.Errorf("could not open cache: %w", err)
		}
		a.closeCache = closeCache
		a.pageCache = pagecache.New(pagecache.Config{
			Cache:         cache,
			OriginID:      originURL.String(),
			Sessions:      sessions,
			DefaultMaxAge: config.Cache.DefaultMaxAge,
			UpdateTimeout: config.Cache.UpdateTimeout,
			Logger:        &logger,
		})
		next = a.pageCache.Middleware(proxy)
		// refreshes are sub-requests, so the bypass lets them through as is
		a.refreshTarget = bypass.Middleware(proxy)
	}
	a.chain = bypass.Middleware(next)

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(hlog.NewHandler(logger))
	router.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Str("sourceIp", r.RemoteAddr).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Sending response to client")
	}))
	router.Get(healthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	router.Handle("/*", a.chain)
	a.router = router

	return a, nil
}

// startRefresh runs the page cache refresh loop until ctx is done.
// The returned WaitGroup is done once the loop has returned.
func (a *app) startRefresh(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	if a.pageCache == nil {
		return &wg
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.pageCache.Refresh(ctx, a.refreshTarget)
	}()
	return &wg
}

func remoteUserHelper(config RemoteUserConfig) remoteuser.Helper {
	helper := remoteuser.Helper{
		StripDomain: config.StripDomain,
		StripPrefix: config.StripPrefix,
		Lowercase:   config.Lowercase,
	}
	if len(config.Headers) == 0 && config.BasicAuth == nil {
		return helper
	}
	headers := config.Headers
	if len(headers) == 0 {
		headers = []string{"X-Remote-User", "Remote-User", "Redirect-Remote-User"}
	}
	for _, name := range headers {
		helper.Sources = append(helper.Sources, remoteuser.Header(name))
	}
	if config.BasicAuth == nil || *config.BasicAuth {
		helper.Sources = append(helper.Sources, remoteuser.BasicAuth)
	}
	return helper
}

// openCache opens the page cache db. "memory" gives a shared in-memory db.
func openCache(filename string) (pagecache.CacheProvider, func() error, error) {
	if filename == "memory" {
		filename = ""
	}
	cache, err := pagecache.NewSQLiteCache(filename)
	if err != nil {
		return nil, nil, err
	}
	return cache, cache.Close, nil
}
