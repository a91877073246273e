package webserverauth

import (
	"net/http"

	"github.com/always-cache/webserver-auth/feature"
	"github.com/always-cache/webserver-auth/request"
	"github.com/always-cache/webserver-auth/session"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// CacheBlockedValue is the placeholder value of the session cookie added to
// requests that need to skip the page cache.
const CacheBlockedValue = "cache_blocked"

// FeatureRegistry tells whether a feature is currently enabled.
type FeatureRegistry interface {
	Exists(name string) bool
}

// SessionOptionsResolver resolves the session settings for a request.
type SessionOptionsResolver interface {
	OptionsFor(r *http.Request) session.Options
}

// RemoteUserExtractor returns the user name asserted by the web server for a request,
// or the empty string for anonymous requests.
type RemoteUserExtractor interface {
	RemoteUser(r *http.Request) string
}

type Config struct {
	Features   FeatureRegistry
	Sessions   SessionOptionsResolver
	RemoteUser RemoteUserExtractor
	// Reports whether the process is running a command-line task
	// instead of serving clients. Nil means serving clients.
	CLI func() bool
	// Logger to use when the request carries none. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Bypass keeps the page cache from answering requests that the web server
// has already authenticated.
//
// A page cache only answers requests without a session cookie. When the web
// server asserts a remote user and the request has no session yet, Bypass adds
// a placeholder session cookie so the request goes all the way to the
// application, which then logs the user in.
type Bypass struct {
	features   FeatureRegistry
	sessions   SessionOptionsResolver
	remoteUser RemoteUserExtractor
	cli        func() bool
	log        *zerolog.Logger
}

func New(config Config) *Bypass {
	return &Bypass{
		features:   config.Features,
		sessions:   config.Sessions,
		remoteUser: config.RemoteUser,
		cli:        config.CLI,
		log:        config.Logger,
	}
}

// Handler wraps next with a Bypass created from config.
func Handler(config Config, next http.Handler) http.Handler {
	return New(config).Middleware(next)
}

// Middleware returns next wrapped with the cache bypass.
// The response is whatever next writes. Nothing is recovered or rewritten.
func (b *Bypass) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.blockCache(r)
		next.ServeHTTP(w, r)
	})
}

// blockCache adds the placeholder session cookie to r if needed.
// It is a no-op when there is no page cache to bypass.
func (b *Bypass) blockCache(r *http.Request) {
	if !b.features.Exists(feature.PageCache) {
		return
	}
	if request.KindOf(r) != request.Main || b.isCLI() {
		return
	}
	// the name is validated later, when the application authenticates the request
	user := b.remoteUser.RemoteUser(r)
	if user == "" {
		return
	}
	opts := b.sessions.OptionsFor(r)
	if session.HasCookie(r, opts.CookieName) {
		return
	}
	r.AddCookie(&http.Cookie{Name: opts.CookieName, Value: CacheBlockedValue})
	b.logger(r).Trace().
		Str("user", user).
		Str("cookie", opts.CookieName).
		Msg("Blocking page cache for remote user")
}

func (b *Bypass) isCLI() bool {
	return b.cli != nil && b.cli()
}

// logger returns the logger from the request context,
// falling back to the configured one.
func (b *Bypass) logger(r *http.Request) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		if b.log != nil {
			return b.log
		}
		return &log.Logger
	}
	return logger
}
