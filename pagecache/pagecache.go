// Package pagecache is a full-page cache for anonymous traffic.
//
// Only GET and HEAD requests without credentials and without a session
// cookie are served from (and stored to) the cache. Everything else is
// forwarded untouched.
package pagecache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/always-cache/webserver-auth/request"
	"github.com/always-cache/webserver-auth/session"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// SessionOptionsResolver resolves the session settings for a request.
type SessionOptionsResolver interface {
	OptionsFor(r *http.Request) session.Options
}

type Config struct {
	// Storage for cached pages.
	Cache CacheProvider
	// Identifies the origin in cache keys.
	OriginID string
	// Used to find the session cookie of a request.
	Sessions SessionOptionsResolver
	// Lifetime for responses without max-age or s-maxage.
	// Such responses are not stored if zero.
	DefaultMaxAge time.Duration
	// Entries expiring within this duration are refreshed by Refresh.
	// Responses that would not outlive it are not stored.
	UpdateTimeout time.Duration
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

type PageCache struct {
	cache         CacheProvider
	keyer         Keyer
	sessions      SessionOptionsResolver
	defaultMaxAge time.Duration
	updateTimeout time.Duration
	log           zerolog.Logger
}

func New(config Config) *PageCache {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().Str("component", "pagecache").Logger()

	cache := config.Cache
	if cache == nil {
		cache = NewMemCache()
	}
	sessions := config.Sessions
	if sessions == nil {
		sessions = session.Configuration{}
	}

	return &PageCache{
		cache:         cache,
		keyer:         NewKeyer(config.OriginID),
		sessions:      sessions,
		defaultMaxAge: config.DefaultMaxAge,
		updateTimeout: config.UpdateTimeout,
		log:           logger,
	}
}

// Middleware returns next wrapped with the page cache.
func (c *PageCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.serve(w, r, next)
	})
}

func (c *PageCache) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	logger := c.logger(r)
	var cs CacheStatus

	if reason := c.forwardReason(r); reason != "" {
		cs.Forward(reason)
		logger.Trace().Str("fwd", string(reason)).Msg("Not using cache")
		w.Header().Add("Cache-Status", cs.String())
		next.ServeHTTP(w, r)
		return
	}

	key := c.keyer.Key(r)
	if stored, expires, ok, err := c.cache.Get(key); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Could not read from cache")
		cs.Detail = "cache-unavailable"
	} else if ok {
		res, err := bytesToResponse(stored, r)
		if err == nil {
			cs.Hit()
			cs.TimeToLive = int(time.Until(expires).Seconds())
			logger.Trace().Str("key", key).Msg("Cache hit and serving")
			send(w, res, cs, logger)
			return
		}
		// corrupted entries are dropped and the request is served from origin
		logger.Error().Err(err).Str("key", key).Msg("Could not read stored response")
		cs.Detail = "corrupt-entry"
		if err := c.cache.Purge(key); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("Could not purge stored response")
		}
	}

	cs.Forward(FwdReasonUriMiss)
	var maxAge time.Duration
	rw := NewResponseSaver(w)
	// the header is sent before the response is stored
	rw.OnWriteHeader(func(statusCode int, header http.Header) {
		maxAge, cs.Stored = c.lifetime(statusCode, header)
		w.Header().Add("Cache-Status", cs.String())
	})
	next.ServeHTTP(rw, r)
	rw.finish()
	if !cs.Stored {
		logger.Trace().Str("key", key).Int("http-status", rw.StatusCode()).Msg("Non-cacheable response")
		return
	}
	c.put(key, maxAge, rw, logger)
}

// forwardReason returns a non-empty reason if the request must not be served from cache.
func (c *PageCache) forwardReason(r *http.Request) FwdReason {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return FwdReasonMethod
	}
	if r.Header.Get("Authorization") != "" {
		return FwdReasonRequest
	}
	if session.HasSessionCookie(r, c.sessions.OptionsFor(r)) {
		return FwdReasonBypass
	}
	return ""
}

// store saves the recorded response if it is cacheable.
// It returns whether the response was stored.
func (c *PageCache) store(key string, rw *ResponseSaver, logger *zerolog.Logger) bool {
	rw.finish()
	maxAge, ok := c.lifetime(rw.StatusCode(), rw.Header())
	if !ok {
		logger.Trace().Str("key", key).Int("http-status", rw.StatusCode()).Msg("Non-cacheable response")
		return false
	}
	return c.put(key, maxAge, rw, logger)
}

func (c *PageCache) put(key string, maxAge time.Duration, rw *ResponseSaver, logger *zerolog.Logger) bool {
	if rw.Failed() {
		logger.Warn().Str("key", key).Msg("Response not fully written, not caching")
		return false
	}
	expires := time.Now().Add(maxAge)
	if err := c.cache.Put(key, expires, rw.Response()); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		return false
	}
	logger.Trace().Str("key", key).Time("expiry", expires).Msg("Cache write")
	return true
}

// lifetime returns how long a response with the given status and headers may be stored,
// and false if it may not be stored at all.
func (c *PageCache) lifetime(statusCode int, header http.Header) (time.Duration, bool) {
	if statusCode != http.StatusOK {
		return 0, false
	}
	// a response starting a session is personal
	if len(header.Values("Set-Cookie")) > 0 {
		return 0, false
	}
	cc := ParseCacheControl(header.Get("Cache-Control"))
	if cc.Has("no-store") || cc.Has("no-cache") || cc.Has("private") {
		return 0, false
	}
	maxAge, ok := cc.MaxAge()
	if !ok {
		maxAge = c.defaultMaxAge
	}
	if maxAge <= 0 {
		return 0, false
	}
	// would be refreshed right away
	if c.updateTimeout > 0 && maxAge <= c.updateTimeout {
		return 0, false
	}
	return maxAge, true
}

// Refresh runs a loop that keeps stored pages fresh, one entry at a time,
// until ctx is done.
//
// Entries expiring within the update timeout are fetched again through next,
// as sub-requests. Entries that cannot be refreshed or are no longer cacheable
// are purged. Refresh returns immediately if no update timeout is configured.
func (c *PageCache) Refresh(ctx context.Context, next http.Handler) {
	if c.updateTimeout <= 0 {
		return
	}
	c.log.Info().Msgf("Starting cache update loop with timeout %s", c.updateTimeout)
	for ctx.Err() == nil {
		key, expiry, err := c.cache.Oldest()
		if err != nil {
			c.log.Error().Err(err).Msg("Could not get oldest entry")
		} else if key != "" && time.Until(expiry) <= c.updateTimeout {
			// an entry that could be neither stored nor purged is still the oldest
			if _, err := c.refreshEntry(ctx, key, next); err == nil {
				continue
			}
		} else {
			c.log.Trace().Msg("No entries expiring, pausing update")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.updateTimeout):
		}
	}
}

// RefreshEntry fetches the page identified by key through next and stores it again.
// It returns whether the entry was stored; if not, the entry is purged.
func (c *PageCache) RefreshEntry(ctx context.Context, key string, next http.Handler) bool {
	stored, _ := c.refreshEntry(ctx, key, next)
	return stored
}

// refreshEntry is RefreshEntry, also returning the error if the entry could not be purged.
func (c *PageCache) refreshEntry(ctx context.Context, key string, next http.Handler) (bool, error) {
	req, err := c.keyer.RequestFromKey(key)
	if err == nil {
		c.log.Trace().Str("key", key).Str("req.path", req.URL.Path).Msg("Updating cache")
		req = request.WithKind(req.WithContext(ctx), request.Sub)
		rw := NewResponseSaver(nil)
		next.ServeHTTP(rw, req)
		if c.store(key, rw, &c.log) {
			return true, nil
		}
	} else if !errors.Is(err, ErrMethodNotSupported) {
		c.log.Error().Err(err).Str("key", key).Msg("Could not create request from key")
	}
	if err := c.cache.Purge(key); err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("Could not purge entry")
		return false, err
	}
	return false, nil
}

func send(w http.ResponseWriter, res *http.Response, cs CacheStatus, logger *zerolog.Logger) {
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.Header().Add("Cache-Status", cs.String())
	w.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(w, res.Body)
	if err != nil {
		logger.Error().Err(err).Msg("Could not write response body to client")
	}
	logger.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}

// logger returns the logger from the request context.
// If no logger is found, the page cache logger is used.
func (c *PageCache) logger(r *http.Request) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		return &c.log
	}
	return logger
}
