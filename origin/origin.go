package origin

import (
	"crypto/tls"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog"
)

type Config struct {
	// URL of the origin server. Paths are not supported.
	URL url.URL
	// Hostname to use for HTTP requests and TLS negotiation.
	// Use if needed if e.g. the origin URL is just an IP address.
	Host string
	// Logger to use for proxy errors. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// New creates a reverse proxy forwarding all requests to the origin.
func New(config Config) *httputil.ReverseProxy {
	host := config.URL.Host
	transport := http.DefaultTransport
	if config.Host != "" {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				ServerName: config.Host,
			},
		}
	}
	proxy := &httputil.ReverseProxy{
		Director:  createDirector(config.URL.Scheme, host, config.Host),
		Transport: transport,
	}
	if config.Logger != nil {
		logger := config.Logger
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error().Err(err).Str("url", r.URL.String()).Msg("Could not fetch response from origin")
			w.WriteHeader(http.StatusBadGateway)
		}
	}
	return proxy
}

func createDirector(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		if hostHeader != "" {
			req.Host = hostHeader
		}
		// some origins do not like forwarding headers from an upstream proxy
		req.Header.Del("X-Forwarded-For")
		req.Header.Del("X-Forwarded-Proto")
		req.Header.Del("X-Forwarded-Host")
	}
}
