package gmail

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the base HTTP client. The access token transport is
// layered on top of its Transport.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithLogger sets the logger used for circuit breaker state changes.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithBreakerTimeout sets how long the breaker stays open before probing again.
func WithBreakerTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.breakerTimeout = d
		}
	}
}
