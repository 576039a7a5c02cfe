// Package uptime exposes configuration options for the Prober via a
// functional options API.
package uptime

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ===== Options Pattern =====
type Option func(*Prober)

// WithTimeout bounds every probe, including connect, headers and body drain.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithAccept sets the Accept header sent with each probe.
func WithAccept(accept string) Option {
	return func(p *Prober) {
		if accept != "" {
			p.accept = accept
		}
	}
}

func WithLogLevel(level LogLevel) Option {
	return func(p *Prober) { p.logLevel = level }
}

// WithLogger allows injecting a custom zap logger (useful in tests).
func WithLogger(l *zap.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithHTTPClient replaces the client used for probes. The probe timeout is
// still enforced through the request context.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) {
		if c != nil {
			p.httpClient = c
		}
	}
}
