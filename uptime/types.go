// Package uptime defines core types for the health probe.
package uptime

import "time"

type LogLevel int

const (
	LogNone  LogLevel = iota // no logs
	LogError                 // only failed probes
	LogInfo                  // successes + failures
	LogDebug                 // verbose
)

// DefaultAccept is sent when no Accept header is configured.
const DefaultAccept = "text/html"

// Result represents the outcome of a single probe. StatusCode is zero when
// no HTTP response was received (transport failure or timeout).
type Result struct {
	URL        string        `json:"url"`
	Timestamp  time.Time     `json:"timestamp"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
}

// HasStatus reports whether an HTTP status code was captured.
func (r Result) HasStatus() bool { return r.StatusCode != 0 }

// ElapsedMs returns the probe latency in whole milliseconds, never negative.
func (r Result) ElapsedMs() int64 {
	if r.Latency < 0 {
		return 0
	}
	return r.Latency.Milliseconds()
}
