// Package uptime implements the HTTP health probe used by the liveness monitor.
package uptime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxDrain caps how much of a response body is read before closing it.
const maxDrain = 64 << 10

type Prober struct {
	httpClient *http.Client
	timeout    time.Duration
	accept     string

	logLevel LogLevel
	logger   *zap.Logger
}

// ===== Constructor =====
func New(opts ...Option) *Prober {
	p := &Prober{
		timeout:  10 * time.Second,
		accept:   DefaultAccept,
		logLevel: LogInfo,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: p.timeout}
	}
	return p
}

// Timeout returns the hard bound applied to every probe.
func (p *Prober) Timeout() time.Duration { return p.timeout }

// Probe issues one GET against url and classifies the outcome. It never
// returns an error: every failure is folded into the Result.
func (p *Prober) Probe(ctx context.Context, url string) Result {
	start := time.Now()
	res := p.do(ctx, url, start)
	res.Latency = time.Since(start)
	p.log(res)
	return res
}

func (p *Prober) do(ctx context.Context, url string, start time.Time) (res Result) {
	res = Result{URL: url, Timestamp: start}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("probe panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Error = fmt.Sprintf("Error creating request: %v", err)
		return res
	}
	req.Header.Set("Accept", p.accept)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	res.StatusCode = resp.StatusCode
	res.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !res.Success {
		res.Error = resp.Status
	}
	return res
}

func (p *Prober) log(res Result) {
	switch p.logLevel {
	case LogNone:
		return
	case LogError:
		if !res.Success {
			p.logger.Error("Probe failed", zap.String("url", res.URL), zap.Int("status_code", res.StatusCode), zap.String("error", res.Error))
		}
	case LogInfo:
		if res.Success {
			p.logger.Info("Probe passed", zap.String("url", res.URL), zap.Int("status_code", res.StatusCode), zap.Int64("elapsed_ms", res.ElapsedMs()))
		} else {
			p.logger.Warn("Probe failed", zap.String("url", res.URL), zap.Int("status_code", res.StatusCode), zap.String("error", res.Error))
		}
	case LogDebug:
		p.logger.Debug("Probe", zap.String("url", res.URL),
			zap.Int("status_code", res.StatusCode), zap.Duration("latency", res.Latency), zap.String("error", res.Error))
	}
}
