package uptime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	up "github.com/amartya2002/liveness-monitor/uptime"
)

// End-to-end success path using a real HTTP server.
func TestProbe_Success(t *testing.T) {
	var accept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	p := up.New(up.WithTimeout(2 * time.Second))
	res := p.Probe(context.Background(), ts.URL)

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, up.DefaultAccept, accept)
	assert.GreaterOrEqual(t, res.ElapsedMs(), int64(0))
	assert.False(t, res.Timestamp.IsZero())
	assert.Empty(t, res.Error)
}

func TestProbe_CustomAcceptAndAny2xx(t *testing.T) {
	var accept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	p := up.New(up.WithAccept("application/fhir+json"))
	res := p.Probe(context.Background(), ts.URL)

	assert.True(t, res.Success)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "application/fhir+json", accept)
}

func TestProbe_HTTPFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	res := up.New().Probe(context.Background(), ts.URL)

	assert.False(t, res.Success)
	assert.True(t, res.HasStatus())
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Contains(t, res.Error, "503")
}

func TestProbe_TransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	res := up.New().Probe(context.Background(), url)

	assert.False(t, res.Success)
	assert.False(t, res.HasStatus())
	assert.NotEmpty(t, res.Error)
}

func TestProbe_InvalidURL(t *testing.T) {
	res := up.New().Probe(context.Background(), "://nope")

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Error creating request")
}

// A hanging endpoint must not hold the probe past its timeout.
func TestProbe_TimeoutIsBounded(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	p := up.New(up.WithTimeout(50 * time.Millisecond))
	start := time.Now()
	res := p.Probe(context.Background(), ts.URL)

	assert.False(t, res.Success)
	assert.False(t, res.HasStatus())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestProbe_LogsFailuresAtErrorLevel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	p := up.New(up.WithLogger(zap.New(core)), up.WithLogLevel(up.LogError))

	p.Probe(context.Background(), ts.URL)

	entries := logs.FilterMessage("Probe failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.EqualValues(t, http.StatusInternalServerError, entries[0].ContextMap()["status_code"])
}

func TestProbe_LogNoneIsSilent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	p := up.New(up.WithLogger(zap.New(core)), up.WithLogLevel(up.LogNone))
	p.Probe(context.Background(), ts.URL)

	assert.Zero(t, logs.Len())
}
