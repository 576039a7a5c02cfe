package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/amartya2002/liveness-monitor/config"
	"github.com/amartya2002/liveness-monitor/monitor"
	"github.com/amartya2002/liveness-monitor/notify"
	"github.com/amartya2002/liveness-monitor/service"
	"github.com/amartya2002/liveness-monitor/uptime"
)

type runningService struct{}

func (runningService) Query(context.Context, string) (service.Status, error) {
	return service.Running, nil
}

func (runningService) Stop(context.Context, string) error { return nil }

func (runningService) Start(context.Context, string) error { return nil }

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "liveness-monitor dev\n", out.String())
}

func TestRootCommandFailsOnBadConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.json")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(config.ErrMissingServiceName))
	assert.Equal(t, 2, exitCode(fmt.Errorf("startup: %w", service.ErrUnsupportedPlatform)))
}

func TestDestinations(t *testing.T) {
	got := destinations(config.Zulip{StreamName: "ops", StreamID: 7, UserName: "a@b.c", UserID: 9})

	assert.Equal(t, []notify.Destination{
		{Kind: notify.StreamByName, Name: "ops"},
		{Kind: notify.StreamByID, ID: 7},
		{Kind: notify.UserByName, Name: "a@b.c"},
		{Kind: notify.UserByID, ID: 9},
	}, got)
	assert.Empty(t, destinations(config.Zulip{}))
}

func TestZulipSender(t *testing.T) {
	dir := t.TempDir()
	rc := filepath.Join(dir, "secrets", "zuliprc")
	require.NoError(t, os.MkdirAll(filepath.Dir(rc), 0o755))
	require.NoError(t, os.WriteFile(rc, []byte("[api]\nemail=bot@example.com\nkey=secret\nsite=chat.example.com\n"), 0o600))

	t.Run("disabled without destinations", func(t *testing.T) {
		_, _, ok := zulipSender(config.Zulip{}, dir, zap.NewNop())
		assert.False(t, ok)
	})
	t.Run("found by search", func(t *testing.T) {
		client, dests, ok := zulipSender(config.Zulip{StreamName: "ops"}, filepath.Join(dir, "bin"), zap.NewNop())
		require.True(t, ok)
		assert.NotNil(t, client)
		assert.Len(t, dests, 1)
	})
	t.Run("explicit path", func(t *testing.T) {
		_, _, ok := zulipSender(config.Zulip{UserID: 3, RcPath: rc}, t.TempDir(), zap.NewNop())
		assert.True(t, ok)
	})
	t.Run("missing rc", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		_, _, ok := zulipSender(config.Zulip{StreamName: "ops"}, t.TempDir(), zap.New(core))
		assert.False(t, ok)
		assert.Equal(t, 1, logs.FilterMessage("zuliprc not found, Zulip notifications disabled").Len())
	})
}

func TestProbeLogLevel(t *testing.T) {
	assert.Equal(t, uptime.LogDebug, probeLogLevel("debug"))
	assert.Equal(t, uptime.LogInfo, probeLogLevel("INFO"))
	assert.Equal(t, uptime.LogError, probeLogLevel("ERROR"))
	assert.Equal(t, uptime.LogInfo, probeLogLevel(""))
}

func TestAppRunsUntilCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := &config.Config{
		ServiceName:          "AppService",
		TestURL:              ts.URL,
		AcceptHeader:         config.DefaultAcceptHeader,
		PollInterval:         time.Hour,
		HTTPTimeout:          time.Second,
		FailuresUntilRestart: 1,
		HostID:               "test-host",
		StatusAddr:           "127.0.0.1:0",
	}
	a := newApp(cfg, runningService{}, zap.NewNop(), time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	require.Eventually(t, func() bool { return a.machine.State() == monitor.StateOk }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
