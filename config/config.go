// Package config loads the monitor configuration from an optional JSON file
// and the environment. Environment variables win over the file; nested keys
// use a double underscore (ZULIP__STREAMNAME).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

var (
	ErrMissingServiceName = errors.New("WindowsServiceName is required")
	ErrMissingTestURL     = errors.New("ServiceTestUrl is required")
)

const (
	DefaultAcceptHeader            = "text/html"
	DefaultServiceStopDelaySeconds = 10
	DefaultPollIntervalSeconds     = 30
	DefaultHTTPTimeoutSeconds      = 100
	DefaultFailuresUntilRestart    = 1

	// pollStepSeconds is how far the poll interval is raised at a time to
	// cover the stop delay.
	pollStepSeconds = 5
)

// Zulip selects where notifications go. Any combination of destinations may
// be set; none disables notifications.
type Zulip struct {
	RcPath     string
	StreamName string
	StreamID   int
	UserName   string
	UserID     int
	EditStatus bool
}

func (z Zulip) Enabled() bool {
	return z.StreamName != "" || z.UserName != "" || z.StreamID != 0 || z.UserID != 0
}

// Config is immutable after Load.
type Config struct {
	ServiceName          string
	ProcessName          string
	TestURL              string
	AcceptHeader         string
	ServiceStopDelay     time.Duration
	PollInterval         time.Duration
	HTTPTimeout          time.Duration
	FailuresUntilRestart int
	KillProcess          bool
	KillOnStopPending    bool
	HostID               string

	Zulip Zulip

	StatusAddr string
	LogLevel   string
	LogFormat  string
	LogFile    string
}

// Load reads path when given (it must exist), otherwise appsettings.json
// from searchDirs if present, then applies environment overrides.
func Load(path string, searchDirs ...string) (*Config, error) {
	v := viper.New()
	v.SetDefault("WindowsServiceName", "")
	v.SetDefault("ServiceTestUrl", "")
	v.SetDefault("ProcessName", "")
	v.SetDefault("ServiceAcceptHeader", DefaultAcceptHeader)
	v.SetDefault("ServiceStopDelaySeconds", DefaultServiceStopDelaySeconds)
	v.SetDefault("PollIntervalSeconds", DefaultPollIntervalSeconds)
	v.SetDefault("HttpTimeoutSeconds", DefaultHTTPTimeoutSeconds)
	v.SetDefault("FailuresUntilRestart", DefaultFailuresUntilRestart)
	v.SetDefault("KillProcess", false)
	v.SetDefault("KillOnStopPending", true)
	v.SetDefault("HostId", "")
	v.SetDefault("Zulip.RcPath", "")
	v.SetDefault("Zulip.StreamName", "")
	v.SetDefault("Zulip.StreamId", 0)
	v.SetDefault("Zulip.UserName", "")
	v.SetDefault("Zulip.UserId", 0)
	v.SetDefault("Zulip.EditStatus", false)
	v.SetDefault("StatusAddr", "")
	v.SetDefault("LogLevel", "INFO")
	v.SetDefault("LogFormat", "json")
	v.SetDefault("LogFile", "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("appsettings")
		v.SetConfigType("json")
		for _, dir := range searchDirs {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read appsettings.json: %w", err)
			}
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		ServiceName:  strings.TrimSpace(v.GetString("WindowsServiceName")),
		ProcessName:  strings.TrimSpace(v.GetString("ProcessName")),
		TestURL:      strings.TrimSpace(v.GetString("ServiceTestUrl")),
		AcceptHeader: v.GetString("ServiceAcceptHeader"),
		HostID:       v.GetString("HostId"),
		StatusAddr:   v.GetString("StatusAddr"),
		LogLevel:     v.GetString("LogLevel"),
		LogFormat:    v.GetString("LogFormat"),
		LogFile:      v.GetString("LogFile"),
		Zulip: Zulip{
			RcPath:     v.GetString("Zulip.RcPath"),
			StreamName: v.GetString("Zulip.StreamName"),
			StreamID:   intOr(v.Get("Zulip.StreamId"), 0),
			UserName:   v.GetString("Zulip.UserName"),
			UserID:     intOr(v.Get("Zulip.UserId"), 0),
			EditStatus: boolOr(v.Get("Zulip.EditStatus"), false),
		},
	}

	if c.ServiceName == "" {
		return nil, ErrMissingServiceName
	}
	if c.TestURL == "" {
		return nil, ErrMissingTestURL
	}
	if c.AcceptHeader == "" {
		c.AcceptHeader = DefaultAcceptHeader
	}

	stopDelaySeconds := intOr(v.Get("ServiceStopDelaySeconds"), DefaultServiceStopDelaySeconds)
	if stopDelaySeconds < 0 {
		stopDelaySeconds = DefaultServiceStopDelaySeconds
	}
	pollSeconds := intOr(v.Get("PollIntervalSeconds"), DefaultPollIntervalSeconds)
	if pollSeconds < 1 {
		pollSeconds = DefaultPollIntervalSeconds
	}
	timeoutSeconds := intOr(v.Get("HttpTimeoutSeconds"), DefaultHTTPTimeoutSeconds)
	if timeoutSeconds < 1 {
		timeoutSeconds = DefaultHTTPTimeoutSeconds
	}
	c.FailuresUntilRestart = intOr(v.Get("FailuresUntilRestart"), DefaultFailuresUntilRestart)
	if c.FailuresUntilRestart < 1 {
		c.FailuresUntilRestart = DefaultFailuresUntilRestart
	}

	c.ServiceStopDelay = time.Duration(stopDelaySeconds) * time.Second
	c.PollInterval = time.Duration(AlignPollInterval(pollSeconds, stopDelaySeconds*1000)) * time.Second
	c.HTTPTimeout = time.Duration(timeoutSeconds) * time.Second

	// killing needs a process name to look for
	if c.ProcessName != "" {
		c.KillProcess = boolOr(v.Get("KillProcess"), false)
		c.KillOnStopPending = boolOr(v.Get("KillOnStopPending"), true)
	}

	if c.HostID == "" {
		if host, err := os.Hostname(); err == nil {
			c.HostID = host
		}
	}
	return c, nil
}

// AlignPollInterval raises pollSeconds in 5 second steps until a poll can no
// longer fire while waiting stopDelayMs for the service to stop.
func AlignPollInterval(pollSeconds, stopDelayMs int) int {
	for pollSeconds*1000 < stopDelayMs {
		pollSeconds += pollStepSeconds
	}
	return pollSeconds
}

// ExecutableDir is where appsettings.json and zuliprc are looked up by default.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func intOr(raw any, def int) int {
	n, err := cast.ToIntE(raw)
	if err != nil {
		return def
	}
	return n
}

func boolOr(raw any, def bool) bool {
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return def
	}
	return b
}
