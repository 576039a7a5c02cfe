package main

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/amartya2002/liveness-monitor/config"
	"github.com/amartya2002/liveness-monitor/monitor"
	"github.com/amartya2002/liveness-monitor/notify"
	"github.com/amartya2002/liveness-monitor/notify/zulip"
	"github.com/amartya2002/liveness-monitor/service"
	"github.com/amartya2002/liveness-monitor/status"
	"github.com/amartya2002/liveness-monitor/uptime"
)

// shutdownTimeout bounds how long queued notifications and the status
// server get to finish after the scheduler stops.
const shutdownTimeout = 10 * time.Second

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	machine *monitor.Machine
	driver  *monitor.Driver
	gate    *notify.Gate
	status  *status.Server
}

func newApp(cfg *config.Config, controller service.Controller, logger *zap.Logger, started time.Time) *app {
	prober := uptime.New(
		uptime.WithTimeout(cfg.HTTPTimeout),
		uptime.WithAccept(cfg.AcceptHeader),
		uptime.WithLogLevel(probeLogLevel(cfg.LogLevel)),
		uptime.WithLogger(logger.Named("probe")),
	)
	gate := newGate(cfg, logger, started)
	machine := monitor.New(monitor.Settings{
		ServiceName:       cfg.ServiceName,
		ProcessName:       cfg.ProcessName,
		URL:               cfg.TestURL,
		StopDelay:         cfg.ServiceStopDelay,
		Threshold:         cfg.FailuresUntilRestart,
		KillProcess:       cfg.KillProcess,
		KillOnStopPending: cfg.KillOnStopPending,
	}, prober, controller, gate,
		monitor.WithProcesses(service.Processes{}),
		monitor.WithLogger(logger.Named("monitor")),
	)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		machine: machine,
		driver:  monitor.NewDriver(machine, cfg.PollInterval, monitor.WithDriverLogger(logger.Named("scheduler"))),
		gate:    gate,
	}
	if cfg.StatusAddr != "" {
		a.status = status.New(cfg.StatusAddr, machine, machine.Metrics().Gatherer(), logger.Named("status"))
	}
	return a
}

// run blocks until ctx is cancelled and the in-flight step has finished.
func (a *app) run(ctx context.Context) error {
	a.gate.Start()
	if a.status != nil {
		if err := a.status.Start(); err != nil {
			a.logger.Error("Status server disabled", zap.String("addr", a.cfg.StatusAddr), zap.Error(err))
			a.status = nil
		}
	}

	a.logger.Info("Liveness monitor started",
		zap.String("service", a.cfg.ServiceName),
		zap.String("url", a.cfg.TestURL),
		zap.Duration("poll_interval", a.cfg.PollInterval),
		zap.Int("failures_until_restart", a.cfg.FailuresUntilRestart),
		zap.String("run_id", a.machine.RunID()),
	)
	err := a.driver.Run(ctx)
	a.shutdown()
	return err
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if a.status != nil {
		if err := a.status.Shutdown(ctx); err != nil {
			a.logger.Warn("Status server shutdown", zap.Error(err))
		}
	}
	if err := a.gate.Close(ctx); err != nil {
		a.logger.Warn("Pending notifications dropped on shutdown", zap.Error(err))
	}
	a.logger.Info("Liveness monitor stopped")
}

func newGate(cfg *config.Config, logger *zap.Logger, started time.Time) *notify.Gate {
	opts := []notify.Option{
		notify.WithTopic(notify.Topic(cfg.HostID, cfg.ServiceName, started)),
		notify.WithStatusEditing(cfg.Zulip.EditStatus),
		notify.WithLogger(logger.Named("notify")),
	}
	if sender, dests, ok := zulipSender(cfg.Zulip, config.ExecutableDir(), logger); ok {
		opts = append(opts, notify.WithSender(sender, dests...))
	}
	return notify.NewGate(opts...)
}

// zulipSender returns a client when destinations are configured and a
// zuliprc can be loaded. Without one, notifications are only logged.
func zulipSender(z config.Zulip, searchFrom string, logger *zap.Logger) (*zulip.Client, []notify.Destination, bool) {
	if !z.Enabled() {
		logger.Info("Zulip notifications disabled, no destination configured")
		return nil, nil, false
	}
	path := z.RcPath
	if path == "" {
		found, ok := zulip.FindRC(searchFrom)
		if !ok {
			logger.Warn("zuliprc not found, Zulip notifications disabled", zap.String("searched_from", searchFrom))
			return nil, nil, false
		}
		path = found
	}
	creds, err := zulip.LoadRC(path)
	if err != nil {
		logger.Warn("Cannot load zuliprc, Zulip notifications disabled", zap.Error(err))
		return nil, nil, false
	}
	dests := destinations(z)
	logger.Info("Zulip notifications enabled", zap.String("site", creds.Site), zap.Int("destinations", len(dests)))
	return zulip.NewClient(creds, zulip.WithLogger(logger.Named("zulip"))), dests, true
}

func destinations(z config.Zulip) []notify.Destination {
	var out []notify.Destination
	if z.StreamName != "" {
		out = append(out, notify.Destination{Kind: notify.StreamByName, Name: z.StreamName})
	}
	if z.StreamID != 0 {
		out = append(out, notify.Destination{Kind: notify.StreamByID, ID: z.StreamID})
	}
	if z.UserName != "" {
		out = append(out, notify.Destination{Kind: notify.UserByName, Name: z.UserName})
	}
	if z.UserID != 0 {
		out = append(out, notify.Destination{Kind: notify.UserByID, ID: z.UserID})
	}
	return out
}

func probeLogLevel(level string) uptime.LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return uptime.LogDebug
	case "WARN", "WARNING", "ERROR":
		return uptime.LogError
	default:
		return uptime.LogInfo
	}
}
