// Package monitor drives the liveness state machine: it probes the service's
// health endpoint, counts failures and restarts the OS service when the
// failure threshold is reached.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/amartya2002/liveness-monitor/notify"
	"github.com/amartya2002/liveness-monitor/service"
	"github.com/amartya2002/liveness-monitor/uptime"
)

// statsTimeout bounds process statistics collection after each probe.
const statsTimeout = 2 * time.Second

// Prober checks the health endpoint once.
type Prober interface {
	Probe(ctx context.Context, url string) uptime.Result
}

// Emitter receives every notification event the machine produces.
type Emitter interface {
	Emit(kind notify.Kind, p notify.Payload) bool
}

// ProcessTable finds, inspects and kills the service's process.
type ProcessTable interface {
	Kill(ctx context.Context, name string) error
	Stats(ctx context.Context, name string) (service.ProcessStats, error)
}

// Settings are the parts of the configuration the machine acts on.
type Settings struct {
	ServiceName       string
	ProcessName       string
	URL               string
	StopDelay         time.Duration
	Threshold         int
	KillProcess       bool
	KillOnStopPending bool
}

// Snapshot is a read-only view of the machine for the status server.
type Snapshot struct {
	RunID       string                `json:"run_id"`
	ServiceName string                `json:"service_name"`
	State       string                `json:"state"`
	Failures    int                   `json:"failures"`
	Threshold   int                   `json:"threshold"`
	Restarts    int                   `json:"restarts"`
	LastProbe   *uptime.Result        `json:"last_probe,omitempty"`
	Process     *service.ProcessStats `json:"process,omitempty"`
}

// Machine is the liveness state machine. Step must not be called
// concurrently; Snapshot may be called from any goroutine.
type Machine struct {
	settings Settings
	prober   Prober
	services service.Controller
	emitter  Emitter

	procs   ProcessTable
	history *uptime.History
	metrics *Metrics
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration)
	runID   string

	fsm *fsm.FSM

	mu          sync.RWMutex
	failures    int
	restarts    int
	lastProbe   *uptime.Result
	lastProcess *service.ProcessStats
}

// ===== Constructor =====
func New(s Settings, prober Prober, services service.Controller, emitter Emitter, opts ...Option) *Machine {
	if s.Threshold < 1 {
		s.Threshold = 1
	}
	m := &Machine{
		settings: s,
		prober:   prober,
		services: services,
		emitter:  emitter,
		logger:   zap.NewNop(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.history == nil {
		m.history = uptime.NewHistory(0)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics()
	}
	if m.runID == "" {
		m.runID = uuid.NewString()
	}
	if m.procs == nil || s.ProcessName == "" {
		m.settings.KillProcess = false
	}
	m.fsm = newFSM(m.entered)
	m.metrics.setState(m.fsm.Current())
	return m
}

// ===== Accessors =====

// State returns the current state name.
func (m *Machine) State() string { return m.fsm.Current() }

// Failures returns the consecutive failure counter.
func (m *Machine) Failures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures
}

func (m *Machine) History() *uptime.History { return m.history }

func (m *Machine) Metrics() *Metrics { return m.metrics }

func (m *Machine) RunID() string { return m.runID }

func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		RunID:       m.runID,
		ServiceName: m.settings.ServiceName,
		State:       m.fsm.Current(),
		Failures:    m.failures,
		Threshold:   m.settings.Threshold,
		Restarts:    m.restarts,
	}
	if m.lastProbe != nil {
		res := *m.lastProbe
		snap.LastProbe = &res
	}
	if m.lastProcess != nil {
		st := *m.lastProcess
		snap.Process = &st
	}
	return snap
}

// ===== Step =====

// Step evaluates the current state once and reports whether the machine
// moved to another state. Failures of the probe, the service controller and
// the notification path are logged and never escape.
func (m *Machine) Step(ctx context.Context) (moved bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Monitor step panicked",
				zap.String("state", m.fsm.Current()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			moved = false
		}
	}()

	switch m.fsm.Current() {
	case StateInitializing:
		return m.initialize(ctx)
	case StateWaitingForFirstSuccess:
		return m.awaitFirstSuccess(ctx)
	case StateOk:
		return m.checkHealth(ctx)
	case StateRequestStop:
		return m.requestStop(ctx)
	case StateWaitingForServiceToStop:
		return m.awaitStop(ctx)
	case StateRequestStart:
		return m.requestStart(ctx)
	}
	return false
}

func (m *Machine) initialize(ctx context.Context) bool {
	m.setFailures(0)
	m.emit(notify.Initializing, m.payload(fmt.Sprintf("run %s on %s/%s, restart after %d failure(s)",
		m.runID, runtime.GOOS, runtime.GOARCH, m.settings.Threshold)))
	m.logger.Info("Monitoring service",
		zap.String("service", m.settings.ServiceName),
		zap.String("url", m.settings.URL),
		zap.String("run_id", m.runID),
	)
	return m.fire(ctx, eventInitialized)
}

// awaitFirstSuccess never counts failures: a service that has not answered
// yet may still be starting.
func (m *Machine) awaitFirstSuccess(ctx context.Context) bool {
	res := m.probe(ctx)
	if !res.Success {
		m.emit(notify.WaitingForFirstSuccess, m.payload(""))
		return false
	}
	m.logger.Info("Monitoring is now active", zap.String("service", m.settings.ServiceName))
	moved := m.fire(ctx, eventFirstSuccess)
	m.emit(notify.TestPassed, m.payload(""))
	return moved
}

func (m *Machine) checkHealth(ctx context.Context) bool {
	res := m.probe(ctx)
	if res.Success {
		m.setFailures(0)
		m.emit(notify.TestPassed, m.payload(""))
		return false
	}

	n := m.setFailures(m.Failures() + 1)
	m.logger.Warn("Health check failed",
		zap.String("service", m.settings.ServiceName),
		zap.Int("failures", n),
		zap.Int("threshold", m.settings.Threshold),
		zap.Int("status", res.StatusCode),
		zap.String("error", res.Error),
	)
	m.emit(notify.TestFailed, m.payload(""))
	if n < m.settings.Threshold {
		return false
	}
	m.logger.Warn("Failure threshold reached, restarting service", zap.String("service", m.settings.ServiceName))
	return m.fire(ctx, eventThresholdReached)
}

func (m *Machine) requestStop(ctx context.Context) bool {
	st, err := m.query(ctx)
	if err == nil && (st.Manual() || st == service.StartPending) {
		m.logger.Info("Service is changing state outside the monitor, not stopping",
			zap.String("service", m.settings.ServiceName),
			zap.Stringer("status", st),
		)
		return false
	}

	m.emit(notify.Stopping, m.payload(""))
	if err != nil || st != service.Stopped {
		wait := st == service.StopPending
		if err != nil || st == service.Running || st == service.Unknown {
			wait = m.stop(ctx) == nil
		}
		if wait {
			m.sleep(ctx, m.settings.StopDelay)
			st, err = m.query(ctx)
		}
		if err != nil || st != service.Stopped {
			if m.shouldKill(st) {
				m.kill(ctx)
			}
		}
	}
	return m.fire(ctx, eventStopIssued)
}

func (m *Machine) awaitStop(ctx context.Context) bool {
	st, err := m.query(ctx)
	if err != nil {
		m.emit(notify.WaitingForStop, m.payload("service status unavailable"))
		return false
	}
	switch {
	case st == service.Stopped:
		m.logger.Info("Service stopped", zap.String("service", m.settings.ServiceName))
		return m.fire(ctx, eventStopped)
	case st.Manual():
		m.logger.Info("Service is changing state outside the monitor, waiting",
			zap.String("service", m.settings.ServiceName),
			zap.Stringer("status", st),
		)
		return false
	}

	m.emit(notify.WaitingForStop, m.payload(st.String()))
	if st == service.Running {
		_ = m.stop(ctx)
	}
	if m.shouldKill(st) {
		m.kill(ctx)
	}
	return false
}

func (m *Machine) requestStart(ctx context.Context) bool {
	st, err := m.query(ctx)
	if err == nil && st.Manual() {
		m.logger.Info("Service is changing state outside the monitor, not starting",
			zap.String("service", m.settings.ServiceName),
			zap.Stringer("status", st),
		)
		return false
	}

	m.emit(notify.Starting, m.payload(""))
	if err == nil && (st == service.Running || st == service.StartPending) {
		m.logger.Info("Service already starting", zap.String("service", m.settings.ServiceName), zap.Stringer("status", st))
	} else if err := m.start(ctx); err != nil {
		return false
	}

	m.setFailures(0)
	m.mu.Lock()
	m.restarts++
	m.mu.Unlock()
	m.metrics.restarts.Inc()
	return m.fire(ctx, eventStartIssued)
}

// shouldKill reports whether a service in st should have its process
// killed.
func (m *Machine) shouldKill(st service.Status) bool {
	if !m.settings.KillProcess {
		return false
	}
	switch st {
	case service.Stopped, service.StartPending:
		return false
	case service.StopPending:
		return m.settings.KillOnStopPending
	}
	return !st.Manual()
}

// ===== Collaborators =====
func (m *Machine) probe(ctx context.Context) uptime.Result {
	res := m.prober.Probe(ctx, m.settings.URL)
	m.history.Add(res)
	m.metrics.observeProbe(res)

	var stats *service.ProcessStats
	if m.procs != nil && m.settings.ProcessName != "" {
		sctx, cancel := context.WithTimeout(ctx, statsTimeout)
		st, err := m.procs.Stats(sctx, m.settings.ProcessName)
		cancel()
		if err != nil {
			m.logger.Debug("Process statistics unavailable", zap.String("process", m.settings.ProcessName), zap.Error(err))
		} else {
			stats = &st
		}
	}

	m.mu.Lock()
	m.lastProbe = &res
	m.lastProcess = stats
	m.mu.Unlock()
	return res
}

func (m *Machine) query(ctx context.Context) (service.Status, error) {
	st, err := m.services.Query(ctx, m.settings.ServiceName)
	m.metrics.serviceOp("query", err)
	if err != nil {
		m.logger.Error("Service query failed", zap.String("service", m.settings.ServiceName), zap.Error(err))
		return service.Unknown, err
	}
	m.logger.Debug("Service status", zap.String("service", m.settings.ServiceName), zap.Stringer("status", st))
	return st, nil
}

func (m *Machine) stop(ctx context.Context) error {
	m.logger.Info("Stopping service", zap.String("service", m.settings.ServiceName))
	err := m.services.Stop(ctx, m.settings.ServiceName)
	m.metrics.serviceOp("stop", err)
	if err != nil {
		m.logger.Error("Service stop failed", zap.String("service", m.settings.ServiceName), zap.Error(err))
	}
	return err
}

func (m *Machine) start(ctx context.Context) error {
	m.logger.Info("Starting service", zap.String("service", m.settings.ServiceName))
	err := m.services.Start(ctx, m.settings.ServiceName)
	m.metrics.serviceOp("start", err)
	if err != nil {
		m.logger.Error("Service start failed, will retry next poll", zap.String("service", m.settings.ServiceName), zap.Error(err))
	}
	return err
}

func (m *Machine) kill(ctx context.Context) {
	name := m.settings.ProcessName
	err := m.procs.Kill(ctx, name)
	switch {
	case errors.Is(err, service.ErrProcessNotFound):
		m.metrics.serviceOp("kill", nil)
		m.logger.Debug("Process not running", zap.String("process", name))
	case err != nil:
		m.metrics.serviceOp("kill", err)
		m.logger.Warn("Process kill failed, will try next loop", zap.String("process", name), zap.Error(err))
	default:
		m.metrics.serviceOp("kill", nil)
		m.logger.Info("Killed process", zap.String("process", name))
	}
}

func (m *Machine) emit(kind notify.Kind, p notify.Payload) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(kind, p)
}

func (m *Machine) payload(detail string) notify.Payload {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return notify.Payload{
		ServiceName: m.settings.ServiceName,
		URL:         m.settings.URL,
		Probe:       m.lastProbe,
		Process:     m.lastProcess,
		Failures:    m.failures,
		Threshold:   m.settings.Threshold,
		Detail:      detail,
	}
}

func (m *Machine) setFailures(n int) int {
	m.mu.Lock()
	m.failures = n
	m.mu.Unlock()
	m.metrics.setFailures(n)
	return n
}

func (m *Machine) fire(ctx context.Context, event string) bool {
	if err := m.fsm.Event(ctx, event); err != nil {
		m.logger.Error("State transition rejected",
			zap.String("state", m.fsm.Current()),
			zap.String("event", event),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (m *Machine) entered(from, to string) {
	m.metrics.setState(to)
	m.logger.Info("State changed", zap.String("from", from), zap.String("to", to))
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
