package monitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/amartya2002/liveness-monitor/monitor"
	"github.com/amartya2002/liveness-monitor/notify"
	"github.com/amartya2002/liveness-monitor/service"
	"github.com/amartya2002/liveness-monitor/uptime"
)

var errBoom = errors.New("boom")

// scriptedProber answers with the scripted outcomes in order and repeats
// the last one once the script runs out.
type scriptedProber struct {
	mu       sync.Mutex
	outcomes []bool
	calls    int
	panics   bool
}

func probes(outcomes ...bool) *scriptedProber { return &scriptedProber{outcomes: outcomes} }

func (p *scriptedProber) Probe(_ context.Context, url string) uptime.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panics {
		panic("prober exploded")
	}
	ok := true
	if len(p.outcomes) > 0 {
		i := p.calls
		if i >= len(p.outcomes) {
			i = len(p.outcomes) - 1
		}
		ok = p.outcomes[i]
	}
	p.calls++
	res := uptime.Result{URL: url, Timestamp: time.Now(), Latency: 5 * time.Millisecond, Success: ok, StatusCode: 200}
	if !ok {
		res.StatusCode = 503
		res.Error = "503 Service Unavailable"
	}
	return res
}

// fakeService reports the scripted statuses in order, repeating the last.
type fakeService struct {
	mu       sync.Mutex
	statuses []service.Status
	queries  int
	calls    []string
	queryErr error
	stopErr  error
	startErr error
}

func statuses(st ...service.Status) *fakeService { return &fakeService{statuses: st} }

func (s *fakeService) Query(_ context.Context, _ string) (service.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "query")
	if s.queryErr != nil {
		return service.Unknown, s.queryErr
	}
	if len(s.statuses) == 0 {
		return service.Running, nil
	}
	i := s.queries
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.queries++
	return s.statuses[i], nil
}

func (s *fakeService) Stop(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "stop")
	return s.stopErr
}

func (s *fakeService) Start(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "start")
	return s.startErr
}

func (s *fakeService) count(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeProcesses struct {
	mu       sync.Mutex
	kills    int
	killErr  error
	stats    service.ProcessStats
	statsErr error
}

func (p *fakeProcesses) Kill(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kills++
	return p.killErr
}

func (p *fakeProcesses) Stats(_ context.Context, _ string) (service.ProcessStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats, p.statsErr
}

type emitted struct {
	kind    notify.Kind
	payload notify.Payload
	passed  bool
}

// recordingEmitter records every event and forwards it to next when set.
type recordingEmitter struct {
	next   monitor.Emitter
	events []emitted
}

func (e *recordingEmitter) Emit(kind notify.Kind, p notify.Payload) bool {
	passed := true
	if e.next != nil {
		passed = e.next.Emit(kind, p)
	}
	e.events = append(e.events, emitted{kind: kind, payload: p, passed: passed})
	return passed
}

func (e *recordingEmitter) kinds() []notify.Kind {
	out := make([]notify.Kind, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.kind)
	}
	return out
}

func (e *recordingEmitter) last() emitted { return e.events[len(e.events)-1] }

type nopSender struct{}

func (nopSender) SendMessage(context.Context, notify.Destination, string, string) (uint64, error) {
	return 1, nil
}

func settings(threshold int) monitor.Settings {
	return monitor.Settings{
		ServiceName: "AppService",
		URL:         "http://127.0.0.1:8080/health",
		StopDelay:   10 * time.Second,
		Threshold:   threshold,
	}
}

func newMachine(t *testing.T, s monitor.Settings, p monitor.Prober, svc service.Controller, em monitor.Emitter, opts ...monitor.Option) *monitor.Machine {
	t.Helper()
	opts = append([]monitor.Option{
		monitor.WithLogger(zap.NewNop()),
		monitor.WithSleep(func(context.Context, time.Duration) {}),
		monitor.WithRunID("run-1"),
	}, opts...)
	return monitor.New(s, p, svc, em, opts...)
}

// stepTo steps m until it reaches state, failing after the given number of steps.
func stepTo(t *testing.T, m *monitor.Machine, state string, steps int) {
	t.Helper()
	for i := 0; i < steps; i++ {
		if m.State() == state {
			return
		}
		m.Step(context.Background())
	}
	if m.State() != state {
		t.Fatalf("machine in %s, want %s after %d steps", m.State(), state, steps)
	}
}
