package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSendTimeout = 30 * time.Second
	defaultQueueSize   = 64
	maxBacklog         = 50
)

type outbound struct {
	kind Kind
	text string
}

// Gate decides which events become messages and hands them to a single
// dispatcher goroutine, so delivery never blocks the caller and messages
// go out in emit order.
//
// Emit must be called from one goroutine at a time.
type Gate struct {
	sender       Sender
	destinations []Destination
	topic        string
	intervals    map[Kind]int
	now          func() time.Time
	sendTimeout  time.Duration
	editStatus   bool
	logger       *zap.Logger

	// owned by the emitting goroutine
	hasLast  bool
	lastKind Kind
	lastSent time.Time
	backlog  []row

	mu     sync.Mutex
	closed bool
	queue  chan outbound
	wg     sync.WaitGroup

	// owned by the dispatcher
	statusMu  sync.Mutex
	statusIDs map[Destination]uint64
}

// ===== Options Pattern =====
type Option func(*Gate)

func WithSender(s Sender, destinations ...Destination) Option {
	return func(g *Gate) {
		g.sender = s
		g.destinations = append(g.destinations, destinations...)
	}
}

func WithTopic(topic string) Option {
	return func(g *Gate) { g.topic = topic }
}

// WithInterval overrides the minimum minutes between two messages of kind.
func WithInterval(kind Kind, minutes int) Option {
	return func(g *Gate) {
		if minutes >= 0 {
			g.intervals[kind] = minutes
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithSendTimeout bounds one delivery across all destinations.
func WithSendTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.sendTimeout = d
		}
	}
}

func WithQueueSize(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.queue = make(chan outbound, n)
		}
	}
}

// WithStatusEditing makes TestPassed replace the previous TestPassed message
// in place when the sender supports editing.
func WithStatusEditing(enabled bool) Option {
	return func(g *Gate) { g.editStatus = enabled }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// ===== Constructor =====
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		intervals:   DefaultIntervals(),
		now:         time.Now,
		sendTimeout: defaultSendTimeout,
		logger:      zap.NewNop(),
		queue:       make(chan outbound, defaultQueueSize),
		statusIDs:   make(map[Destination]uint64),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start launches the dispatcher.
func (g *Gate) Start() {
	g.wg.Add(1)
	go g.dispatch()
}

// Close stops accepting messages and waits for queued ones to be delivered
// or for ctx to expire.
func (g *Gate) Close(ctx context.Context) error {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		close(g.queue)
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emit renders and queues a message for kind unless the same kind was the
// last one sent less than its interval ago. It reports whether the message
// passed the gate. Delivery failures never surface here.
func (g *Gate) Emit(kind Kind, p Payload) bool {
	now := g.now()
	if g.suppressed(kind, now) {
		if kind == TestPassed && p.Probe != nil {
			g.remember(p, now)
		}
		g.logger.Debug("Notification suppressed", zap.Stringer("kind", kind))
		return false
	}

	text := g.render(kind, p, now)
	g.hasLast = true
	g.lastKind = kind
	g.lastSent = now

	g.logger.Info("Notification", zap.Stringer("kind", kind), zap.String("text", text))
	g.enqueue(outbound{kind: kind, text: text})
	return true
}

func (g *Gate) suppressed(kind Kind, now time.Time) bool {
	interval := g.intervals[kind]
	if !g.hasLast || kind != g.lastKind || interval <= 0 {
		return false
	}
	minutes := int(now.Sub(g.lastSent) / time.Minute)
	return minutes < interval
}

func (g *Gate) remember(p Payload, at time.Time) {
	g.backlog = append(g.backlog, rowFromPayload(p, at))
	if len(g.backlog) > maxBacklog {
		g.backlog = g.backlog[len(g.backlog)-maxBacklog:]
	}
}

func (g *Gate) enqueue(msg outbound) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		g.logger.Warn("Notification dropped after close", zap.Stringer("kind", msg.kind))
		return
	}
	select {
	case g.queue <- msg:
	default:
		g.logger.Warn("Notification queue full, dropping message", zap.Stringer("kind", msg.kind))
	}
}

// ===== Dispatcher =====
func (g *Gate) dispatch() {
	defer g.wg.Done()
	for msg := range g.queue {
		g.deliver(msg)
	}
}

func (g *Gate) deliver(msg outbound) {
	if g.sender == nil || len(g.destinations) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.sendTimeout)
	defer cancel()

	var eg errgroup.Group
	for _, d := range g.destinations {
		d := d
		eg.Go(func() error {
			if err := g.deliverTo(ctx, d, msg); err != nil {
				g.logger.Warn("Notification delivery failed",
					zap.Stringer("kind", msg.kind),
					zap.Stringer("destination", d),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = eg.Wait()
}

func (g *Gate) deliverTo(ctx context.Context, d Destination, msg outbound) error {
	topic := ""
	if d.IsStream() {
		topic = g.topic
	}

	editor, canEdit := g.sender.(Editor)
	if g.editStatus && canEdit && msg.kind == TestPassed {
		if id := g.statusID(d); id != 0 {
			err := editor.EditMessage(ctx, id, msg.text)
			if err == nil {
				return nil
			}
			g.logger.Debug("Status edit failed, sending new message", zap.Stringer("destination", d), zap.Error(err))
		}
	}

	id, err := g.sender.SendMessage(ctx, d, topic, msg.text)
	if msg.kind == TestPassed && err == nil {
		g.setStatusID(d, id)
	} else {
		g.setStatusID(d, 0)
	}
	return err
}

func (g *Gate) statusID(d Destination) uint64 {
	g.statusMu.Lock()
	defer g.statusMu.Unlock()
	return g.statusIDs[d]
}

func (g *Gate) setStatusID(d Destination, id uint64) {
	g.statusMu.Lock()
	defer g.statusMu.Unlock()
	g.statusIDs[d] = id
}
