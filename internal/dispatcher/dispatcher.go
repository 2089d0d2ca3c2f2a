// Package dispatcher routes simulator events to the handlers that persist
// and publish them.
//
// A route is either direct (the handler runs on the caller's goroutine) or
// laned: events go into a bounded channel that one goroutine drains in
// order. Lanes keep the fixed-step loop from waiting on storage; a lane
// marked Blocking applies backpressure instead of dropping.
package dispatcher

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed is returned when dispatching to a laned route after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrUnknownCommand is returned for commands without a route.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrLaneFull is returned when a non-blocking lane has no room left.
	ErrLaneFull = errors.New("lane full")
)

// Queued is the result of a successful dispatch to a laned route.
const Queued = "queued"

// Event is one simulator event.
type Event struct {
	Command   string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a route.
type Option func(*routeConfig)

type routeConfig struct {
	laneSize int
	blocking bool
	logged   bool
}

// Buffered gives the route a lane holding up to size pending events.
func Buffered(size int) Option {
	return func(c *routeConfig) { c.laneSize = size }
}

// Blocking makes a full lane wait for room instead of dropping the event.
func Blocking() Option {
	return func(c *routeConfig) { c.blocking = true }
}

// Logged traces every event of the route at debug level.
func Logged() Option {
	return func(c *routeConfig) { c.logged = true }
}

// RouteStats is a snapshot of one route's counters.
type RouteStats struct {
	Handled uint64
	Failed  uint64
	Dropped uint64
	Pending int
}

type route struct {
	command string
	handle  HandlerFunc
	logged  bool

	lane     chan Event // nil for direct routes
	blocking bool

	handled atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger Logger
	inst   *instruments

	routes map[string]*route

	// mu guards closed against sends on lanes being closed, and routes
	// against the metrics callback while registering.
	mu      sync.RWMutex
	closed  bool
	drained sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter provider,
// which is a no-op until one is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		routes: make(map[string]*route),
	}
	inst, err := newInstruments(d)
	if err != nil {
		return nil, err
	}
	d.inst = inst
	return d, nil
}

// Register adds the route for command, replacing any earlier one.
// Routes must be registered before the first Dispatch. A laned route
// registered after Close gets no drain goroutine; dispatching to it returns
// ErrClosed like every other lane.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var cfg routeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &route{command: command, handle: h, logged: cfg.logged}
	if cfg.laneSize > 0 {
		r.lane = make(chan Event, cfg.laneSize)
		r.blocking = cfg.blocking
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.routes[command]; ok && old.lane != nil && !d.closed {
		close(old.lane)
	}
	d.routes[command] = r

	if r.lane == nil {
		return
	}
	if d.closed {
		if d.logger != nil {
			d.logger.Info("Laned route registered after close, its events will be rejected", "command", command)
		}
		return
	}
	d.drained.Add(1)
	go d.drain(r)
}

// Dispatch hands e to its route. Direct routes return the handler's result;
// laned routes return Queued once the event is accepted.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	r, ok := d.routes[e.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if r.lane == nil {
		return d.run(r, e)
	}
	return d.enqueue(r, e)
}

// HasHandler reports whether command has a route.
func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.routes[command]
	return ok
}

// Stats returns per-command counters.
func (d *Dispatcher) Stats() map[string]RouteStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]RouteStats, len(d.routes))
	for cmd, r := range d.routes {
		out[cmd] = r.stats()
	}
	return out
}

// Commands lists the registered commands in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.routes))
}

// Close stops accepting laned events and waits until every lane is empty.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.lane != nil {
			close(r.lane)
		}
	}
	d.mu.Unlock()

	d.drained.Wait()
}

func (d *Dispatcher) enqueue(r *route, e Event) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	if r.blocking {
		r.lane <- e
		return Queued, nil
	}
	select {
	case r.lane <- e:
		return Queued, nil
	default:
		r.dropped.Add(1)
		d.inst.recordDrop(r.command)
		return nil, fmt.Errorf("%w: %s", ErrLaneFull, r.command)
	}
}

func (d *Dispatcher) drain(r *route) {
	defer d.drained.Done()
	for e := range r.lane {
		if _, err := d.run(r, e); err != nil && !r.logged && d.logger != nil {
			d.logger.Error("Laned event failed", "command", r.command, "error", err)
		}
	}
}

// run invokes the handler and updates the route's counters.
func (d *Dispatcher) run(r *route, e Event) (any, error) {
	if r.logged {
		d.logger.Debug("Handling event", "command", r.command, "payload", fmt.Sprintf("%T", e.Payload))
	}

	start := time.Now()
	result, err := r.handle(e)
	took := time.Since(start)

	r.handled.Add(1)
	if err != nil {
		r.failed.Add(1)
	}
	d.inst.recordHandled(r.command, took, err)

	if r.logged {
		if err != nil {
			d.logger.Error("Event failed", "command", r.command, "duration", took, "error", err)
		} else {
			d.logger.Debug("Event handled", "command", r.command, "duration", took)
		}
	}
	return result, err
}

func (r *route) stats() RouteStats {
	s := RouteStats{
		Handled: r.handled.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
	}
	if r.lane != nil {
		s.Pending = len(r.lane)
	}
	return s
}
