// Package dispatcher serializes all mutating work behind a single ordered
// command queue while allowing an unbounded functional API surface to be
// called before initialization completes. It is grounded on the teacher's
// internal/pipeline worker-pool idiom (a single goroutine draining a
// channel-backed queue, retried/backed-off work items) regeneralized from a
// four-stage crawl pipeline into one FIFO command queue with an explicit
// lifecycle FSM.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
)

// State is one node of the dispatcher FSM described in the component spec:
// Uninitialized -> Idle -> {Processing <-> Idle} -> Stopped -> Idle, with any
// state able to transition irreversibly into Shutdown.
type State int

const (
	StateUninitialized State = iota
	StateIdle
	StateProcessing
	StateStopped
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Mode selects the scheduling strategy. The business logic expressed by
// Func never changes between modes; only how the queue is drained does.
type Mode int

const (
	// Async runs one task at a time on a background goroutine; suspension
	// points are exactly the boundaries between dispatched tasks.
	Async Mode = iota
	// Sync drains the queue inline on the calling goroutine with no
	// suspension, matching single-page browser environments.
	Sync
)

// Func is the unit of work the dispatcher serializes.
type Func func(ctx context.Context) error

// kind distinguishes the command types named in the component spec.
type kind int

const (
	kindTask kind = iota
	kindPersistentTask
	kindInitTask
	kindTestTask
)

type command struct {
	kind   kind
	fn     Func
	result chan error
}

// DefaultMaxPreInitQueueSize bounds the queue accepted before FlushInit.
const DefaultMaxPreInitQueueSize = 100

// Dispatcher is the single point of serialization for mutating work.
type Dispatcher struct {
	mode                Mode
	maxPreInitQueueSize int
	logger              *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	state     State
	executing bool
	preInit   []*command
	queue     []*command

	shutdownOnce sync.Once
	workerDone   chan struct{}
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMaxPreInitQueueSize overrides DefaultMaxPreInitQueueSize.
func WithMaxPreInitQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxPreInitQueueSize = n
		}
	}
}

// New returns a Dispatcher in StateUninitialized.
func New(mode Mode, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		mode:                mode,
		maxPreInitQueueSize: DefaultMaxPreInitQueueSize,
		logger:              slog.Default(),
		state:               StateUninitialized,
		workerDone:          make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current FSM state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// FlushInit transitions Uninitialized -> Idle, moving every pre-init task
// into the main queue in arrival order, then starts the async worker (a
// no-op under Sync mode, which drains inline on demand).
func (d *Dispatcher) FlushInit() {
	d.mu.Lock()
	if d.state != StateUninitialized {
		d.mu.Unlock()
		return
	}
	d.state = StateIdle
	d.queue = append(d.preInit, d.queue...)
	d.preInit = nil
	d.mu.Unlock()

	if d.mode == Async {
		go d.runLoop()
	} else {
		d.drainSync()
	}
}

func (d *Dispatcher) enqueue(c *command, priority bool) {
	d.mu.Lock()
	switch d.state {
	case StateShutdown:
		d.mu.Unlock()
		if c.result != nil {
			c.result <- errShutdown
			close(c.result)
		}
		return
	case StateUninitialized:
		if len(d.preInit) >= d.maxPreInitQueueSize {
			d.mu.Unlock()
			d.logger.Warn("dispatcher: pre-init queue full, dropping task", "size", d.maxPreInitQueueSize)
			if c.result != nil {
				c.result <- errQueueFull
				close(c.result)
			}
			return
		}
		if priority {
			d.preInit = append([]*command{c}, d.preInit...)
		} else {
			d.preInit = append(d.preInit, c)
		}
		d.mu.Unlock()
		return
	}
	if priority {
		d.queue = append([]*command{c}, d.queue...)
	} else {
		d.queue = append(d.queue, c)
	}
	d.cond.Signal()
	d.mu.Unlock()

	if d.mode == Sync {
		d.drainSync()
	}
}

// Dispatch enqueues an ordinary Task and returns a channel that receives
// its outcome (nil on success).
func (d *Dispatcher) Dispatch(fn Func) <-chan error {
	c := &command{kind: kindTask, fn: fn, result: make(chan error, 1)}
	d.enqueue(c, false)
	return c.result
}

// DispatchPersistent enqueues a PersistentTask, the only kind that survives
// Clear.
func (d *Dispatcher) DispatchPersistent(fn Func) <-chan error {
	c := &command{kind: kindPersistentTask, fn: fn, result: make(chan error, 1)}
	d.enqueue(c, false)
	return c.result
}

// DispatchInit enqueues an InitTask, the single task kind allowed to
// escalate the dispatcher into Shutdown on failure.
func (d *Dispatcher) DispatchInit(fn Func) <-chan error {
	c := &command{kind: kindInitTask, fn: fn, result: make(chan error, 1)}
	d.enqueue(c, false)
	return c.result
}

// DispatchTest enqueues a TestTask. Its resolver is guaranteed to fire
// either on completion or on the next Clear/Shutdown, so tests never
// deadlock waiting on a dropped queue.
func (d *Dispatcher) DispatchTest(fn Func) <-chan error {
	c := &command{kind: kindTestTask, fn: fn, result: make(chan error, 1)}
	d.enqueue(c, false)
	return c.result
}

// Stop transitions Idle/Processing -> Stopped. Queued tasks remain queued;
// the in-flight task (if any) is not cancelled.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.state == StateIdle || d.state == StateProcessing {
		d.state = StateStopped
	}
	d.mu.Unlock()
}

// Resume transitions Stopped -> Idle and wakes the worker.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	if d.state == StateStopped {
		d.state = StateIdle
	}
	d.mu.Unlock()
	d.cond.Signal()
	if d.mode == Sync {
		d.drainSync()
	}
}

// Clear completes any in-flight task, then drops every queued command
// except PersistentTask and Shutdown, resolving all pending TestTask
// resolvers so tests never deadlock on a dropped queue.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	for d.executing {
		d.cond.Wait()
	}
	kept := d.queue[:0:0]
	for _, c := range d.queue {
		if c.kind == kindPersistentTask {
			kept = append(kept, c)
		} else if c.kind == kindTestTask {
			c.result <- errCleared
			close(c.result)
		}
	}
	d.queue = kept

	keptPreInit := d.preInit[:0:0]
	for _, c := range d.preInit {
		if c.kind == kindPersistentTask {
			keptPreInit = append(keptPreInit, c)
		} else if c.kind == kindTestTask {
			c.result <- errCleared
			close(c.result)
		}
	}
	d.preInit = keptPreInit
	d.mu.Unlock()
}

// Shutdown is irreversible: it marks the dispatcher Shutdown so no new
// command is accepted, waits (Async mode) for the worker to run every
// command already queued and exit, then clears whatever is still queued
// like Clear.
func (d *Dispatcher) Shutdown() {
	defer d.Clear()
	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		d.state = StateShutdown
		d.mu.Unlock()
		d.cond.Broadcast()
		if d.mode == Async {
			<-d.workerDone
		}
	})
}

// Done reports whether the dispatcher has finished shutting down its
// background worker (always true under Sync mode).
func (d *Dispatcher) Done() <-chan struct{} {
	if d.mode == Sync {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return d.workerDone
}

func (d *Dispatcher) runLoop() {
	defer close(d.workerDone)
	for {
		d.mu.Lock()
		for (len(d.queue) == 0 || d.state == StateStopped) && d.state != StateShutdown {
			d.cond.Wait()
		}
		if d.state == StateShutdown && len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		c := d.queue[0]
		d.queue = d.queue[1:]
		if d.state != StateShutdown {
			d.state = StateProcessing
		}
		d.executing = true
		d.mu.Unlock()

		failed := d.execute(c)

		d.mu.Lock()
		d.executing = false
		if d.state == StateProcessing {
			d.state = StateIdle
		}
		d.cond.Broadcast()
		d.mu.Unlock()

		if failed && c.kind == kindInitTask {
			d.escalate()
		}
	}
}

func (d *Dispatcher) drainSync() {
	for {
		d.mu.Lock()
		if d.state != StateIdle || len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		c := d.queue[0]
		d.queue = d.queue[1:]
		d.state = StateProcessing
		d.executing = true
		d.mu.Unlock()

		failed := d.execute(c)

		d.mu.Lock()
		d.executing = false
		if d.state == StateProcessing {
			d.state = StateIdle
		}
		d.mu.Unlock()

		if failed && c.kind == kindInitTask {
			d.escalate()
		}
	}
}

// execute runs fn, delivering its outcome to c.result, and reports whether
// the task failed. A panicking task is logged and treated as a failure; it
// never escapes to the caller.
func (d *Dispatcher) execute(c *command) bool {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("dispatcher: task panicked", "recover", r)
				err = errTaskPanicked
			}
		}()
		err = c.fn(context.Background())
	}()

	if c.result != nil {
		c.result <- err
		close(c.result)
	}
	if err != nil {
		d.logger.Error("dispatcher: task failed", "kind", int(c.kind), "error", err)
	}
	return err != nil
}

// escalate implements the InitTask failure path: Clear then Shutdown.
func (d *Dispatcher) escalate() {
	d.Clear()
	d.mu.Lock()
	d.state = StateShutdown
	d.mu.Unlock()
	d.cond.Broadcast()
}
