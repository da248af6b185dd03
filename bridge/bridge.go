// Package bridge supervises the pipeline worker process from the host
// side: it spawns the worker, correlates responses to requests by id,
// fans out events in arrival order, and respawns the worker when it
// dies.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"murmur/log"
	"murmur/proto"
)

var (
	// ErrTimeout means the worker accepted the pipe but never answered
	// the request within its deadline.
	ErrTimeout = errors.New("bridge: request timed out")
	// ErrUnavailable means the worker died before answering; callers
	// may retry once the bridge reports ready again.
	ErrUnavailable = errors.New("bridge: worker unavailable")
	// ErrStopped means the bridge was shut down deliberately.
	ErrStopped = errors.New("bridge: stopped")
)

type State int32

const (
	StateStarting State = iota
	StateReady
	StateDegraded // worker alive but not answering within its deadline
	StateRestarting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Options tune supervision. Zero values pick the defaults.
type Options struct {
	CallTimeout     time.Duration // per-request deadline (default 10s)
	ProbeTimeout    time.Duration // ping handshake deadline (default 3s)
	RestartInterval time.Duration // pause between respawn attempts (default 500ms)
	MaxRestarts     uint64        // respawn attempts per crash (default 5)
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 3 * time.Second
	}
	if o.RestartInterval <= 0 {
		o.RestartInterval = 500 * time.Millisecond
	}
	if o.MaxRestarts == 0 {
		o.MaxRestarts = 5
	}
	return o
}

// conn is one worker generation. A respawn builds a fresh conn; stale
// read loops from a dead generation cannot touch the new one.
type conn struct {
	proc Process
	w    *proto.Writer
	done chan struct{}
}

type Bridge struct {
	runner Runner
	opts   Options

	events chan proto.Message
	closed chan struct{}
	nextID atomic.Int64
	state  atomic.Int32

	mu      sync.Mutex
	conn    *conn
	pending map[int64]chan proto.Message
	stopped bool
}

func New(runner Runner, opts Options) *Bridge {
	return &Bridge{
		runner:  runner,
		opts:    opts.withDefaults(),
		events:  make(chan proto.Message, 64),
		closed:  make(chan struct{}),
		pending: map[int64]chan proto.Message{},
	}
}

// Events delivers worker events in arrival order. The channel is never
// closed; select against your own shutdown signal.
func (b *Bridge) Events() <-chan proto.Message { return b.events }

func (b *Bridge) State() State { return State(b.state.Load()) }

// Start spawns the worker, waits for the ping handshake, and begins
// supervising. It returns once the worker is ready.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.spawn(ctx); err != nil {
		return err
	}
	go b.supervise(ctx)
	return nil
}

// spawn starts one worker generation and verifies it with a ping.
func (b *Bridge) spawn(ctx context.Context) error {
	proc, err := b.runner.Start(ctx)
	if err != nil {
		return err
	}
	c := &conn{proc: proc, w: proto.NewWriter(proc.Stdin()), done: make(chan struct{})}
	go b.readLoop(c)

	if _, err := b.call(ctx, c, "ping", nil, b.opts.ProbeTimeout); err != nil {
		proc.Kill()
		return fmt.Errorf("worker handshake: %w", err)
	}

	b.mu.Lock()
	if b.stopped {
		// Stop ran while the handshake was in flight; the fresh
		// worker must not outlive the bridge.
		b.mu.Unlock()
		proc.Kill()
		return ErrStopped
	}
	b.conn = c
	b.mu.Unlock()
	b.state.Store(int32(StateReady))
	return nil
}

// readLoop routes one generation's output until its pipe closes.
func (b *Bridge) readLoop(c *conn) {
	defer close(c.done)
	r := proto.NewReader(c.proc.Stdout())
	for {
		msg, err := r.ReadMessage()
		if err != nil {
			c.proc.Wait()
			return
		}
		switch {
		case msg.IsEvent():
			select {
			case b.events <- msg:
			case <-b.closed:
				return
			}
		case msg.IsResponse():
			b.mu.Lock()
			ch, ok := b.pending[msg.ID]
			if ok {
				delete(b.pending, msg.ID)
			}
			b.mu.Unlock()
			if ok {
				ch <- msg
			}
			// A response with no pending id (late or duplicate)
			// is dropped.
		}
	}
}

// supervise respawns the worker after a crash until the bridge stops
// or the restart budget runs out.
func (b *Bridge) supervise(ctx context.Context) {
	for {
		b.mu.Lock()
		c := b.conn
		b.mu.Unlock()
		if c == nil {
			return
		}

		select {
		case <-c.done:
		case <-ctx.Done():
			return
		case <-b.closed:
			return
		}

		b.mu.Lock()
		if b.stopped {
			b.mu.Unlock()
			return
		}
		b.conn = nil
		b.mu.Unlock()

		b.failPending()
		b.state.Store(int32(StateRestarting))
		log.Warn("worker exited, restarting")
		b.syntheticError("worker exited unexpectedly")

		bo := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(b.opts.RestartInterval), b.opts.MaxRestarts),
			ctx,
		)
		err := backoff.Retry(func() error {
			b.mu.Lock()
			stopped := b.stopped
			b.mu.Unlock()
			if stopped {
				return backoff.Permanent(ErrStopped)
			}
			return b.spawn(ctx)
		}, bo)
		if err != nil {
			b.state.Store(int32(StateStopped))
			log.Errorf("worker respawn failed: %v", err)
			b.syntheticError("worker could not be restarted")
			return
		}
		log.Info("worker restarted")
	}
}

// Call sends one request and waits for its response. The result is the
// worker's raw result payload; a worker-side error comes back as
// *proto.Error.
func (b *Bridge) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, ErrStopped
	}
	c := b.conn
	b.mu.Unlock()
	// A degraded worker still gets calls; a response clears the state.
	if c == nil || (b.State() != StateReady && b.State() != StateDegraded) {
		return nil, ErrUnavailable
	}
	return b.call(ctx, c, method, params, b.opts.CallTimeout)
}

func (b *Bridge) call(ctx context.Context, c *conn, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := b.nextID.Add(1)
	ch := make(chan proto.Message, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	if err := c.w.Request(id, method, params); err != nil {
		b.drop(id)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrUnavailable
		}
		// Any response, success or failure, proves the worker alive.
		b.state.CompareAndSwap(int32(StateDegraded), int32(StateReady))
		if !msg.OK {
			if msg.Error != nil {
				return nil, msg.Error
			}
			return nil, &proto.Error{Message: "request failed"}
		}
		return msg.Result, nil
	case <-timer.C:
		b.drop(id)
		b.state.CompareAndSwap(int32(StateReady), int32(StateDegraded))
		return nil, ErrTimeout
	case <-ctx.Done():
		b.drop(id)
		return nil, ctx.Err()
	}
}

func (b *Bridge) drop(id int64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// failPending closes every in-flight request channel so callers see
// ErrUnavailable instead of hanging.
func (b *Bridge) failPending() {
	b.mu.Lock()
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
	b.mu.Unlock()
}

// syntheticError injects a bridge-generated event so event consumers
// learn about worker failures through the same stream.
func (b *Bridge) syntheticError(message string) {
	msg := proto.Message{
		Type:  "event",
		Event: proto.EventRuntimeError,
		Data:  map[string]any{"message": message},
		TS:    float64(time.Now().UnixNano()) / float64(time.Second),
	}
	select {
	case b.events <- msg:
	case <-b.closed:
	}
}

// Stop asks the worker to shut down, then kills it. No respawn follows.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	c := b.conn
	b.conn = nil
	b.mu.Unlock()

	if c != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		b.call(ctx, c, "shutdown", nil, 2*time.Second)
		cancel()
		c.proc.Kill()
		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
		}
	}

	b.failPending()
	b.state.Store(int32(StateStopped))
	close(b.closed)
}
