package actor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andrescamacho/carfactory-go/internal/application/common"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
)

// Ref is the address of an agent. Tell never blocks; it returns false when the
// receiver has been torn down and the message was dropped.
type Ref[M any] interface {
	Tell(msg M) bool
	Name() string
}

// Handler reacts to one message. It runs on the agent's goroutine only, so
// state reachable solely from the handler needs no locking.
type Handler[M any] func(ctx context.Context, msg M)

// Agent is a single-threaded message loop over a private mailbox.
//
// Lifecycle: PENDING (messages may already be told and queue up) → RUNNING
// (Start) → STOPPED (Stop or context cancellation). Messages told after STOPPED,
// including timer expiries, are dropped.
type Agent[M any] struct {
	name      string
	clock     shared.Clock
	mailbox   *mailbox[M]
	lifecycle *shared.LifecycleStateMachine

	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
	processed atomic.Uint64
	panics    atomic.Uint64
}

// NewAgent creates a pending agent. A nil clock uses the real clock.
func NewAgent[M any](name string, clock shared.Clock) *Agent[M] {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Agent[M]{
		name:      name,
		clock:     clock,
		mailbox:   newMailbox[M](),
		lifecycle: shared.NewLifecycleStateMachine(clock),
		done:      make(chan struct{}),
	}
}

func (a *Agent[M]) Name() string { return a.name }

func (a *Agent[M]) Clock() shared.Clock { return a.clock }

// Tell enqueues msg for the agent
func (a *Agent[M]) Tell(msg M) bool {
	return a.mailbox.push(msg)
}

// TellAfter schedules msg to be delivered to this agent after d.
// The timer is private to the agent; its expiry is an ordinary message.
func (a *Agent[M]) TellAfter(d time.Duration, msg M) shared.Timer {
	return a.clock.AfterFunc(d, func() {
		a.mailbox.push(msg)
	})
}

// Start runs the message loop on a new goroutine
func (a *Agent[M]) Start(ctx context.Context, handler Handler[M]) error {
	if handler == nil {
		return fmt.Errorf("agent %s: handler cannot be nil", a.name)
	}
	if err := a.lifecycle.Start(); err != nil {
		return fmt.Errorf("agent %s: %w", a.name, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go a.run(loopCtx, handler)
	return nil
}

// Stop tears the agent down and waits for the loop to exit.
// Safe to call more than once, and on an agent that never started.
func (a *Agent[M]) Stop() {
	a.stopOnce.Do(func() {
		a.mailbox.close()
		if a.cancel != nil {
			a.cancel()
			<-a.done
		} else {
			_ = a.lifecycle.Stop()
			close(a.done)
		}
	})
}

// Done is closed once the loop has exited
func (a *Agent[M]) Done() <-chan struct{} { return a.done }

func (a *Agent[M]) Status() shared.LifecycleStatus { return a.lifecycle.Status() }

// Pending returns the number of queued, unprocessed messages
func (a *Agent[M]) Pending() int { return a.mailbox.len() }

// Processed returns the number of handled messages
func (a *Agent[M]) Processed() uint64 { return a.processed.Load() }

// Panics returns the number of handler panics recovered so far
func (a *Agent[M]) Panics() uint64 { return a.panics.Load() }

func (a *Agent[M]) run(ctx context.Context, handler Handler[M]) {
	defer func() {
		a.mailbox.close()
		_ = a.lifecycle.Stop()
		close(a.done)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		msg, ok := a.mailbox.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-a.mailbox.signal:
				continue
			}
		}

		a.handle(ctx, handler, msg)
	}
}

// handle invokes the handler; a panic is logged and the loop keeps going with
// the agent's state as the handler left it.
func (a *Agent[M]) handle(ctx context.Context, handler Handler[M], msg M) {
	defer func() {
		a.processed.Add(1)
		if r := recover(); r != nil {
			a.panics.Add(1)
			common.LoggerFromContext(ctx).Log(common.LevelError, "Agent handler panicked", map[string]interface{}{
				"agent":   a.name,
				"message": fmt.Sprintf("%T", msg),
				"panic":   fmt.Sprint(r),
				"stack":   string(debug.Stack()),
			})
		}
	}()

	handler(ctx, msg)
}
