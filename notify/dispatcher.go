package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/passgate"
)

var (
	// ErrQueueFull is returned when a drop-if-full dispatcher discards a
	// notice.
	ErrQueueFull = errors.New("notify: queue full, notice dropped")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("notify: dispatcher closed")
)

// DispatcherOptions controls buffering of a Dispatcher.
type DispatcherOptions struct {
	BufferSize int
	// DropIfFull discards notices instead of waiting for queue space.
	DropIfFull bool
	// SendTimeout bounds one delivery through the context handed to the
	// sink. Zero means no bound.
	SendTimeout time.Duration
	Logger      *zap.Logger
}

// Dispatcher forwards notices to a sink from a single background worker, so
// the caller of Notify only waits for a queue slot.
type Dispatcher struct {
	opts      DispatcherOptions
	sink      passgate.Notifier
	ch        chan envelope
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closeOnce sync.Once

	// mu orders enqueues against Close: no send starts once closed is set.
	mu     sync.RWMutex
	closed bool
}

type envelope struct {
	ctx    context.Context
	notice passgate.Notice
}

var _ passgate.Notifier = (*Dispatcher)(nil)

func NewDispatcher(sink passgate.Notifier, opts DispatcherOptions) *Dispatcher {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	d := &Dispatcher{
		opts: opts,
		sink: sink,
		ch:   make(chan envelope, opts.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case env := <-d.ch:
			d.deliver(env)
		case <-d.done:
			for {
				select {
				case env := <-d.ch:
					d.deliver(env)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(env envelope) {
	ctx := env.ctx
	if d.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.SendTimeout)
		defer cancel()
	}
	if err := d.sink.Notify(ctx, env.notice); err != nil {
		d.failed.Add(1)
		d.opts.Logger.Warn("notify: delivery failed",
			zap.String("kind", string(env.notice.Kind)),
			zap.String("purpose", string(env.notice.Purpose)),
			zap.Error(err))
	}
}

// Notify enqueues n. The notice outlives ctx cancellation but keeps its
// values.
func (d *Dispatcher) Notify(ctx context.Context, n passgate.Notice) error {
	if d == nil {
		return ErrClosed
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	env := envelope{ctx: context.WithoutCancel(ctx), notice: n}

	if d.opts.DropIfFull {
		select {
		case d.ch <- env:
			return nil
		default:
			d.dropped.Add(1)
			return ErrQueueFull
		}
	}

	select {
	case d.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting notices and drains the queue.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.done)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed counts deliveries the sink rejected.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
