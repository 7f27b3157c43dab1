// Package autosave periodically persists a draft while a student works on a paper.
//
// A Coordinator keeps at most one save in flight. Background ticks that find a save
// outstanding are skipped, while SaveNow and Submit wait for it and then run. Once a
// final save succeeds the coordinator stops saving on its own.
package autosave

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultInterval is the auto-save period used when none is configured.
const DefaultInterval = 60 * time.Second

var (
	// ErrStopped is returned by saves requested after Stop.
	ErrStopped = errors.New("autosave: coordinator stopped")
	// ErrSubmitted is returned by draft saves requested after a successful Submit.
	ErrSubmitted = errors.New("autosave: already submitted")
)

// SaveFunc persists a snapshot. final is true for the explicit submit.
type SaveFunc[T any] func(ctx context.Context, snapshot T, final bool) error

// SnapshotFunc captures the current state to save.
type SnapshotFunc[T any] func() T

// Options tune a Coordinator.
type Options struct {
	Interval time.Duration
	// OnError receives failures of background saves. Manual saves return their error instead.
	OnError func(error)
}

// Coordinator drives periodic and manual saves of a single draft.
type Coordinator[T any] struct {
	save     SaveFunc[T]
	snapshot SnapshotFunc[T]
	opts     Options

	inFlight chan struct{}
	lifetime context.Context
	stop     context.CancelFunc

	mu        sync.Mutex
	running   bool
	submitted bool
	loopStop  context.CancelFunc
	wg        sync.WaitGroup
}

// New builds a coordinator. Nothing runs until Start or a manual save.
func New[T any](save SaveFunc[T], snapshot SnapshotFunc[T], opts Options) *Coordinator[T] {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	lifetime, stop := context.WithCancel(context.Background())
	return &Coordinator[T]{
		save:     save,
		snapshot: snapshot,
		opts:     opts,
		inFlight: make(chan struct{}, 1),
		lifetime: lifetime,
		stop:     stop,
	}
}

// Start begins the auto-save ticker. It returns immediately; calling it twice is a no-op.
func (c *Coordinator[T]) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || c.submitted || c.lifetime.Err() != nil {
		return
	}

	loopCtx, loopStop := context.WithCancel(ctx)
	c.running = true
	c.loopStop = loopStop
	c.wg.Add(1)
	go c.loop(loopCtx)
}

func (c *Coordinator[T]) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.lifetime.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Coordinator[T]) tick(ctx context.Context) {
	select {
	case c.inFlight <- struct{}{}:
	default:
		return
	}
	defer func() { <-c.inFlight }()

	if c.isSubmitted() {
		return
	}

	err := c.run(ctx, false)
	if err != nil && c.opts.OnError != nil && c.lifetime.Err() == nil && ctx.Err() == nil {
		c.opts.OnError(err)
	}
}

// SaveNow waits for any outstanding save and then persists the current draft.
func (c *Coordinator[T]) SaveNow(ctx context.Context) error {
	if c.isSubmitted() {
		return ErrSubmitted
	}
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-c.inFlight }()

	if c.isSubmitted() {
		return ErrSubmitted
	}
	return c.run(ctx, false)
}

// Submit performs the final save. After it succeeds auto-saving stops and further
// Submit calls are no-ops.
func (c *Coordinator[T]) Submit(ctx context.Context) error {
	if c.isSubmitted() {
		return nil
	}
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-c.inFlight }()

	if c.isSubmitted() {
		return nil
	}
	if err := c.run(ctx, true); err != nil {
		return err
	}

	c.mu.Lock()
	c.submitted = true
	if c.loopStop != nil {
		c.loopStop()
	}
	c.running = false
	c.mu.Unlock()
	return nil
}

// Stop cancels the ticker and any in-flight save, then waits for the ticker to exit.
func (c *Coordinator[T]) Stop() {
	c.stop()

	c.mu.Lock()
	if c.loopStop != nil {
		c.loopStop()
	}
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
}

// Submitted reports whether a final save has succeeded.
func (c *Coordinator[T]) Submitted() bool {
	return c.isSubmitted()
}

func (c *Coordinator[T]) isSubmitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

func (c *Coordinator[T]) acquire(ctx context.Context) error {
	if c.lifetime.Err() != nil {
		return ErrStopped
	}
	select {
	case c.inFlight <- struct{}{}:
		if c.lifetime.Err() != nil {
			<-c.inFlight
			return ErrStopped
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.lifetime.Done():
		return ErrStopped
	}
}

func (c *Coordinator[T]) run(ctx context.Context, final bool) error {
	saveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := context.AfterFunc(c.lifetime, cancel)
	defer release()

	return c.save(saveCtx, c.snapshot(), final)
}
