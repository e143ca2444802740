// Package lane provides a keyed execution lane: work submitted under the
// same key runs strictly one at a time in arrival order, while work under
// different keys runs in parallel.
//
// Basic usage:
//
//	l := lane.NewKeyed(&lane.Config{Name: "turns", Capacity: 16})
//	defer l.Close(context.Background())
//
//	err := l.Do(ctx, sessionID, func(ctx context.Context) error {
//	    // Mutate the session
//	    return nil
//	})
package lane

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the configuration for a keyed lane.
type Config struct {
	// Name identifies the lane in errors and stats.
	Name string

	// Capacity is the maximum number of submissions, running one included,
	// allowed per key. Zero means unbounded.
	Capacity int
}

// Validate validates the lane configuration.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("lane name cannot be empty")
	}
	if c.Capacity < 0 {
		return fmt.Errorf("lane capacity cannot be negative, got %d", c.Capacity)
	}
	return nil
}

// MetricsRecorder defines the interface for recording lane metrics.
type MetricsRecorder interface {
	RecordWaitDuration(laneName string, duration time.Duration)
}

// Stats holds statistics for a keyed lane.
type Stats struct {
	Name      string `json:"name"`
	Keys      int    `json:"keys"`
	Pending   int    `json:"pending"`
	Running   int    `json:"running"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	Rejected  int64  `json:"rejected"`
}

// String returns a human-readable string representation of Stats.
func (s Stats) String() string {
	return fmt.Sprintf("Stats{Name: %s, Keys: %d, Pending: %d, Running: %d, Completed: %d, Failed: %d, Rejected: %d}",
		s.Name, s.Keys, s.Pending, s.Running, s.Completed, s.Failed, s.Rejected)
}

type keySlot struct {
	// sem admits one runner; blocked senders are served in arrival order.
	sem  chan struct{}
	refs int
}

// KeyedLane serializes work per key.
type KeyedLane struct {
	config  Config
	metrics MetricsRecorder

	mu     sync.Mutex
	slots  map[string]*keySlot
	closed bool
	active sync.WaitGroup

	pending   atomic.Int32
	running   atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewKeyed creates a keyed lane.
func NewKeyed(config *Config) (*KeyedLane, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &KeyedLane{
		config:  *config,
		metrics: nopMetrics{},
		slots:   make(map[string]*keySlot),
	}, nil
}

// SetMetrics sets the metrics recorder.
func (l *KeyedLane) SetMetrics(m MetricsRecorder) {
	if m != nil {
		l.metrics = m
	}
}

// Name returns the lane name.
func (l *KeyedLane) Name() string {
	return l.config.Name
}

// Do runs fn under key once every earlier submission for key has finished.
// It returns fn's error, ctx.Err() if ctx ends while waiting, or a lane error
// when the submission is rejected. A panic in fn is returned as TaskPanicError.
func (l *KeyedLane) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("task function cannot be nil")
	}

	slot, err := l.acquire(key)
	if err != nil {
		l.rejected.Add(1)
		return err
	}
	defer l.release(key, slot)

	l.pending.Add(1)
	queued := time.Now()
	select {
	case slot.sem <- struct{}{}:
		l.pending.Add(-1)
	case <-ctx.Done():
		l.pending.Add(-1)
		return ctx.Err()
	}
	defer func() { <-slot.sem }()

	l.metrics.RecordWaitDuration(l.config.Name, time.Since(queued))
	l.running.Add(1)
	defer l.running.Add(-1)

	err = l.run(ctx, key, fn)
	if err != nil {
		l.failed.Add(1)
	} else {
		l.completed.Add(1)
	}
	return err
}

func (l *KeyedLane) run(ctx context.Context, key string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskPanicError{Key: key, Value: r}
		}
	}()
	return fn(ctx)
}

func (l *KeyedLane) acquire(key string) (*keySlot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, &LaneClosedError{Name: l.config.Name}
	}
	slot, ok := l.slots[key]
	if !ok {
		slot = &keySlot{sem: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	if l.config.Capacity > 0 && slot.refs >= l.config.Capacity {
		return nil, &LaneFullError{Key: key, Capacity: l.config.Capacity}
	}
	slot.refs++
	l.active.Add(1)
	return slot, nil
}

func (l *KeyedLane) release(key string, slot *keySlot) {
	l.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
	l.active.Done()
}

// Stats returns current lane statistics.
func (l *KeyedLane) Stats() Stats {
	l.mu.Lock()
	keys := len(l.slots)
	l.mu.Unlock()

	return Stats{
		Name:      l.config.Name,
		Keys:      keys,
		Pending:   int(l.pending.Load()),
		Running:   int(l.running.Load()),
		Completed: l.completed.Load(),
		Failed:    l.failed.Load(),
		Rejected:  l.rejected.Load(),
	}
}

// Close rejects new submissions and waits for admitted ones to finish.
func (l *KeyedLane) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsClosed returns true if the lane is closed.
func (l *KeyedLane) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type nopMetrics struct{}

func (nopMetrics) RecordWaitDuration(string, time.Duration) {}
