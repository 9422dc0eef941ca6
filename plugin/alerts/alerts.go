// Package alerts implements a minute-granular task scheduler. Tasks are
// bucketed by their JST calendar minute; a single worker ticks once per
// minute and runs every task whose minute has arrived, in registration
// order. Task failures are logged and never stop the loop.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sorakado/offkai/internal/timeutil"
)

// ErrTimeInPast is returned when the normalized task time is not in the
// future. Reminder registration suppresses it; other callers surface it.
var ErrTimeInPast = errors.New("scheduled time is in the past")

// Task is a deferred action. ID is used for log correlation only.
type Task interface {
	ID() string
	Describe() string
	Run(ctx context.Context) error
}

// Scheduler keys pending tasks by JST minute. Safe for concurrent use.
type Scheduler struct {
	clock func() time.Time

	mu      sync.Mutex
	buckets map[string][]Task
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects the time source used for past-time checks and the
// tick loop.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   time.Now,
		buckets: make(map[string][]Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register queues a task for the minute containing at. The time is
// normalized to JST before keying; seconds within the minute are ignored.
func (s *Scheduler) Register(at time.Time, task Task) error {
	now := s.clock()
	if !at.After(now) {
		return fmt.Errorf("%w: %s", ErrTimeInPast, timeutil.MinuteKey(at))
	}
	key := timeutil.MinuteKey(at)

	s.mu.Lock()
	s.buckets[key] = append(s.buckets[key], task)
	s.mu.Unlock()

	slog.Debug("alerts: registered task", "task", task.ID(), "at", key, "what", task.Describe())
	return nil
}

// Clear drops all scheduled tasks.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	s.buckets = make(map[string][]Task)
	s.mu.Unlock()
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tasks := range s.buckets {
		n += len(tasks)
	}
	return n
}

// Tick runs every task registered for the minute containing now. The minute
// bucket is removed atomically before execution; tasks are never re-queued.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	key := timeutil.MinuteKey(now)

	s.mu.Lock()
	tasks := s.buckets[key]
	delete(s.buckets, key)
	s.mu.Unlock()

	for _, task := range tasks {
		s.runTask(ctx, key, task)
	}
}

// runTask executes one task, containing both errors and panics so the tick
// loop survives a full process lifetime.
func (s *Scheduler) runTask(ctx context.Context, key string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("alerts: task panicked", "task", task.ID(), "minute", key, "panic", r)
		}
	}()
	if err := task.Run(ctx); err != nil {
		slog.Error("alerts: task failed", "task", task.ID(), "minute", key,
			"what", task.Describe(), "error", err)
		return
	}
	slog.Info("alerts: task executed", "task", task.ID(), "minute", key, "what", task.Describe())
}

// Run drives Tick once per minute until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	slog.Info("alerts: scheduler started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("alerts: scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx, s.clock())
		}
	}
}
