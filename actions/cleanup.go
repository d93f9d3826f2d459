package actions

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs delayed, best-effort cleanup tasks. Failed tasks are logged
// and never retried.
type Scheduler struct {
	Logger  *slog.Logger
	Timeout time.Duration

	mu     sync.Mutex
	tasks  map[*time.Timer]struct{}
	closed bool
}

func NewScheduler(logger *slog.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Logger:  logger,
		Timeout: timeout,
		tasks:   make(map[*time.Timer]struct{}),
	}
}

// Schedule runs fn after delay. It reports false if the scheduler is closed.
func (s *Scheduler) Schedule(delay time.Duration, name string, fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.tasks[timer]
		delete(s.tasks, timer)
		s.mu.Unlock()
		if !live {
			return
		}
		s.run(name, fn)
	})
	s.tasks[timer] = struct{}{}
	cleanupScheduled.Inc()
	return true
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			cleanupResults.WithLabelValues("failed").Inc()
			s.Logger.Warn("cleanup panicked", "task", name, "panic", r)
		}
	}()
	if err := fn(ctx); err != nil {
		cleanupResults.WithLabelValues("failed").Inc()
		s.Logger.Warn("cleanup failed", "task", name, "err", err)
		return
	}
	cleanupResults.WithLabelValues("ok").Inc()
}

// Pending is the number of tasks that have not started yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close cancels every pending task and rejects new ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for t := range s.tasks {
		t.Stop()
		delete(s.tasks, t)
	}
}
