// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxHistory is the number of finished tasks kept for inspection.
const DefaultMaxHistory = 100

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler runs callbacks after a delay unless they are cancelled first.
// All methods are safe for concurrent use.
type Scheduler struct {
	clock      Clock
	logger     *zap.Logger
	maxHistory int

	mu      sync.Mutex
	queued  map[string]map[string]*entry // key -> task ID -> entry
	running map[string]*entry            // task ID -> entry
	history []*Task
	stats   Stats
	closed  bool

	// wg counts tasks that are queued or running.
	wg sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

type entry struct {
	task   *Task
	timer  Timer
	ctx    context.Context
	cancel context.CancelFunc
	fn     func(ctx context.Context)
}

// Stats are cumulative counters plus the current queue depth.
type Stats struct {
	Scheduled int `json:"scheduled"`
	Completed int `json:"completed"`
	Canceled  int `json:"canceled"`
	Failed    int `json:"failed"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxHistory bounds the finished-task history (0 disables it).
func WithMaxHistory(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.maxHistory = n
		}
	}
}

// NewScheduler creates a scheduler using the real clock by default.
func NewScheduler(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		clock:      RealClock{},
		logger:     zap.NewNop(),
		maxHistory: DefaultMaxHistory,
		queued:     make(map[string]map[string]*entry),
		running:    make(map[string]*entry),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Schedule runs fn after delay unless the task is cancelled first. A negative
// delay is treated as zero. On a closed scheduler the returned task is
// already cancelled and fn never runs.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func(ctx context.Context)) *Task {
	if delay < 0 {
		delay = 0
	}
	now := s.clock.Now()
	task := NewTask(key, now, now.Add(delay))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		task.cancelTask(now)
		s.stats.Canceled++
		s.recordLocked(task)
		s.logger.Debug("schedule on closed scheduler", zap.String("key", key))
		return task
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	task.cancel = cancel
	e := &entry{task: task, ctx: ctx, cancel: cancel, fn: fn}

	byKey, ok := s.queued[key]
	if !ok {
		byKey = make(map[string]*entry)
		s.queued[key] = byKey
	}
	byKey[task.ID] = e
	s.stats.Scheduled++
	s.wg.Add(1)

	e.timer = s.clock.AfterFunc(delay, func() { s.fire(e) })

	s.logger.Debug("task scheduled",
		zap.String("task_id", task.ID),
		zap.String("key", key),
		zap.Duration("delay", delay))
	return task
}

// fire is the timer callback. It runs fn at most once.
func (s *Scheduler) fire(e *entry) {
	defer s.wg.Done()
	defer e.cancel()

	id, key := e.task.ID, e.task.Key

	s.mu.Lock()
	byKey := s.queued[key]
	if _, ok := byKey[id]; !ok {
		// Cancelled between the timer firing and this callback.
		s.mu.Unlock()
		return
	}
	s.removeQueuedLocked(key, id)
	if !e.task.markStarted(s.clock.Now()) {
		s.mu.Unlock()
		return
	}
	s.running[id] = e
	s.mu.Unlock()

	panicked := s.run(e)

	s.mu.Lock()
	delete(s.running, id)
	if panicked {
		s.stats.Failed++
	} else {
		s.stats.Completed++
	}
	s.recordLocked(e.task)
	s.mu.Unlock()
}

func (s *Scheduler) run(e *entry) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			e.task.markFailed(s.clock.Now(), fmt.Sprint(r))
			s.logger.Error("scheduled task panicked",
				zap.String("task_id", e.task.ID),
				zap.String("key", e.task.Key),
				zap.Any("panic", r))
		}
	}()

	e.fn(e.ctx)
	e.task.markComplete(s.clock.Now())
	return false
}

// Cancel cancels every queued task for key and returns how many were
// cancelled. Callbacks already running for key see their context cancelled.
func (s *Scheduler) Cancel(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelKeyLocked(key)
}

// CancelAll cancels every queued task and returns how many were cancelled.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.queued {
		n += s.cancelKeyLocked(key)
	}
	for _, e := range s.running {
		e.cancel()
	}
	return n
}

func (s *Scheduler) cancelKeyLocked(key string) int {
	now := s.clock.Now()
	n := 0
	for id, e := range s.queued[key] {
		s.removeQueuedLocked(key, id)
		if e.task.cancelTask(now) {
			n++
			s.stats.Canceled++
			s.recordLocked(e.task)
		}
		if e.timer != nil && e.timer.Stop() {
			// The timer will never call fire, so release its slot here.
			e.cancel()
			s.wg.Done()
		}
	}
	for _, e := range s.running {
		if e.task.Key == key {
			e.cancel()
		}
	}
	if n > 0 {
		s.logger.Debug("tasks cancelled", zap.String("key", key), zap.Int("count", n))
	}
	return n
}

func (s *Scheduler) removeQueuedLocked(key, id string) {
	byKey := s.queued[key]
	delete(byKey, id)
	if len(byKey) == 0 {
		delete(s.queued, key)
	}
}

// Pending returns the number of queued tasks for key.
func (s *Scheduler) Pending(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued[key])
}

// Busy reports whether key has a queued or running task.
func (s *Scheduler) Busy(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queued[key]) > 0 {
		return true
	}
	for _, e := range s.running {
		if e.task.Key == key {
			return true
		}
	}
	return false
}

// Wait blocks until every scheduled task has run or been cancelled.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels everything, rejects new tasks and waits for running
// callbacks to return. Close is idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.CancelAll()
	s.baseCancel()
	s.Wait()
}

// Closed reports whether Close has been called.
func (s *Scheduler) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	for _, byKey := range s.queued {
		st.Queued += len(byKey)
	}
	st.Running = len(s.running)
	return st
}

// History returns copies of the most recently finished tasks, oldest first.
func (s *Scheduler) History() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Task, len(s.history))
	for i, t := range s.history {
		out[i] = t.Clone()
	}
	return out
}

func (s *Scheduler) recordLocked(t *Task) {
	if s.maxHistory == 0 {
		return
	}
	s.history = append(s.history, t)
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = append([]*Task(nil), s.history[over:]...)
	}
}
