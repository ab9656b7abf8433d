package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks. The context is
// cancelled when the scheduler stops or the task is removed.
type TaskFn func(ctx context.Context) error

// TaskStatus is a snapshot of one registered task.
type TaskStatus struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRun   time.Time     `json:"last_run"`
	LastTook  time.Duration `json:"last_took"`
	LastError string        `json:"last_error,omitempty"`
}

// Scheduler runs named periodic maintenance tasks such as news pruning and
// gauge refreshes.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	logger *zap.Logger
	ctx    context.Context
	stop   context.CancelFunc
}

type task struct {
	cancel context.CancelFunc
	status TaskStatus // guarded by Scheduler.mu
}

// New creates a Scheduler. Nothing runs until AddTicker.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		logger: logger.Named("scheduler"),
		ctx:    ctx,
		stop:   cancel,
	}
}

// AddTicker runs fn every interval under name, replacing any task already
// registered with that name.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	if interval <= 0 {
		s.logger.Warn("task not registered: non-positive interval", zap.String("task", name))
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{cancel: cancel, status: TaskStatus{Name: name, Interval: interval}}

	s.mu.Lock()
	if old, ok := s.tasks[name]; ok {
		old.cancel()
	}
	s.tasks[name] = t
	s.mu.Unlock()

	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				s.run(ctx, t, fn)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("task registered", zap.String("task", name), zap.Duration("interval", interval))
}

// RunNow executes fn once, synchronously, with the same panic and error
// handling as a tick. A run of a registered name counts in its status.
func (s *Scheduler) RunNow(name string, fn TaskFn) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		t = &task{status: TaskStatus{Name: name}}
	}
	s.run(s.ctx, t, fn)
}

func (s *Scheduler) run(ctx context.Context, t *task, fn TaskFn) {
	start := time.Now()
	err := s.call(ctx, fn)
	took := time.Since(start)

	s.mu.Lock()
	t.status.Runs++
	t.status.LastRun = start
	t.status.LastTook = took
	t.status.LastError = ""
	if err != nil {
		t.status.Failures++
		t.status.LastError = err.Error()
	}
	name := t.status.Name
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("task failed", zap.String("task", name), zap.Error(err))
		return
	}
	s.logger.Debug("task done", zap.String("task", name), zap.Duration("took", took))
}

// call runs fn, turning a panic into an error.
func (s *Scheduler) call(ctx context.Context, fn TaskFn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", zap.Any("recover", r), zap.Stack("stack"))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Remove stops and removes a task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		t.cancel()
		delete(s.tasks, name)
	}
}

// Stop stops all tasks. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stop()
}

// Tasks returns the status of every registered task, sorted by name.
func (s *Scheduler) Tasks() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
