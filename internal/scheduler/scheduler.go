// Package scheduler runs the per-document pass graph: a dependency-aware,
// bounded worker pool with retry on transient provider errors and failure
// cascades scoped to the owning document.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/folio/internal/providers"
)

// ErrDependencyFailed settles a task whose upstream failed.
var ErrDependencyFailed = fmt.Errorf("dependency failed")

// Events receives task lifecycle notifications.
type Events interface {
	TaskStarted(t *Task)
	TaskFinished(t *Task, state State, err error, attempts int, costUSD float64)
}

type nopEvents struct{}

func (nopEvents) TaskStarted(*Task)                              {}
func (nopEvents) TaskFinished(*Task, State, error, int, float64) {}

// Config configures a scheduler run.
type Config struct {
	Workers       int
	RetryAttempts int           // total attempts per task, including the first
	RetryDelay    time.Duration // base delay for exponential backoff
	Logger        *slog.Logger
	Events        Events
}

// Scheduler executes a task graph. Build one per run: Add every task,
// then Run once.
type Scheduler struct {
	cfg Config

	mu         sync.Mutex
	tasks      map[TaskID]*Task
	order      []TaskID
	states     map[TaskID]State
	errs       map[TaskID]error
	waiting    map[TaskID]int      // unsettled dependency count
	dependents map[TaskID][]TaskID
	failedDeps map[TaskID]bool // task has at least one failed dependency
	unsettled  int
	costUSD    float64

	queue chan *Task
	done  chan struct{}
}

// New creates an empty scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = nopEvents{}
	}
	return &Scheduler{
		cfg:        cfg,
		tasks:      make(map[TaskID]*Task),
		states:     make(map[TaskID]State),
		errs:       make(map[TaskID]error),
		waiting:    make(map[TaskID]int),
		dependents: make(map[TaskID][]TaskID),
		failedDeps: make(map[TaskID]bool),
	}
}

// Add registers a task. All tasks must be added before Run.
func (s *Scheduler) Add(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		return fmt.Errorf("task has no ID")
	}
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("duplicate task ID %q", t.ID)
	}
	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)
	s.states[t.ID] = StatePending
	return nil
}

// Run executes the graph until every task settles or the context is
// cancelled. Task failures do not abort the run; they cascade to
// intolerant dependents and the run continues elsewhere.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if err := s.buildLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	s.queue = make(chan *Task, len(s.tasks))
	s.done = make(chan struct{})
	s.unsettled = len(s.tasks)

	var initial []*Task
	for _, id := range s.order {
		if s.waiting[id] == 0 {
			initial = append(initial, s.tasks[id])
		}
	}
	total := len(s.tasks)
	s.mu.Unlock()

	s.cfg.Logger.Info("scheduler started",
		"tasks", total,
		"workers", s.cfg.Workers,
	)

	if total == 0 {
		return nil
	}

	for _, t := range initial {
		s.enqueue(t)
	}

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			s.workerLoop(ctx, workerNum)
		}(i)
	}

	select {
	case <-s.done:
		wg.Wait()
		if ctx.Err() != nil {
			s.cfg.Logger.Warn("scheduler cancelled", "error", ctx.Err())
			return ctx.Err()
		}
		s.cfg.Logger.Info("scheduler finished", "cost_usd", fmt.Sprintf("%.4f", s.TotalCostUSD()))
		return nil
	case <-ctx.Done():
		wg.Wait()
		s.failUnsettled(ctx.Err())
		s.cfg.Logger.Warn("scheduler cancelled", "error", ctx.Err())
		return ctx.Err()
	}
}

// buildLocked validates dependencies and wires the dependency counters.
func (s *Scheduler) buildLocked() error {
	for _, id := range s.order {
		t := s.tasks[id]
		for _, dep := range t.Deps {
			if _, ok := s.tasks[dep]; !ok {
				return fmt.Errorf("task %q depends on unknown task %q", id, dep)
			}
			s.waiting[id]++
			s.dependents[dep] = append(s.dependents[dep], id)
		}
	}

	// Cycle check: every task must be reachable by repeatedly removing
	// zero-dependency nodes.
	remaining := make(map[TaskID]int, len(s.waiting))
	for _, id := range s.order {
		remaining[id] = s.waiting[id]
	}
	queue := make([]TaskID, 0, len(s.order))
	for _, id := range s.order {
		if remaining[id] == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range s.dependents[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited != len(s.tasks) {
		return fmt.Errorf("task graph contains a cycle")
	}
	return nil
}

func (s *Scheduler) enqueue(t *Task) {
	select {
	case s.queue <- t:
	default:
		// The queue is sized to the task count; this cannot happen unless
		// a task was added after Run.
		s.cfg.Logger.Error("task queue full", "task", t.ID)
	}
}

func (s *Scheduler) workerLoop(ctx context.Context, workerNum int) {
	logger := s.cfg.Logger.With("worker_num", workerNum)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case t := <-s.queue:
			s.execute(ctx, t, logger)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, t *Task, logger *slog.Logger) {
	s.mu.Lock()
	if s.states[t.ID] != StatePending {
		s.mu.Unlock()
		return
	}
	s.states[t.ID] = StateRunning
	s.mu.Unlock()

	s.cfg.Events.TaskStarted(t)
	logger.Debug("task started", "task", t.ID, "kind", t.Kind, "doc", t.DocID)

	var outcome Outcome
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			var runErr error
			outcome, runErr = t.Run(ctx)
			return runErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.cfg.RetryAttempts)),
		retry.Delay(s.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(providers.IsTransient),
		retry.LastErrorOnly(true),
	)

	if err != nil {
		logger.Warn("task failed",
			"task", t.ID,
			"kind", t.Kind,
			"doc", t.DocID,
			"attempts", attempts,
			"error", err,
		)
		s.settle(t.ID, StateFailed, err)
		s.cfg.Events.TaskFinished(t, StateFailed, err, attempts, 0)
		return
	}

	s.mu.Lock()
	s.costUSD += outcome.CostUSD
	s.mu.Unlock()

	for _, skipID := range outcome.SkipTasks {
		s.skip(skipID)
	}

	logger.Debug("task done", "task", t.ID, "kind", t.Kind, "doc", t.DocID)
	s.settle(t.ID, StateDone, nil)
	s.cfg.Events.TaskFinished(t, StateDone, nil, attempts, outcome.CostUSD)
}

// skip settles a pending task as skipped. Running or settled tasks are
// left alone.
func (s *Scheduler) skip(id TaskID) {
	s.mu.Lock()
	if s.states[id] != StatePending {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.settle(id, StateSkipped, nil) {
		if t, ok := s.tasks[id]; ok {
			s.cfg.Events.TaskFinished(t, StateSkipped, nil, 0, 0)
		}
	}
}

// settle records a terminal state and releases or cascades to dependents.
// Returns false when the task had already settled.
func (s *Scheduler) settle(id TaskID, state State, err error) bool {
	type release struct {
		task    *Task
		cascade bool
	}
	var releases []release

	s.mu.Lock()
	if s.states[id].Settled() {
		s.mu.Unlock()
		return false
	}
	s.states[id] = state
	if err != nil {
		s.errs[id] = err
	}
	s.unsettled--
	finished := s.unsettled == 0

	failed := state == StateFailed
	for _, depID := range s.dependents[id] {
		dep := s.tasks[depID]
		if failed && !dep.toleratesDep(id) {
			s.failedDeps[depID] = true
		}
		s.waiting[depID]--
		if s.waiting[depID] > 0 || s.states[depID] != StatePending {
			continue
		}
		releases = append(releases, release{task: dep, cascade: s.failedDeps[depID]})
	}
	s.mu.Unlock()

	for _, r := range releases {
		if r.cascade {
			if s.settle(r.task.ID, StateFailed, ErrDependencyFailed) {
				s.cfg.Events.TaskFinished(r.task, StateFailed, ErrDependencyFailed, 0, 0)
			}
		} else {
			s.enqueue(r.task)
		}
	}

	if finished {
		close(s.done)
	}
	return true
}

// failUnsettled marks everything not yet settled as failed. Used after
// cancellation, once the workers have stopped.
func (s *Scheduler) failUnsettled(cause error) {
	s.mu.Lock()
	var open []TaskID
	for _, id := range s.order {
		if !s.states[id].Settled() {
			open = append(open, id)
		}
	}
	s.mu.Unlock()

	for _, id := range open {
		if s.settle(id, StateFailed, cause) {
			if t, ok := s.tasks[id]; ok {
				s.cfg.Events.TaskFinished(t, StateFailed, cause, 0, 0)
			}
		}
	}
}

// TaskCount returns the number of registered tasks.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// TaskState returns the current state and error of a task.
func (s *Scheduler) TaskState(id TaskID) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[id], s.errs[id]
}

// TotalCostUSD returns the accumulated model spend reported by tasks.
func (s *Scheduler) TotalCostUSD() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.costUSD
}

// Snapshot counts tasks per state.
func (s *Scheduler) Snapshot() map[State]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[State]int)
	for _, st := range s.states {
		counts[st]++
	}
	return counts
}
