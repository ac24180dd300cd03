package scheduler

import "context"

// TaskID identifies a task within one run.
type TaskID string

// State is the lifecycle of a task.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateSkipped State = "skipped"
	StateFailed  State = "failed"
)

// Settled reports whether the state is terminal.
func (s State) Settled() bool {
	return s == StateDone || s == StateSkipped || s == StateFailed
}

// Outcome is what a task reports back on success.
type Outcome struct {
	// SkipTasks names pending tasks this result makes redundant. They are
	// settled as skipped, which still satisfies their dependents.
	SkipTasks []TaskID

	// CostUSD is the model spend incurred by this task.
	CostUSD float64
}

// RunFunc executes the task's work.
type RunFunc func(ctx context.Context) (Outcome, error)

// Task is one unit of work in the dependency graph.
type Task struct {
	ID    TaskID
	Kind  string // pass kind, e.g. "ocr", "text", "image", "tags"
	DocID string // owning document; failures cascade within one document

	// Deps must all settle before this task runs.
	Deps []TaskID

	// TolerateDepFailure lets the task run even when a dependency failed,
	// as long as every dependency has settled. Join nodes that aggregate
	// best-effort inputs use this.
	TolerateDepFailure bool

	// TolerantDeps names dependencies that only order execution: their
	// failure does not cascade here. Must be a subset of Deps.
	TolerantDeps []TaskID

	Run RunFunc
}

// toleratesDep reports whether a failure of dep should not cascade to t.
func (t *Task) toleratesDep(dep TaskID) bool {
	if t.TolerateDepFailure {
		return true
	}
	for _, d := range t.TolerantDeps {
		if d == dep {
			return true
		}
	}
	return false
}
