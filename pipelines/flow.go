package pipelines

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"alphadip-config/types"
)

// ErrSkip is returned by a task that decided not to run. Dependents still run.
var ErrSkip = errors.New("step skipped")

// Flow orchestrates task execution with dependency management
type Flow struct {
	name  string
	tasks map[string]*task
	order []string
	mu    sync.Mutex
}

type task struct {
	name     string
	fn       func(ctx context.Context) error
	deps     []string
	done     bool
	running  bool
	skipped  bool
	err      error
	duration time.Duration
}

// NewFlow creates a new pipeline flow
func NewFlow(name string) *Flow {
	return &Flow{
		name:  name,
		tasks: make(map[string]*task),
	}
}

// AddTask adds a task to the flow with optional dependencies
func (f *Flow) AddTask(name string, fn func(ctx context.Context) error, deps ...string) {
	f.tasks[name] = &task{
		name: name,
		fn:   fn,
		deps: deps,
	}
	f.order = append(f.order, name)
}

// Run executes all tasks in dependency order. Tasks whose dependencies are
// satisfied run in parallel; the first failing wave stops the flow.
func (f *Flow) Run(ctx context.Context) error {
	logger := zap.L().With(zap.String("pipeline", f.name))
	startTime := time.Now()

	logger.Info("pipeline started",
		zap.Int("task_count", len(f.tasks)),
		zap.Strings("tasks", f.order))

	for _, t := range f.tasks {
		for _, dep := range t.deps {
			if _, ok := f.tasks[dep]; !ok {
				return fmt.Errorf("pipeline %s: task %s depends on unknown task %s", f.name, t.name, dep)
			}
		}
	}

	completedCount := 0

	for {
		if err := ctx.Err(); err != nil {
			logger.Warn("pipeline cancelled", zap.Error(err))
			return err
		}

		ready := f.findReadyTasks()
		if len(ready) == 0 {
			if f.allDone() {
				logger.Info("pipeline completed",
					zap.Duration("duration", time.Since(startTime)),
					zap.Int("tasks_completed", completedCount))
				return nil
			}
			return fmt.Errorf("pipeline %s: deadlock detected", f.name)
		}

		// Run ready tasks in parallel
		var wg sync.WaitGroup
		errChan := make(chan error, len(ready))

		for _, t := range ready {
			t.running = true
			wg.Add(1)
			go func(t *task) {
				defer wg.Done()
				taskStart := time.Now()
				logger.Info("step started", zap.String("step", t.name))

				err := t.fn(ctx)

				f.mu.Lock()
				defer f.mu.Unlock()
				t.running = false
				t.duration = time.Since(taskStart)

				switch {
				case errors.Is(err, ErrSkip):
					t.done = true
					t.skipped = true
					logger.Info("step skipped", zap.String("step", t.name))
				case err != nil:
					t.err = fmt.Errorf("%s: %w", t.name, err)
					errChan <- t.err
					logger.Error("step failed",
						zap.String("step", t.name),
						zap.Error(err),
						zap.Duration("duration", t.duration))
				default:
					t.done = true
					completedCount++
					logger.Info("step completed",
						zap.String("step", t.name),
						zap.Duration("duration", t.duration))
				}
			}(t)
		}

		wg.Wait()
		close(errChan)

		var errs []error
		for err := range errChan {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			err := errors.Join(errs...)
			logger.Error("pipeline failed",
				zap.Duration("duration", time.Since(startTime)),
				zap.Int("tasks_completed", completedCount),
				zap.Error(err))
			return err
		}
	}
}

// Results reports every task in the order it was added. Tasks that never ran are skipped.
func (f *Flow) Results() []types.CheckResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]types.CheckResult, 0, len(f.order))
	for _, name := range f.order {
		t := f.tasks[name]
		r := types.CheckResult{Name: name, Duration: t.duration.Seconds()}
		switch {
		case t.err != nil:
			r.Status = types.StatusFailed
			r.Error = errors.Unwrap(t.err).Error()
		case t.skipped || !t.done:
			r.Status = types.StatusSkipped
			r.Duration = 0
		default:
			r.Status = types.StatusPassed
		}
		results = append(results, r)
	}
	return results
}

func (f *Flow) findReadyTasks() []*task {
	var ready []*task
	for _, name := range f.order {
		t := f.tasks[name]
		if t.done || t.running || t.err != nil {
			continue
		}
		allDepsDone := true
		for _, dep := range t.deps {
			if !f.tasks[dep].done {
				allDepsDone = false
				break
			}
		}
		if allDepsDone {
			ready = append(ready, t)
		}
	}
	return ready
}

func (f *Flow) allDone() bool {
	for _, t := range f.tasks {
		if !t.done {
			return false
		}
	}
	return true
}
