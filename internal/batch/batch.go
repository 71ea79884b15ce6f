// internal/batch/batch.go
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultConcurrency bounds how many tasks of one batch run at once.
	DefaultConcurrency = 5

	// Inter-batch delay is clamped to keep the request rate polite without
	// stalling large runs.
	minDelay     = 100 * time.Millisecond
	maxDelay     = time.Second
	defaultDelay = 500 * time.Millisecond
)

// Task is one unit of batch work. Run must honor ctx cancellation.
type Task struct {
	// ID correlates the task in logs and results. Empty gets a fresh uuid.
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

// Failure records one task that returned an error.
type Failure struct {
	TaskID string
	Name   string
	Err    error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s (%s): %v", f.Name, f.TaskID, f.Err)
}

// Result aggregates a finished run. A task failure never aborts the batch;
// it lands here instead.
type Result struct {
	Succeeded []string
	Failed    []Failure
}

// Options tunes a Run.
type Options struct {
	Concurrency int
	Delay       time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Delay <= 0 {
		o.Delay = defaultDelay
	}
	if o.Delay < minDelay {
		o.Delay = minDelay
	}
	if o.Delay > maxDelay {
		o.Delay = maxDelay
	}
	return o
}

// Runner executes task lists in sequential batches of bounded size. Tasks
// within a batch run concurrently; batches are separated by a fixed delay.
type Runner struct {
	opts   Options
	logger *zap.Logger
}

func NewRunner(opts Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		opts:   opts.withDefaults(),
		logger: logger.Named("batch"),
	}
}

// Run walks the tasks in batches. It returns early only on context
// cancellation; every other failure is captured per task in the Result.
// Tasks remaining after a cancellation are not reported as failed — their
// outcome is unknown.
func (r *Runner) Run(ctx context.Context, tasks []Task) (*Result, error) {
	result := &Result{}
	if len(tasks) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	total := (len(tasks) + r.opts.Concurrency - 1) / r.opts.Concurrency

	for batchNum := 0; len(tasks) > 0; batchNum++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n := r.opts.Concurrency
		if n > len(tasks) {
			n = len(tasks)
		}
		current := tasks[:n]
		tasks = tasks[n:]

		r.logger.Debug("Running batch",
			zap.Int("batch", batchNum+1),
			zap.Int("total_batches", total),
			zap.Int("tasks", len(current)))

		var wg sync.WaitGroup
		for i := range current {
			task := current[i]
			if task.ID == "" {
				task.ID = uuid.NewString()
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := task.Run(ctx); err != nil {
					r.logger.Warn("Batch task failed",
						zap.String("task_id", task.ID),
						zap.String("task", task.Name),
						zap.Error(err))
					mu.Lock()
					result.Failed = append(result.Failed, Failure{TaskID: task.ID, Name: task.Name, Err: err})
					mu.Unlock()
					return
				}
				mu.Lock()
				result.Succeeded = append(result.Succeeded, task.ID)
				mu.Unlock()
			}()
		}
		wg.Wait()

		if len(tasks) > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(r.opts.Delay):
			}
		}
	}

	r.logger.Info("Batch run finished",
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}
