// ============================================================================
// Hash-Queue Worker - Task Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Runs one task's algorithm to completion in its own goroutine
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Task Goroutine                     │
//   │   ├─ Context (deadline if Timeout)  │
//   │   ├─ recover() around Fn            │
//   │   └─ send Result to resultCh        │
//   └─────────────────────────────────────┘
//
// Error Handling:
//   - returned error -> ExecutionError{Err}
//   - panic          -> ExecutionError{Panic}
//   - nil result     -> ExecutionError{Err: errNoResult}
//   - deadline       -> ExecutionError{Err: context.DeadlineExceeded}
//   Nothing escapes the goroutine, so one failing job never affects the
//   dispatch loop or other running jobs.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"time"

	"github.com/ChuLiYu/hash-queue/pkg/types"
)

var errNoResult = errors.New("algorithm returned no result")

// run executes task and always produces exactly one Result.
func run(ctx context.Context, task Task) Result {
	start := time.Now()

	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	output, err := execute(ctx, task)

	result := Result{
		JobID:    task.Job.ID,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Err = err
		return result
	}
	result.Output = output
	return result
}

type outcome struct {
	res *types.Result
	err error
}

// execute runs Fn in a child goroutine so that an algorithm ignoring ctx
// still releases the task once the deadline passes. The abandoned goroutine
// finishes on its own; its outcome is discarded.
func execute(ctx context.Context, task Task) (*types.Result, error) {
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &ExecutionError{JobID: task.Job.ID, Algorithm: task.Job.Algorithm, Panic: r}}
			}
		}()
		res, err := task.Fn(ctx, task.Job)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		var execErr *ExecutionError
		switch {
		case errors.As(o.err, &execErr):
			return nil, execErr
		case o.err != nil:
			return nil, &ExecutionError{JobID: task.Job.ID, Algorithm: task.Job.Algorithm, Err: o.err}
		case o.res == nil:
			return nil, &ExecutionError{JobID: task.Job.ID, Algorithm: task.Job.Algorithm, Err: errNoResult}
		}
		return o.res, nil
	case <-ctx.Done():
		return nil, &ExecutionError{JobID: task.Job.ID, Algorithm: task.Job.Algorithm, Err: ctx.Err()}
	}
}
