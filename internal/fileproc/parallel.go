// Package fileproc provides concurrent task processing utilities.
package fileproc

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// WorkerError reports a task that panicked.
type WorkerError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker for %s panicked: %v", e.Task, e.Value)
}

// Workers resolves a requested worker count. Zero or less means one worker
// per CPU.
func Workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// ErrorFunc is called when a task fails. Receives the task name and the
// error. If nil, errors are silently skipped.
type ErrorFunc func(name string, err error)

// Task is a named unit of work.
type Task[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Stream runs tasks on a pool bounded to maxWorkers and sends each successful
// result on the returned channel in completion order. The channel is closed
// once every dispatched task has finished. Failed tasks, including panics
// converted to *WorkerError, are reported through onError and produce no
// result. Once ctx is done no further tasks are dispatched.
func Stream[T any](ctx context.Context, tasks []Task[T], maxWorkers int, onError ErrorFunc) <-chan T {
	out := make(chan T)
	if len(tasks) == 0 {
		close(out)
		return out
	}

	p := pool.New().WithMaxGoroutines(Workers(maxWorkers))
	go func() {
		defer close(out)
		for _, task := range tasks {
			if ctx.Err() != nil {
				break
			}
			p.Go(func() {
				result, err := Run(ctx, task)
				if err != nil {
					if onError != nil {
						onError(task.Name, err)
					}
					return
				}
				out <- result
			})
		}
		p.Wait()
	}()
	return out
}

// Run executes one task on the calling goroutine and converts a panic into
// a *WorkerError.
func Run[T any](ctx context.Context, task Task[T]) (T, error) {
	var (
		result T
		err    error
		pc     panics.Catcher
	)
	pc.Try(func() {
		result, err = task.Run(ctx)
	})
	if r := pc.Recovered(); r != nil {
		var zero T
		return zero, &WorkerError{Task: task.Name, Value: r.Value, Stack: r.Stack}
	}
	return result, err
}
