package fileproc

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func tasks(n int, fn func(i int) (int, error)) []Task[int] {
	out := make([]Task[int], n)
	for i := 0; i < n; i++ {
		out[i] = Task[int]{
			Name: fmt.Sprintf("file%d.c", i),
			Run:  func(context.Context) (int, error) { return fn(i) },
		}
	}
	return out
}

func TestStream(t *testing.T) {
	ctx := context.Background()
	var got []int
	for r := range Stream(ctx, tasks(10, func(i int) (int, error) { return i, nil }), 3, nil) {
		got = append(got, r)
	}

	if len(got) != 10 {
		t.Fatalf("Expected 10 results, got %d", len(got))
	}
	sort.Ints(got)
	for i, v := range got {
		if v != i {
			t.Errorf("Expected result %d at index %d, got %d", i, i, v)
		}
	}
}

func TestStream_EmptyTaskList(t *testing.T) {
	count := 0
	for range Stream[int](context.Background(), nil, 4, nil) {
		count++
	}
	if count != 0 {
		t.Errorf("Expected no results, got %d", count)
	}
}

func TestStream_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	work := tasks(20, func(i int) (int, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return i, nil
	})

	for range Stream(context.Background(), work, 2, nil) {
	}

	if peak.Load() > 2 {
		t.Errorf("Expected at most 2 concurrent tasks, saw %d", peak.Load())
	}
}

func TestStream_ReportsErrors(t *testing.T) {
	var mu sync.Mutex
	failed := map[string]error{}
	onError := func(name string, err error) {
		mu.Lock()
		failed[name] = err
		mu.Unlock()
	}

	work := tasks(3, func(i int) (int, error) {
		if i == 1 {
			return 0, errors.New("simulated error")
		}
		return i, nil
	})

	count := 0
	for range Stream(context.Background(), work, 2, onError) {
		count++
	}

	if count != 2 {
		t.Errorf("Expected 2 successful results, got %d", count)
	}
	if len(failed) != 1 || failed["file1.c"] == nil {
		t.Errorf("Expected file1.c to fail, got %v", failed)
	}
}

func TestStream_RecoversPanics(t *testing.T) {
	work := tasks(3, func(i int) (int, error) {
		if i == 2 {
			panic("boom")
		}
		return i, nil
	})

	var workerErr *WorkerError
	var mu sync.Mutex
	results := 0
	for range Stream(context.Background(), work, 2, func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		errors.As(err, &workerErr)
	}) {
		results++
	}

	if results != 2 {
		t.Errorf("Expected 2 results, got %d", results)
	}
	if workerErr == nil {
		t.Fatal("Expected a WorkerError")
	}
	if workerErr.Task != "file2.c" {
		t.Errorf("Expected task file2.c, got %s", workerErr.Task)
	}
	if workerErr.Value != "boom" {
		t.Errorf("Expected panic value boom, got %v", workerErr.Value)
	}
	if len(workerErr.Stack) == 0 {
		t.Error("Expected a stack trace")
	}
}

func TestStream_CancellationStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int32
	work := tasks(100, func(i int) (int, error) {
		if started.Add(1) == 5 {
			cancel()
		}
		time.Sleep(time.Millisecond)
		return i, nil
	})

	count := 0
	for range Stream(ctx, work, 1, nil) {
		count++
	}

	if count >= 100 {
		t.Errorf("Expected cancellation to stop dispatch, processed %d", count)
	}
	if started.Load() >= 100 {
		t.Errorf("Expected fewer than 100 tasks started, got %d", started.Load())
	}
}

func TestWorkers(t *testing.T) {
	if got := Workers(0); got != runtime.NumCPU() {
		t.Errorf("Workers(0) = %d, want %d", got, runtime.NumCPU())
	}
	if got := Workers(-1); got != runtime.NumCPU() {
		t.Errorf("Workers(-1) = %d, want %d", got, runtime.NumCPU())
	}
	if got := Workers(4); got != 4 {
		t.Errorf("Workers(4) = %d, want 4", got)
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	got, err := Run(ctx, Task[int]{Name: "ok", Run: func(context.Context) (int, error) {
		return 7, nil
	}})
	if err != nil || got != 7 {
		t.Errorf("Run() = %d, %v; want 7, nil", got, err)
	}

	base := errors.New("parse failed")
	_, err = Run(ctx, Task[int]{Name: "fails", Run: func(context.Context) (int, error) {
		return 0, base
	}})
	if !errors.Is(err, base) {
		t.Errorf("Expected task error to pass through, got %v", err)
	}

	got, err = Run(ctx, Task[int]{Name: "boom.c", Run: func(context.Context) (int, error) {
		panic("bad tree")
	}})
	var workerErr *WorkerError
	if !errors.As(err, &workerErr) {
		t.Fatalf("Expected *WorkerError, got %v", err)
	}
	if workerErr.Task != "boom.c" || workerErr.Value != "bad tree" {
		t.Errorf("Unexpected worker error: %+v", workerErr)
	}
	if len(workerErr.Stack) == 0 {
		t.Error("Expected a captured stack")
	}
	if got != 0 {
		t.Errorf("Expected zero result after panic, got %d", got)
	}
}
