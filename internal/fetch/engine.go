// Package fetch runs many point fetches under a fixed concurrency cap.
package fetch

import (
	"context"
	"sync"

	"solvtrack/internal/model"
)

const DefaultConcurrency = 20

// Task is one pending point fetch.
type Task struct {
	Company model.Company
	Account model.Account
}

// FetchFunc resolves a single task. A (zero row, false) return means the
// fetch was empty or failed; the engine discards it without surfacing an
// error.
type FetchFunc func(ctx context.Context, task Task) (model.StatRow, bool)

// Progress is invoked after every task completes, successful or not.
type Progress func(done, total int)

// Engine executes tasks with at most Concurrency in flight. The
// admission slot is held only around the fetch itself, so a slow
// response cannot starve the queue beyond the cap.
type Engine struct {
	Concurrency int
}

// Run executes all tasks and returns the successful rows in completion
// order. Absent results are dropped, not counted as errors.
func (e Engine) Run(ctx context.Context, tasks []Task, fn FetchFunc, progress Progress) []model.StatRow {
	if len(tasks) == 0 {
		return nil
	}

	limit := e.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	slots := make(chan struct{}, limit)
	results := make(chan model.StatRow, len(tasks))
	var wg sync.WaitGroup

	var mu sync.Mutex
	done := 0
	total := len(tasks)

	for _, task := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()

			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				finish(&mu, &done, total, progress)
				return
			}
			row, ok := fn(ctx, task)
			<-slots

			if ok {
				results <- row
			}
			finish(&mu, &done, total, progress)
		}(task)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	rows := make([]model.StatRow, 0, len(tasks))
	for row := range results {
		rows = append(rows, row)
	}
	return rows
}

func finish(mu *sync.Mutex, done *int, total int, progress Progress) {
	if progress == nil {
		return
	}
	mu.Lock()
	*done++
	current := *done
	mu.Unlock()
	progress(current, total)
}
