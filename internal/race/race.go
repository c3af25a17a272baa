// Package race runs several independent tasks concurrently and keeps only the
// first one that produces a value. Every task still running once the outcome
// is decided has its context cancelled before the call returns.
//
// The engine does not wait for cancelled tasks to exit and never observes
// anything they produce afterwards. Tasks that hold external resources
// (subprocesses, connections) must release them when their context is done.
package race

import (
	"context"
	"time"

	"github.com/google/uuid"

	"toolrace/internal/logging"
)

// Task is one unit of work in a race. Returning ok=false means the task
// declined: it failed, found nothing, or was cancelled.
type Task[T any] func(ctx context.Context) (value T, ok bool)

// Race starts every task at once and returns the value of the first task
// that reports ok=true. It returns ok=false when there are no tasks, when
// every task declined, or when ctx is done before a winner is recorded.
func Race[T any](ctx context.Context, tasks ...Task[T]) (T, bool) {
	var zero T
	if len(tasks) == 0 {
		return zero, false
	}

	id := uuid.NewString()
	log := logging.Get(logging.CategoryRace).With("race_id", id)
	timer := logging.StartTimer(logging.CategoryRace, "race "+id)
	defer timer.Stop()

	// Single slot: first send wins, later sends fall through the default.
	winner := make(chan T, 1)
	finished := make(chan int, len(tasks))

	cancels := make([]context.CancelFunc, len(tasks))
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	log.Debug("starting %d tasks", len(tasks))
	for i, task := range tasks {
		taskCtx, cancel := context.WithCancel(ctx)
		cancels[i] = cancel
		go run(taskCtx, i, task, winner, finished, log)
	}

	remaining := len(tasks)
	for {
		select {
		case v := <-winner:
			log.Debug("winner recorded with %d tasks still pending", remaining)
			return v, true
		case <-finished:
			remaining--
			if remaining > 0 {
				continue
			}
			// A winning task sends before it reports finished.
			select {
			case v := <-winner:
				return v, true
			default:
			}
			log.Debug("all %d tasks declined", len(tasks))
			return zero, false
		case <-ctx.Done():
			log.Debug("race abandoned: %v", ctx.Err())
			return zero, false
		}
	}
}

// RaceWithTimeout is Race bounded by an overall deadline. Expiry is a normal
// outcome: it yields ok=false and cancels every running task.
func RaceWithTimeout[T any](ctx context.Context, d time.Duration, tasks ...Task[T]) (T, bool) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return Race(ctx, tasks...)
}

func run[T any](ctx context.Context, idx int, task Task[T], winner chan<- T, finished chan<- int, log *logging.Logger) {
	defer func() { finished <- idx }()
	defer func() {
		if r := recover(); r != nil {
			log.Warn("task %d panicked: %v", idx, r)
		}
	}()

	v, ok := task(ctx)
	if !ok || ctx.Err() != nil {
		return
	}
	select {
	case winner <- v:
	default:
	}
}
