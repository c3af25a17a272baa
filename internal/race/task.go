package race

import "context"

// FromResult adapts an error-returning operation into a Task. An error maps
// to a declined task; onErr, when non-nil, receives it so callers can keep
// failure detail outside the race. Errors caused by the race cancelling the
// task are not reported.
func FromResult[T any](fn func(ctx context.Context) (T, error), onErr func(error)) Task[T] {
	return func(ctx context.Context) (T, bool) {
		v, err := fn(ctx)
		if err != nil {
			if onErr != nil && ctx.Err() == nil {
				onErr(err)
			}
			var zero T
			return zero, false
		}
		return v, true
	}
}

// Where wraps task so that only values satisfying pred count as a win.
func Where[T any](task Task[T], pred func(T) bool) Task[T] {
	return func(ctx context.Context) (T, bool) {
		v, ok := task(ctx)
		if !ok || !pred(v) {
			var zero T
			return zero, false
		}
		return v, true
	}
}

// Value returns a task that immediately yields v.
func Value[T any](v T) Task[T] {
	return func(context.Context) (T, bool) { return v, true }
}

// Empty returns a task that immediately declines.
func Empty[T any]() Task[T] {
	return func(context.Context) (T, bool) {
		var zero T
		return zero, false
	}
}
