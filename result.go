package simulation

// A Result is a typed handle to a spawned task's output.
type Result[T any] struct {
	handle JoinHandle
}

// SpawnWithResult spawns fn on env and returns a typed handle that resolves
// with fn's output once it completes. The task runs whether or not the
// handle is ever waited on.
func SpawnWithResult[T any](env Environment, fn func() (T, error)) *Result[T] {
	handle := env.SpawnResult(func() (any, error) {
		return fn()
	})
	return &Result[T]{handle: handle}
}

// Wait suspends the calling task until the spawned task completes.
func (r *Result[T]) Wait() (T, error) {
	value, err := r.handle.Wait()
	if err != nil {
		var zero T
		return zero, err
	}
	if value == nil {
		var zero T
		return zero, nil
	}
	return value.(T), nil
}
