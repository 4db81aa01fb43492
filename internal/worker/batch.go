package worker

import (
	"context"
)

// Outcome is the result of applying a function to one item of a batch
type Outcome[R any] struct {
	Index int
	Value R
	Err   error
}

// GetError returns the error from the outcome
func (o *Outcome[R]) GetError() error {
	return o.Err
}

// funcJob adapts a function call on one item to the Job interface
type funcJob[T, R any] struct {
	index int
	item  T
	fn    func(ctx context.Context, item T) (R, error)
}

// Execute runs the function on the item
func (j *funcJob[T, R]) Execute(ctx context.Context) Result {
	value, err := j.fn(ctx, j.item)
	return &Outcome[R]{Index: j.index, Value: value, Err: err}
}

// Map applies fn to every item on a pool of workers and returns one outcome per item,
// in input order. A failing item never affects the others; items that could not run
// because ctx was cancelled carry ctx.Err().
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T) (R, error)) []Outcome[R] {
	if len(items) == 0 {
		return []Outcome[R]{}
	}
	if workers > len(items) {
		workers = len(items)
	}

	// 1. Start the pool
	pool := NewPool(ctx, workers)
	pool.Start()

	// 2. Submit one job per item
	for i, item := range items {
		if !pool.Submit(&funcJob[T, R]{index: i, item: item, fn: fn}) {
			break
		}
	}

	// 3. Collect in order, filling in jobs that never ran
	results := pool.Wait()
	outcomes := make([]Outcome[R], len(items))
	for i := range outcomes {
		if i < len(results) && results[i] != nil {
			outcomes[i] = *results[i].(*Outcome[R])
			continue
		}
		err := context.Canceled
		if ctx != nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		outcomes[i] = Outcome[R]{Index: i, Err: err}
	}

	return outcomes
}

// Errors returns the errors of the failed outcomes
func Errors[R any](outcomes []Outcome[R]) []error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}
