package async

import (
	"context"
	"errors"
	"fmt"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunParallel executes tasks in parallel and waits for all of them. Every
// error is returned, joined and prefixed with its task name. With failFast
// the context passed to the remaining tasks is cancelled on the first error.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "save report", Func: save},
//	    {Name: "upload report", Func: upload},
//	}
//	if err := RunParallel(ctx, tasks, false); err != nil {
//	    return err
//	}
func RunParallel(ctx context.Context, tasks []Task, failFast bool) error {
	if len(tasks) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		name string
		err  error
	}

	resultChan := make(chan result, len(tasks))

	// Start all tasks
	for _, task := range tasks {
		go func() {
			resultChan <- result{name: task.Name, err: task.Func(ctx)}
		}()
	}

	var errs []error
	for range len(tasks) {
		res := <-resultChan
		if res.err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", res.name, res.err))
		if failFast {
			cancel()
		}
	}

	return errors.Join(errs...)
}
