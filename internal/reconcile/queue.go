package reconcile

import "context"

// Task is one deferred step of a run.
type Task struct {
	Label string
	Run   func(ctx context.Context) error
}

// Queue holds tasks and runs them one at a time in the order added.
// Tasks may add to other queues while running.
type Queue struct {
	tasks []Task
}

// Add appends a task.
func (q *Queue) Add(label string, fn func(ctx context.Context) error) {
	q.tasks = append(q.tasks, Task{Label: label, Run: fn})
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Labels returns the task labels in run order.
func (q *Queue) Labels() []string {
	labels := make([]string, len(q.tasks))
	for i, t := range q.tasks {
		labels[i] = t.Label
	}
	return labels
}

// Run executes every task, waiting for each to finish before starting the
// next. It stops at the first error.
func (q *Queue) Run(ctx context.Context) error {
	for i := 0; i < len(q.tasks); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := q.tasks[i].Run(ctx); err != nil {
			return err
		}
	}
	return nil
}
