package poll

import (
	"fmt"

	"github.com/dgnsrekt/gexstream/internal/fetch"
)

// Task is one underlying/expiration fetch in a poll cycle.
type Task struct {
	Underlying string
	Expiration string
}

func (t Task) String() string {
	return fmt.Sprintf("%s/%s", t.Underlying, t.Expiration)
}

func (t Task) params() fetch.Params {
	return fetch.Params{
		Underlying: t.Underlying,
		Expiration: t.Expiration,
	}
}

// TaskResult is the outcome of one fetch task.
type TaskResult struct {
	Task       Task
	Success    bool
	Incomplete bool
	Error      error
}
