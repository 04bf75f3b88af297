package statuses

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/taskhive/internal/common/taskhiveerrors"
)

// TaskResult is the outcome a worker reports for a task. The numeric values are persisted and must not change.
type TaskResult int

const (
	// The task completed and must not run again.
	TaskResultSuccess TaskResult = 1
	// The task stopped before finishing and should be run again.
	TaskResultIncomplete TaskResult = 2
	// The task failed permanently and must not run again.
	TaskResultFailed TaskResult = 3
	// The task could not be run, e.g. because dispatch failed. It may be retried.
	TaskResultError TaskResult = 4
)

var taskResultNames = map[TaskResult]string{
	TaskResultSuccess:    "SUCCESS",
	TaskResultIncomplete: "INCOMPLETE",
	TaskResultFailed:     "FAILED",
	TaskResultError:      "ERROR",
}

func (r TaskResult) String() string {
	if name, ok := taskResultNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsFinal reports whether a task with this result is done for good and should never be scheduled again.
func (r TaskResult) IsFinal() bool {
	return r == TaskResultSuccess || r == TaskResultFailed
}

func (r TaskResult) IsValid() bool {
	_, ok := taskResultNames[r]
	return ok
}

// ParseTaskResult accepts the names returned by TaskResult.String, case-insensitively.
func ParseTaskResult(s string) (TaskResult, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for result, name := range taskResultNames {
		if name == upper {
			return result, nil
		}
	}
	return 0, errors.WithStack(&taskhiveerrors.ErrInvalidArgument{
		Name:    "result",
		Value:   s,
		Message: "expected one of SUCCESS, INCOMPLETE, FAILED, ERROR",
	})
}

func (r TaskResult) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, errors.Errorf("invalid task result %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *TaskResult) UnmarshalText(text []byte) error {
	parsed, err := ParseTaskResult(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
