// Package statuses persists the outcome of every task so that finished tasks are not run again after a restart.
package statuses

import (
	"context"
	"time"
)

// TaskStatus is the latest recorded result of one (job, node) task.
type TaskStatus struct {
	JobId     string
	NodeId    string
	Result    TaskResult
	Timestamp time.Time
}

// TaskStore records task results. Storing a result for a (job, node) pair that already has one replaces it.
type TaskStore interface {
	Store(ctx context.Context, jobId string, nodeId string, result TaskResult) error
	// FetchJobTasks returns every stored status belonging to any of jobIds.
	FetchJobTasks(ctx context.Context, jobIds []string) ([]TaskStatus, error)
}

// TaskKey identifies a task.
type TaskKey struct {
	JobId  string
	NodeId string
}
