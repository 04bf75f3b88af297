package statuses

import (
	"context"
	"sync"
)

// Snapshot is an in-memory view of the latest result of every task the scheduler knows about.
type Snapshot struct {
	results map[TaskKey]TaskStatus
	mu      sync.RWMutex
}

func NewSnapshot() *Snapshot {
	return &Snapshot{results: map[TaskKey]TaskStatus{}}
}

// Load replaces the contents of the snapshot with what store holds for jobIds.
func (s *Snapshot) Load(ctx context.Context, store TaskStore, jobIds []string) error {
	statuses, err := store.FetchJobTasks(ctx, jobIds)
	if err != nil {
		return err
	}
	results := make(map[TaskKey]TaskStatus, len(statuses))
	for _, status := range statuses {
		results[TaskKey{JobId: status.JobId, NodeId: status.NodeId}] = status
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = results
	return nil
}

func (s *Snapshot) Update(status TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[TaskKey{JobId: status.JobId, NodeId: status.NodeId}] = status
}

func (s *Snapshot) Get(jobId, nodeId string) (TaskStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.results[TaskKey{JobId: jobId, NodeId: nodeId}]
	return status, ok
}

// IsFinal reports whether the task has a result that means it must never run again.
func (s *Snapshot) IsFinal(jobId, nodeId string) bool {
	status, ok := s.Get(jobId, nodeId)
	return ok && status.Result.IsFinal()
}

// CountByResult returns the number of tasks of each job with each result.
func (s *Snapshot) CountByResult() map[string]map[TaskResult]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[string]map[TaskResult]int{}
	for key, status := range s.results {
		if counts[key.JobId] == nil {
			counts[key.JobId] = map[TaskResult]int{}
		}
		counts[key.JobId][status.Result]++
	}
	return counts
}
