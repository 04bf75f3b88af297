package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/armadaproject/taskhive/internal/scheduler/model"
	"github.com/armadaproject/taskhive/internal/scheduler/statuses"
)

// RunningTask is a task that has been dispatched and has not reported a result yet.
type RunningTask struct {
	JobId      string          `json:"jobId"`
	NodeId     string          `json:"nodeId"`
	NodeType   string          `json:"nodeType"`
	WorkerId   string          `json:"workerId"`
	InstanceId string          `json:"instanceId"`
	Resources  model.Resources `json:"resources"`
	StartedAt  time.Time       `json:"startedAt"`
}

// RunningTasks tracks dispatched tasks. The resources they hold are subtracted from capacity at the start of
// every scheduling pass.
type RunningTasks struct {
	tasks map[statuses.TaskKey]*RunningTask
	mu    sync.RWMutex
}

func NewRunningTasks() *RunningTasks {
	return &RunningTasks{tasks: map[statuses.TaskKey]*RunningTask{}}
}

func (r *RunningTasks) Add(task *RunningTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[statuses.TaskKey{JobId: task.JobId, NodeId: task.NodeId}] = task
}

func (r *RunningTasks) Has(jobId, nodeId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[statuses.TaskKey{JobId: jobId, NodeId: nodeId}]
	return ok
}

func (r *RunningTasks) Remove(jobId, nodeId string) (*RunningTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := statuses.TaskKey{JobId: jobId, NodeId: nodeId}
	task, ok := r.tasks[key]
	delete(r.tasks, key)
	return task, ok
}

// RemoveByWorker forgets every task running on workerId and returns them.
func (r *RunningTasks) RemoveByWorker(workerId string) []*RunningTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []*RunningTask
	for key, task := range r.tasks {
		if task.WorkerId == workerId {
			removed = append(removed, task)
			delete(r.tasks, key)
		}
	}
	sortTasks(removed)
	return removed
}

// UsageByNodeType sums the resources held by running tasks, per node type.
func (r *RunningTasks) UsageByNodeType() map[string]model.Resources {
	r.mu.RLock()
	defer r.mu.RUnlock()
	usage := map[string]model.Resources{}
	for _, task := range r.tasks {
		if usage[task.NodeType] == nil {
			usage[task.NodeType] = model.Resources{}
		}
		usage[task.NodeType].Add(task.Resources)
	}
	return usage
}

func (r *RunningTasks) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// All returns every running task, sorted by job and then node.
func (r *RunningTasks) All() []*RunningTask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tasks := make([]*RunningTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	sortTasks(tasks)
	return tasks
}

func sortTasks(tasks []*RunningTask) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].JobId != tasks[j].JobId {
			return tasks[i].JobId < tasks[j].JobId
		}
		return tasks[i].NodeId < tasks[j].NodeId
	})
}

// availableResources subtracts usage from capacity for each kind a node type budgets.
func availableResources(capacity map[string]model.Resources, usage map[string]model.Resources) map[string]model.Resources {
	available := make(map[string]model.Resources, len(capacity))
	for nodeType, total := range capacity {
		free := total.DeepCopy()
		for name, used := range usage[nodeType] {
			if _, ok := free[name]; ok {
				free[name] -= used
			}
		}
		available[nodeType] = free
	}
	return available
}
