// Package policy contains the strategies that decide in which order (job, node) pairs are offered for launch.
package policy

import (
	"github.com/armadaproject/taskhive/internal/scheduler/ledger"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
)

// TaskRunnerResponse is returned by a TaskRunnerCallback for every (job, node) pair it is offered.
type TaskRunnerResponse int

const (
	// RanTask means the task was launched and its resources have been reserved.
	RanTask TaskRunnerResponse = iota
	// DidNotRunTask means this pair was skipped; the policy moves on to the next candidate.
	DidNotRunTask
	// DoNotRunMoreTasks ends the pass immediately.
	DoNotRunMoreTasks
)

func (r TaskRunnerResponse) String() string {
	switch r {
	case RanTask:
		return "RanTask"
	case DidNotRunTask:
		return "DidNotRunTask"
	case DoNotRunMoreTasks:
		return "DoNotRunMoreTasks"
	default:
		return "Unknown"
	}
}

// TaskRunnerCallback attempts to launch one task. On success it is responsible for reserving the task's
// resources in the ledger it is given.
type TaskRunnerCallback func(resources *ledger.ResourcesByNodeType, node *model.Node, job *model.Job) TaskRunnerResponse

// SchedulerPolicy decides the order in which candidate nodes of each job are offered to the callback during one pass.
//
// Schedule consumes jobs in place: nodes are removed from a job as they are attempted, and jobs are removed once they
// have no candidates left. The return value is the number of tasks for which the callback returned RanTask.
type SchedulerPolicy interface {
	Schedule(jobs *[]*model.JobWithNodes, resources *ledger.ResourcesByNodeType, launch TaskRunnerCallback) int
}

// tryToSchedule skips the callback when the node type obviously cannot fit the job.
func tryToSchedule(
	resources *ledger.ResourcesByNodeType,
	node *model.Node,
	job *model.Job,
	launch TaskRunnerCallback,
) TaskRunnerResponse {
	if !resources.CanReserve(node.Type, job.Resources) {
		return DidNotRunTask
	}
	return launch(resources, node, job)
}

func pruneEmpty(jobs *[]*model.JobWithNodes) {
	kept := (*jobs)[:0]
	for _, job := range *jobs {
		if job.HasNodes() {
			kept = append(kept, job)
		}
	}
	for i := len(kept); i < len(*jobs); i++ {
		(*jobs)[i] = nil
	}
	*jobs = kept
}
