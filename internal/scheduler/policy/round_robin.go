package policy

import (
	"github.com/armadaproject/taskhive/internal/scheduler/ledger"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
)

// RoundRobinPolicy offers one node of each job per round, in input order, until every job is exhausted.
type RoundRobinPolicy struct{}

func NewRoundRobinPolicy() *RoundRobinPolicy {
	return &RoundRobinPolicy{}
}

func (p *RoundRobinPolicy) Schedule(
	jobs *[]*model.JobWithNodes,
	resources *ledger.ResourcesByNodeType,
	launch TaskRunnerCallback,
) int {
	scheduled := 0
	for {
		pruneEmpty(jobs)
		if len(*jobs) == 0 {
			return scheduled
		}
		for _, job := range *jobs {
			node := job.PopFront()
			switch tryToSchedule(resources, node, job.Job, launch) {
			case RanTask:
				scheduled++
			case DoNotRunMoreTasks:
				pruneEmpty(jobs)
				return scheduled
			}
		}
	}
}
