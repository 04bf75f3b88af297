package policy

import (
	"cmp"
	"slices"

	"github.com/armadaproject/taskhive/internal/scheduler/ledger"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
)

// RankedPriorityPolicy attempts every candidate of the highest priority job before moving to the next one.
// Jobs of equal priority keep their input order.
type RankedPriorityPolicy struct{}

func NewRankedPriorityPolicy() *RankedPriorityPolicy {
	return &RankedPriorityPolicy{}
}

func (p *RankedPriorityPolicy) Schedule(
	jobs *[]*model.JobWithNodes,
	resources *ledger.ResourcesByNodeType,
	launch TaskRunnerCallback,
) int {
	pruneEmpty(jobs)
	slices.SortStableFunc(*jobs, func(a, b *model.JobWithNodes) int {
		return cmp.Compare(b.Job.Priority, a.Job.Priority)
	})

	scheduled := 0
	for len(*jobs) > 0 {
		job := (*jobs)[0]
		for job.HasNodes() {
			node := job.PopFront()
			switch tryToSchedule(resources, node, job.Job, launch) {
			case RanTask:
				scheduled++
			case DoNotRunMoreTasks:
				return scheduled
			}
		}
		*jobs = (*jobs)[1:]
	}
	return scheduled
}
