package policy

import (
	"cmp"
	"slices"

	"github.com/armadaproject/taskhive/internal/scheduler/ledger"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
)

// LongTailPolicy finishes the jobs closest to completion first: jobs with the fewest remaining candidate nodes
// are fully attempted before any job with more.
type LongTailPolicy struct{}

func NewLongTailPolicy() *LongTailPolicy {
	return &LongTailPolicy{}
}

func (p *LongTailPolicy) Schedule(
	jobs *[]*model.JobWithNodes,
	resources *ledger.ResourcesByNodeType,
	launch TaskRunnerCallback,
) int {
	pruneEmpty(jobs)
	slices.SortStableFunc(*jobs, func(a, b *model.JobWithNodes) int {
		return cmp.Compare(len(a.Nodes), len(b.Nodes))
	})

	scheduled := 0
	for len(*jobs) > 0 {
		job := (*jobs)[0]
		for job.HasNodes() {
			node := job.PopBack()
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
