package policy

import (
	"math/rand"

	"github.com/armadaproject/taskhive/internal/scheduler/ledger"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
)

// RandomizedPriorityPolicy repeatedly picks a job at random, weighted by priority, and offers it one node.
// Jobs with non-positive priority are only picked once no positively weighted job has candidates left.
type RandomizedPriorityPolicy struct {
	random *rand.Rand
}

func NewRandomizedPriorityPolicy(random *rand.Rand) *RandomizedPriorityPolicy {
	return &RandomizedPriorityPolicy{random: random}
}

func (p *RandomizedPriorityPolicy) Schedule(
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
		job := (*jobs)[p.pick(*jobs)]
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

func (p *RandomizedPriorityPolicy) pick(jobs []*model.JobWithNodes) int {
	total := 0.0
	for _, job := range jobs {
		total += max(job.Job.Priority, 0)
	}
	if total <= 0 {
		return p.random.Intn(len(jobs))
	}
	target := p.random.Float64() * total
	for i, job := range jobs {
		weight := max(job.Job.Priority, 0)
		if target < weight {
			return i
		}
		target -= weight
	}
	// Floating point rounding can leave target marginally above the last weight.
	for i := len(jobs) - 1; i >= 0; i-- {
		if jobs[i].Job.Priority > 0 {
			return i
		}
	}
	return len(jobs) - 1
}
