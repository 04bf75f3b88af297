package scheduler

import (
	"github.com/armadaproject/taskhive/internal/scheduler/model"
	"github.com/armadaproject/taskhive/internal/scheduler/statuses"
	"github.com/armadaproject/taskhive/internal/scheduler/workers"
)

// assembleCandidates pairs every job with the nodes it may start a task on in this pass: nodes owned by a healthy
// worker, allowed by the job's filters, with no task of the job already running and no final result recorded.
// Jobs and nodes keep their configured order. Jobs without candidates are included and left to the policy to prune.
func assembleCandidates(
	jobs []*model.Job,
	nodes []*model.Node,
	healthyWorkers map[string]*workers.Worker,
	running *RunningTasks,
	finished *statuses.Snapshot,
) []*model.JobWithNodes {
	eligibleNodes := make([]*model.Node, 0, len(nodes))
	for _, node := range nodes {
		if _, ok := healthyWorkers[node.Worker]; ok {
			eligibleNodes = append(eligibleNodes, node)
		}
	}

	candidates := make([]*model.JobWithNodes, 0, len(jobs))
	for _, job := range jobs {
		jobNodes := make([]*model.Node, 0, len(eligibleNodes))
		for _, node := range eligibleNodes {
			if !job.CanRunOn(node) {
				continue
			}
			if running.Has(job.Id, node.Id) || finished.IsFinal(job.Id, node.Id) {
				continue
			}
			jobNodes = append(jobNodes, node)
		}
		candidates = append(candidates, model.NewJobWithNodes(job, jobNodes...))
	}
	return candidates
}
