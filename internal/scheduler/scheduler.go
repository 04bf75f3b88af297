package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/armadaproject/taskhive/internal/common/logging"
	"github.com/armadaproject/taskhive/internal/common/taskhiveerrors"
	"github.com/armadaproject/taskhive/internal/scheduler/launcher"
	"github.com/armadaproject/taskhive/internal/scheduler/ledger"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
	"github.com/armadaproject/taskhive/internal/scheduler/policy"
	"github.com/armadaproject/taskhive/internal/scheduler/statuses"
	"github.com/armadaproject/taskhive/internal/scheduler/workers"
)

// Cluster is the static description of what should run where.
type Cluster struct {
	Jobs  []*model.Job
	Nodes []*model.Node
	// Total amount of each resource kind, per node type.
	Capacity map[string]model.Resources
}

// PassResult summarises one scheduling pass.
type PassResult struct {
	Started   time.Time                  `json:"started"`
	Duration  time.Duration              `json:"duration"`
	Launched  int                        `json:"launched"`
	Remaining map[string]model.Resources `json:"remaining"`
}

// Scheduler periodically offers every eligible (job, node) pair to a policy and launches what the policy picks.
type Scheduler struct {
	cluster     Cluster
	policy      policy.SchedulerPolicy
	tracker     *workers.Tracker
	launcher    *launcher.Launcher
	taskStore   statuses.TaskStore
	statuses    *statuses.Snapshot
	running     *RunningTasks
	metrics     *SchedulerMetrics
	clock       clock.WithTicker
	cyclePeriod time.Duration
	// Serialises passes with each other.
	passMutex sync.Mutex
	lastPass  *PassResult
	lastMutex sync.RWMutex
}

func NewScheduler(
	cluster Cluster,
	schedulerPolicy policy.SchedulerPolicy,
	tracker *workers.Tracker,
	dispatcher launcher.Dispatcher,
	launchesPerSecond float64,
	launchBurst int,
	taskStore statuses.TaskStore,
	metrics *SchedulerMetrics,
	clock clock.WithTicker,
	cyclePeriod time.Duration,
) *Scheduler {
	s := &Scheduler{
		cluster:     cluster,
		policy:      schedulerPolicy,
		tracker:     tracker,
		taskStore:   taskStore,
		statuses:    statuses.NewSnapshot(),
		running:     NewRunningTasks(),
		metrics:     metrics,
		clock:       clock,
		cyclePeriod: cyclePeriod,
	}
	s.launcher = launcher.NewLauncher(dispatcher, launchesPerSecond, launchBurst, s)
	tracker.AddListener(s.onWorkerTransition)
	return s
}

// Initialise loads previously recorded task results so that finished tasks are not run again.
func (s *Scheduler) Initialise(ctx context.Context) error {
	jobIds := make([]string, len(s.cluster.Jobs))
	for i, job := range s.cluster.Jobs {
		jobIds[i] = job.Id
	}
	if err := s.statuses.Load(ctx, s.taskStore, jobIds); err != nil {
		return errors.WithMessage(err, "error loading task statuses")
	}
	log.Infof("Loaded task statuses of %d jobs", len(jobIds))
	return nil
}

// Run initialises the scheduler and then runs a scheduling pass every cycle period until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Initialise(ctx); err != nil {
		return err
	}
	ticker := s.clock.NewTicker(s.cyclePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			result, err := s.RunPass(ctx)
			if err != nil {
				logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error("Error in scheduling pass")
				continue
			}
			if result.Launched > 0 {
				log.Infof("Scheduling pass launched %d tasks in %s", result.Launched, result.Duration)
			}
		}
	}
}

// RunPass runs a single scheduling pass.
func (s *Scheduler) RunPass(ctx context.Context) (*PassResult, error) {
	s.passMutex.Lock()
	defer s.passMutex.Unlock()
	start := s.clock.Now()

	healthy, err := s.tracker.HealthyWorkers()
	if err != nil {
		return nil, err
	}
	resources := ledger.NewResourcesByNodeType(availableResources(s.cluster.Capacity, s.running.UsageByNodeType()))
	candidates := assembleCandidates(s.cluster.Jobs, s.cluster.Nodes, healthy, s.running, s.statuses)
	launched := s.policy.Schedule(&candidates, resources, s.launcher.Callback(ctx, healthy))

	result := &PassResult{
		Started:   start,
		Duration:  s.clock.Since(start),
		Launched:  launched,
		Remaining: resources.Snapshot(),
	}
	s.metrics.ReportPass(result.Duration.Seconds(), launched, s.running.Len())
	for nodeType, remaining := range result.Remaining {
		for name, amount := range remaining {
			s.metrics.ReportAvailable(nodeType, name, amount)
		}
	}
	s.lastMutex.Lock()
	s.lastPass = result
	s.lastMutex.Unlock()
	return result, nil
}

// TaskLaunched is called by the launcher once a task has been accepted by its worker.
func (s *Scheduler) TaskLaunched(job *model.Job, node *model.Node, worker *workers.Worker) {
	s.running.Add(&RunningTask{
		JobId:      job.Id,
		NodeId:     node.Id,
		NodeType:   node.Type,
		WorkerId:   worker.Id,
		InstanceId: worker.InstanceId,
		Resources:  job.Resources.DeepCopy(),
		StartedAt:  s.clock.Now(),
	})
}

// AdoptRunningTasks records tasks that a worker reports as already running, e.g. after a scheduler restart.
// Tasks that do not belong to a configured job, or whose node is not owned by the worker, are ignored.
func (s *Scheduler) AdoptRunningTasks(worker *workers.Worker, tasks []statuses.TaskKey) int {
	jobs := make(map[string]*model.Job, len(s.cluster.Jobs))
	for _, job := range s.cluster.Jobs {
		jobs[job.Id] = job
	}
	nodes := make(map[string]*model.Node, len(s.cluster.Nodes))
	for _, node := range s.cluster.Nodes {
		nodes[node.Id] = node
	}
	adopted := 0
	for _, task := range tasks {
		job, ok := jobs[task.JobId]
		if !ok {
			log.Warnf("Worker %s reported running task of unknown job %s", worker.Id, task.JobId)
			continue
		}
		node, ok := nodes[task.NodeId]
		if !ok || node.Worker != worker.Id {
			log.Warnf("Worker %s reported running task on node %s which it does not own", worker.Id, task.NodeId)
			continue
		}
		s.TaskLaunched(job, node, worker)
		adopted++
	}
	return adopted
}

// TaskDispatchFailed is called by the launcher when a task could not be handed to its worker.
func (s *Scheduler) TaskDispatchFailed(ctx context.Context, job *model.Job, node *model.Node, _ error) {
	s.metrics.ReportDispatchFailure()
	s.recordResult(ctx, job.Id, node.Id, statuses.TaskResultError)
}

// TaskFinished records the result a worker reported for a task and frees the resources the task held.
func (s *Scheduler) TaskFinished(ctx context.Context, jobId, nodeId string, result statuses.TaskResult) error {
	if !result.IsValid() {
		return errors.WithStack(&taskhiveerrors.ErrInvalidArgument{Name: "result", Value: int(result), Message: "unknown task result"})
	}
	if _, ok := s.running.Remove(jobId, nodeId); !ok {
		log.Warnf("Received result %s for task %s/%s which is not known to be running", result, jobId, nodeId)
	}
	s.metrics.ReportTaskResult(result)
	if err := s.taskStore.Store(ctx, jobId, nodeId, result); err != nil {
		return err
	}
	s.statuses.Update(statuses.TaskStatus{JobId: jobId, NodeId: nodeId, Result: result, Timestamp: s.clock.Now()})
	return nil
}

func (s *Scheduler) recordResult(ctx context.Context, jobId, nodeId string, result statuses.TaskResult) {
	if err := s.taskStore.Store(ctx, jobId, nodeId, result); err != nil {
		log.WithError(err).Errorf("Failed to record result %s of task %s/%s", result, jobId, nodeId)
		return
	}
	s.statuses.Update(statuses.TaskStatus{JobId: jobId, NodeId: nodeId, Result: result, Timestamp: s.clock.Now()})
}

// onWorkerTransition forgets the tasks of workers that are gone for good, so their resources become available.
func (s *Scheduler) onWorkerTransition(transition workers.Transition) {
	s.metrics.ReportWorkerTransition(transition)
	if transition.To != workers.Condemned {
		return
	}
	lost := s.running.RemoveByWorker(transition.Worker.Id)
	for _, task := range lost {
		log.Warnf("Task %s/%s was lost with worker %s", task.JobId, task.NodeId, task.WorkerId)
	}
}

// LastPass returns the result of the most recent pass, or nil if none has run yet.
func (s *Scheduler) LastPass() *PassResult {
	s.lastMutex.RLock()
	defer s.lastMutex.RUnlock()
	return s.lastPass
}

func (s *Scheduler) RunningTasks() []*RunningTask {
	return s.running.All()
}

func (s *Scheduler) Cluster() Cluster {
	return s.cluster
}

func (s *Scheduler) TaskCounts() map[string]map[statuses.TaskResult]int {
	return s.statuses.CountByResult()
}
