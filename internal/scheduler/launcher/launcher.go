// Package launcher turns the decisions of a scheduling policy into tasks running on workers.
package launcher

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/armadaproject/taskhive/internal/scheduler/ledger"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
	"github.com/armadaproject/taskhive/internal/scheduler/policy"
	"github.com/armadaproject/taskhive/internal/scheduler/workers"
)

// Listener is told about the outcome of every dispatch.
type Listener interface {
	TaskLaunched(job *model.Job, node *model.Node, worker *workers.Worker)
	TaskDispatchFailed(ctx context.Context, job *model.Job, node *model.Node, err error)
}

// Launcher builds the TaskRunnerCallback used for a scheduling pass.
type Launcher struct {
	dispatcher Dispatcher
	// Nil means launches are not rate limited.
	limiter  *rate.Limiter
	listener Listener
}

// NewLauncher returns a Launcher allowing launchesPerSecond sustained launches with the given burst.
// A rate of zero disables rate limiting.
func NewLauncher(dispatcher Dispatcher, launchesPerSecond float64, burst int, listener Listener) *Launcher {
	var limiter *rate.Limiter
	if launchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(launchesPerSecond), max(burst, 1))
	}
	return &Launcher{
		dispatcher: dispatcher,
		limiter:    limiter,
		listener:   listener,
	}
}

// Callback returns a TaskRunnerCallback dispatching to the given healthy workers.
//
// For each offered (job, node) pair the callback reserves the job's resources, takes a token from the rate limiter
// and dispatches the task. Resources are released again if the rate limit is hit or the dispatch fails. Hitting the
// rate limit or cancelling ctx ends the pass.
func (l *Launcher) Callback(ctx context.Context, healthyWorkers map[string]*workers.Worker) policy.TaskRunnerCallback {
	return func(resources *ledger.ResourcesByNodeType, node *model.Node, job *model.Job) policy.TaskRunnerResponse {
		if ctx.Err() != nil {
			return policy.DoNotRunMoreTasks
		}
		worker, ok := healthyWorkers[node.Worker]
		if !ok {
			return policy.DidNotRunTask
		}
		if !resources.TryReserve(node.Type, job.Resources) {
			return policy.DidNotRunTask
		}
		if l.limiter != nil && !l.limiter.Allow() {
			resources.Release(node.Type, job.Resources)
			log.Debugf("Launch rate limit reached; ending scheduling pass")
			return policy.DoNotRunMoreTasks
		}
		if err := l.dispatcher.Dispatch(ctx, worker, job, node); err != nil {
			resources.Release(node.Type, job.Resources)
			log.WithError(err).Warnf("Failed to dispatch task %s/%s to worker %s", job.Id, node.Id, worker.Id)
			l.listener.TaskDispatchFailed(ctx, job, node, err)
			return policy.DidNotRunTask
		}
		l.listener.TaskLaunched(job, node, worker)
		return policy.RanTask
	}
}
