package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/armadaproject/taskhive/internal/scheduler/statuses"
	"github.com/armadaproject/taskhive/internal/scheduler/workers"
)

const metricsPrefix = "taskhive_scheduler_"

type SchedulerMetrics struct {
	passes             prometheus.Counter
	passDuration       prometheus.Histogram
	tasksLaunched      prometheus.Counter
	dispatchFailures   prometheus.Counter
	taskResults        *prometheus.CounterVec
	runningTasks       prometheus.Gauge
	availableResources *prometheus.GaugeVec
	workers            *prometheus.GaugeVec
	workerTransitions  *prometheus.CounterVec
}

func NewSchedulerMetrics(registerer prometheus.Registerer) *SchedulerMetrics {
	factory := promauto.With(registerer)
	return &SchedulerMetrics{
		passes: factory.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "passes_total",
			Help: "Number of scheduling passes run",
		}),
		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    metricsPrefix + "pass_duration_seconds",
			Help:    "Duration of a scheduling pass",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		tasksLaunched: factory.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "tasks_launched_total",
			Help: "Number of tasks dispatched to workers",
		}),
		dispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "dispatch_failures_total",
			Help: "Number of tasks that could not be dispatched",
		}),
		taskResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "task_results_total",
			Help: "Number of task results reported by workers",
		}, []string{"result"}),
		runningTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: metricsPrefix + "running_tasks",
			Help: "Number of tasks currently running",
		}),
		availableResources: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricsPrefix + "available_resources",
			Help: "Resources left unreserved at the end of the last scheduling pass",
		}, []string{"nodeType", "resource"}),
		workers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricsPrefix + "workers",
			Help: "Number of workers in each state",
		}, []string{"state"}),
		workerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "worker_transitions_total",
			Help: "Number of worker state transitions, by new state",
		}, []string{"state"}),
	}
}

func (m *SchedulerMetrics) ReportPass(durationSeconds float64, launched int, running int) {
	m.passes.Inc()
	m.passDuration.Observe(durationSeconds)
	m.tasksLaunched.Add(float64(launched))
	m.runningTasks.Set(float64(running))
}

func (m *SchedulerMetrics) ReportAvailable(nodeType string, resource string, amount int64) {
	m.availableResources.WithLabelValues(nodeType, resource).Set(float64(amount))
}

func (m *SchedulerMetrics) ReportDispatchFailure() {
	m.dispatchFailures.Inc()
}

func (m *SchedulerMetrics) ReportTaskResult(result statuses.TaskResult) {
	m.taskResults.WithLabelValues(result.String()).Inc()
}

func (m *SchedulerMetrics) ReportWorkerCounts(counts map[workers.WorkerState]int) {
	for state, count := range counts {
		m.workers.WithLabelValues(state.String()).Set(float64(count))
	}
}

func (m *SchedulerMetrics) ReportWorkerTransition(transition workers.Transition) {
	m.workerTransitions.WithLabelValues(transition.To.String()).Inc()
}
