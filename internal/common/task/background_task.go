package task

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Func is a unit of periodic work. A returned error is logged and counted; the task keeps running.
type Func func(ctx context.Context) error

type backgroundTask struct {
	name     string
	interval time.Duration
	fn       Func
	latency  prometheus.Observer
	failures prometheus.Counter
}

// BackgroundTaskManager runs a set of named functions, each on its own fixed cadence, until the context passed to
// Run is cancelled. Register must not be called once Run has started.
type BackgroundTaskManager struct {
	tasks           []*backgroundTask
	latency         *prometheus.HistogramVec
	failures        *prometheus.CounterVec
	clock           clock.WithTicker
	shutdownTimeout time.Duration
}

func NewBackgroundTaskManager(metricsPrefix string, registerer prometheus.Registerer, clock clock.WithTicker) *BackgroundTaskManager {
	factory := promauto.With(registerer)
	return &BackgroundTaskManager{
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricsPrefix + "background_task_latency_seconds",
				Help:    "Latency of each background task run in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
			},
			[]string{"task"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "background_task_failures_total",
				Help: "Number of background task runs that returned an error",
			},
			[]string{"task"},
		),
		clock:           clock,
		shutdownTimeout: 5 * time.Second,
	}
}

// Register adds a task that runs once immediately and then every interval.
func (m *BackgroundTaskManager) Register(name string, interval time.Duration, fn Func) {
	m.tasks = append(m.tasks, &backgroundTask{
		name:     name,
		interval: interval,
		fn:       fn,
		latency:  m.latency.WithLabelValues(name),
		failures: m.failures.WithLabelValues(name),
	})
}

// Run starts every registered task and blocks until ctx is cancelled and the tasks have exited. An error is returned
// if the tasks fail to exit within the shutdown timeout.
func (m *BackgroundTaskManager) Run(ctx context.Context) error {
	wg := sync.WaitGroup{}
	for _, t := range m.tasks {
		wg.Add(1)
		go func(t *backgroundTask) {
			defer wg.Done()
			m.loop(ctx, t)
		}(t)
	}
	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-m.clock.After(m.shutdownTimeout):
		return errors.Errorf("background tasks did not stop within %s", m.shutdownTimeout)
	}
}

func (m *BackgroundTaskManager) loop(ctx context.Context, t *backgroundTask) {
	ticker := m.clock.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		m.runOnce(ctx, t)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
	}
}

func (m *BackgroundTaskManager) runOnce(ctx context.Context, t *backgroundTask) {
	start := m.clock.Now()
	err := t.fn(ctx)
	t.latency.Observe(m.clock.Since(start).Seconds())
	if err != nil && ctx.Err() == nil {
		t.failures.Inc()
		log.WithError(err).WithField("task", t.name).Warn("Background task failed")
	}
}
