package logging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// PrometheusHook is a logrus.Hook counting log lines by level.
type PrometheusHook struct {
	counter *prometheus.CounterVec
}

func NewPrometheusHook(registerer prometheus.Registerer) *PrometheusHook {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "log_messages",
		Help: "Total number of log lines logged by level",
	}, []string{"level"})
	registerer.MustRegister(counter)
	return &PrometheusHook{counter: counter}
}

func (h *PrometheusHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}
}

func (h *PrometheusHook) Fire(entry *logrus.Entry) error {
	h.counter.WithLabelValues(entry.Level.String()).Inc()
	return nil
}
