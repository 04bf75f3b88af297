package logging

import (
	"fmt"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestWithStacktrace(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	entry := WithStacktrace(logrus.NewEntry(logger), errors.Wrap(errors.New("boom"), "dispatch"))
	assert.Contains(t, entry.Data, Stacktrace)
	assert.Contains(t, entry.Data, logrus.ErrorKey)

	entry = WithStacktrace(logrus.NewEntry(logger), io.EOF)
	assert.NotContains(t, entry.Data, Stacktrace)
}

func TestExtractStack_FollowsStdlibWrapping(t *testing.T) {
	inner := errors.New("boom")
	wrapped := fmt.Errorf("pass failed: %w", errors.WithMessage(inner, "dispatch"))

	stack := ExtractStack(wrapped)
	assert.Equal(t, inner.(stackTracer).StackTrace(), stack)
	assert.Nil(t, ExtractStack(io.EOF))
}

func TestPrometheusHook(t *testing.T) {
	registry := prometheus.NewRegistry()
	hook := NewPrometheusHook(registry)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(hook)

	logger.Info("a")
	logger.Info("b")
	logger.Warn("c")

	assert.Equal(t, 2.0, testutil.ToFloat64(hook.counter.WithLabelValues("info")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.counter.WithLabelValues("warning")))
}
