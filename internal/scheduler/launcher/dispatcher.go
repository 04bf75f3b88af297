package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/armadaproject/taskhive/internal/scheduler/model"
	"github.com/armadaproject/taskhive/internal/scheduler/workers"
)

const runTaskPath = "/tasks/run"

// Dispatcher hands a task to the worker that owns its node.
type Dispatcher interface {
	Dispatch(ctx context.Context, worker *workers.Worker, job *model.Job, node *model.Node) error
}

// RunTaskRequest is the body sent to a worker to start a task.
type RunTaskRequest struct {
	JobId      string   `json:"jobId"`
	NodeId     string   `json:"nodeId"`
	InstanceId string   `json:"instanceId"`
	Command    []string `json:"command"`
	// Command rendered as a single shell-escaped string, for workers that run tasks through a shell.
	CommandLine string          `json:"commandLine"`
	Resources   model.Resources `json:"resources"`
}

// HttpDispatcher posts tasks to workers, retrying failed requests a fixed number of times.
type HttpDispatcher struct {
	client     *http.Client
	attempts   uint
	retryDelay time.Duration
}

func NewHttpDispatcher(timeout time.Duration, attempts uint, retryDelay time.Duration) *HttpDispatcher {
	return &HttpDispatcher{
		client:     &http.Client{Timeout: timeout},
		attempts:   max(attempts, 1),
		retryDelay: retryDelay,
	}
}

func (d *HttpDispatcher) Dispatch(ctx context.Context, worker *workers.Worker, job *model.Job, node *model.Node) error {
	body, err := json.Marshal(RunTaskRequest{
		JobId:       job.Id,
		NodeId:      node.Id,
		InstanceId:  worker.InstanceId,
		Command:     job.Command,
		CommandLine: shellquote.Join(job.Command...),
		Resources:   job.Resources,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	url := strings.TrimSuffix(worker.Address, "/") + runTaskPath

	return retry.Do(
		func() error {
			return d.post(ctx, url, body)
		},
		retry.Attempts(d.attempts),
		retry.Delay(d.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && !isPermanent(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Debugf("Dispatch of %s/%s to worker %s failed on attempt %d", job.Id, node.Id, worker.Id, n+1)
		}),
	)
}

// errRejected is returned when the worker understood the request and refused it. Retrying will not help.
type errRejected struct {
	status int
	body   string
}

func (e *errRejected) Error() string {
	return "worker rejected task with status " + http.StatusText(e.status) + ": " + e.body
}

func isPermanent(err error) bool {
	var rejected *errRejected
	return errors.As(err, &rejected)
}

func (d *HttpDispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return errors.WithStack(&errRejected{status: resp.StatusCode, body: strings.TrimSpace(string(msg))})
	}
	return errors.Errorf("worker returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
