package scheduler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/armadaproject/taskhive/internal/common/logging"
	"github.com/armadaproject/taskhive/internal/common/taskhiveerrors"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
	"github.com/armadaproject/taskhive/internal/scheduler/statuses"
	"github.com/armadaproject/taskhive/internal/scheduler/workers"
)

type RegisterWorkerRequest struct {
	WorkerId string `json:"workerId"`
	// Optional. Generated by the scheduler if empty.
	InstanceId string `json:"instanceId"`
	Address    string `json:"address"`
	// Tasks the worker is already running, e.g. because the scheduler restarted.
	RunningTasks []TaskRef `json:"runningTasks"`
}

type TaskRef struct {
	JobId  string `json:"jobId"`
	NodeId string `json:"nodeId"`
}

type RegisterWorkerResponse struct {
	WorkerId   string `json:"workerId"`
	InstanceId string `json:"instanceId"`
	State      string `json:"state"`
}

type HeartbeatRequest struct {
	WorkerId   string `json:"workerId"`
	InstanceId string `json:"instanceId"`
}

type TaskResultRequest struct {
	JobId  string              `json:"jobId"`
	NodeId string              `json:"nodeId"`
	Result statuses.TaskResult `json:"result"`
}

type WorkerView struct {
	Id                      string    `json:"id"`
	InstanceId              string    `json:"instanceId"`
	Address                 string    `json:"address"`
	State                   string    `json:"state"`
	RegisteredAt            time.Time `json:"registeredAt"`
	TimeLastHeartbeat       time.Time `json:"timeLastHeartbeat"`
	TimeLastGoodHealthcheck time.Time `json:"timeLastGoodHealthcheck"`
}

type ResourcesView struct {
	Capacity map[string]model.Resources `json:"capacity"`
	Used     map[string]model.Resources `json:"used"`
	LastPass *PassResult                `json:"lastPass,omitempty"`
}

type TasksView struct {
	Running []*RunningTask            `json:"running"`
	Results map[string]map[string]int `json:"results"`
}

// Api serves the endpoints workers call into, plus a read-only view of the scheduler's state.
type Api struct {
	scheduler *Scheduler
	tracker   *workers.Tracker
}

func NewApi(scheduler *Scheduler, tracker *workers.Tracker) *Api {
	return &Api{scheduler: scheduler, tracker: tracker}
}

func (a *Api) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/workers/register", post(a.registerWorker))
	mux.Handle("/workers/heartbeat", post(a.heartbeat))
	mux.Handle("/tasks/result", post(a.taskResult))
	mux.Handle("/monitor/workers", get(a.monitorWorkers))
	mux.Handle("/monitor/resources", get(a.monitorResources))
	mux.Handle("/monitor/tasks", get(a.monitorTasks))
}

func (a *Api) registerWorker(r *http.Request) (any, error) {
	var req RegisterWorkerRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if req.Address == "" {
		return nil, errors.WithStack(&taskhiveerrors.ErrInvalidArgument{Name: "address", Value: req.Address, Message: "must not be empty"})
	}
	worker, err := a.tracker.Register(req.WorkerId, req.InstanceId, req.Address)
	if err != nil {
		return nil, err
	}
	if len(req.RunningTasks) > 0 {
		keys := make([]statuses.TaskKey, len(req.RunningTasks))
		for i, task := range req.RunningTasks {
			keys[i] = statuses.TaskKey{JobId: task.JobId, NodeId: task.NodeId}
		}
		adopted := a.scheduler.AdoptRunningTasks(worker, keys)
		log.Infof("Adopted %d running tasks from worker %s", adopted, worker.Id)
	}
	return RegisterWorkerResponse{
		WorkerId:   worker.Id,
		InstanceId: worker.InstanceId,
		State:      worker.State.String(),
	}, nil
}

func (a *Api) heartbeat(r *http.Request) (any, error) {
	var req HeartbeatRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	err := a.tracker.Ingest(workers.Event{
		WorkerId:   req.WorkerId,
		InstanceId: req.InstanceId,
		Kind:       workers.HeartbeatReceived,
	})
	return nil, err
}

func (a *Api) taskResult(r *http.Request) (any, error) {
	var req TaskResultRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, a.scheduler.TaskFinished(r.Context(), req.JobId, req.NodeId, req.Result)
}

func (a *Api) monitorWorkers(_ *http.Request) (any, error) {
	all, err := a.tracker.Workers()
	if err != nil {
		return nil, err
	}
	views := make([]WorkerView, len(all))
	for i, worker := range all {
		views[i] = WorkerView{
			Id:                      worker.Id,
			InstanceId:              worker.InstanceId,
			Address:                 worker.Address,
			State:                   worker.State.String(),
			RegisteredAt:            worker.RegisteredAt,
			TimeLastHeartbeat:       worker.TimeLastHeartbeat,
			TimeLastGoodHealthcheck: worker.TimeLastGoodHealthcheck,
		}
	}
	return views, nil
}

func (a *Api) monitorResources(_ *http.Request) (any, error) {
	return ResourcesView{
		Capacity: a.scheduler.Cluster().Capacity,
		Used:     a.scheduler.running.UsageByNodeType(),
		LastPass: a.scheduler.LastPass(),
	}, nil
}

func (a *Api) monitorTasks(_ *http.Request) (any, error) {
	results := map[string]map[string]int{}
	for jobId, counts := range a.scheduler.TaskCounts() {
		results[jobId] = make(map[string]int, len(counts))
		for result, count := range counts {
			results[jobId][result.String()] = count
		}
	}
	return TasksView{
		Running: a.scheduler.RunningTasks(),
		Results: results,
	}, nil
}

type handlerFunc func(r *http.Request) (any, error)

func post(h handlerFunc) http.Handler {
	return withMethod(http.MethodPost, h)
}

func get(h handlerFunc) http.Handler {
	return withMethod(http.MethodGet, h)
}

func withMethod(method string, h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := h(r)
		if err != nil {
			status := taskhiveerrors.HttpStatusFromError(err)
			if status == http.StatusInternalServerError {
				logging.WithStacktrace(log.WithField("path", r.URL.Path), err).Errorf("Error handling %s request", r.Method)
			}
			writeJson(w, status, map[string]string{"error": err.Error()})
			return
		}
		if body == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJson(w, http.StatusOK, body)
	})
}

func decode(r *http.Request, into any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return errors.WithStack(&taskhiveerrors.ErrInvalidArgument{Name: "body", Value: r.URL.Path, Message: err.Error()})
	}
	return nil
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}
