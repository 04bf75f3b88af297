package workers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/armadaproject/taskhive/internal/common/taskhiveerrors"
)

// EventKind distinguishes the signals a worker can send or be observed through.
type EventKind int

const (
	HeartbeatReceived EventKind = iota
	HealthcheckPassed
	HealthcheckFailed
)

// Event is a single liveness signal for one worker instance.
type Event struct {
	WorkerId   string
	InstanceId string
	Kind       EventKind
	// When the event happened. The tracker's clock is used if zero.
	Time time.Time
}

// Transition records a worker moving from one state to another.
type Transition struct {
	// The worker record after the transition.
	Worker *Worker
	From   WorkerState
	To     WorkerState
}

// TransitionListener is notified after each state change has been committed.
type TransitionListener func(transition Transition)

// WorkerRepository persists worker records so that condemned instances stay condemned across scheduler restarts.
type WorkerRepository interface {
	GetWorkers(ctx context.Context) ([]*Worker, error)
	StoreWorkers(ctx context.Context, workers []*Worker) error
}

// Tracker ingests worker liveness signals and periodically recomputes every worker's state.
// All updates go through memdb write transactions, so they are applied one at a time, while readers such as the
// scheduling loop always see a consistent snapshot.
type Tracker struct {
	db         *WorkerDb
	thresholds Thresholds
	clock      clock.PassiveClock
	// Optional. Records are checkpointed here after every recomputation.
	repository WorkerRepository
	listeners  []TransitionListener
	mu         sync.RWMutex
}

func NewTracker(db *WorkerDb, thresholds Thresholds, clock clock.PassiveClock, repository WorkerRepository) *Tracker {
	return &Tracker{
		db:         db,
		thresholds: thresholds,
		clock:      clock,
		repository: repository,
	}
}

func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}

// AddListener registers a function to be called on every state transition.
func (t *Tracker) AddListener(listener TransitionListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, listener)
}

// Restore loads previously persisted worker records. It is a no-op without a repository.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.repository == nil {
		return nil
	}
	workers, err := t.repository.GetWorkers(ctx)
	if err != nil {
		return err
	}
	txn := t.db.WriteTxn()
	defer txn.Abort()
	if err := t.db.Upsert(txn, workers); err != nil {
		return err
	}
	txn.Commit()
	log.Infof("Restored %d worker records", len(workers))
	return nil
}

// Register records that an instance of workerId is running at address. If instanceId is empty a new one is
// generated. A new instance replaces any previous instance of the same worker and starts out NotTrusted.
// Re-registering an instance that has been condemned fails with ErrCondemned.
func (t *Tracker) Register(workerId, instanceId, address string) (*Worker, error) {
	if workerId == "" {
		return nil, errors.WithStack(&taskhiveerrors.ErrInvalidArgument{Name: "workerId", Value: workerId, Message: "must not be empty"})
	}
	if instanceId == "" {
		instanceId = uuid.NewString()
	}
	now := t.clock.Now()

	txn := t.db.WriteTxn()
	defer txn.Abort()
	existing, err := t.db.GetById(txn, workerId)
	if err != nil {
		return nil, err
	}

	var replaced *Worker
	var worker *Worker
	switch {
	case existing != nil && existing.InstanceId == instanceId:
		if existing.State == Condemned {
			return nil, errors.WithStack(&taskhiveerrors.ErrCondemned{WorkerId: workerId, InstanceId: instanceId})
		}
		worker = existing.DeepCopy()
		worker.Address = address
		worker.TimeLastHeartbeat = latest(worker.TimeLastHeartbeat, now)
	default:
		if existing != nil {
			replaced = existing.DeepCopy()
		}
		worker = &Worker{
			Id:           workerId,
			InstanceId:   instanceId,
			Address:      address,
			RegisteredAt: now,
			RemoteWorkerState: RemoteWorkerState{
				State:             NotTrusted,
				TimeLastHeartbeat: now,
			},
		}
	}
	if err := t.db.Upsert(txn, []*Worker{worker}); err != nil {
		return nil, err
	}
	txn.Commit()

	if replaced != nil {
		log.Infof("Worker %s instance %s replaced by new instance %s", workerId, replaced.InstanceId, instanceId)
		if replaced.State != Condemned {
			// Whatever the old instance was running is gone with it.
			from := replaced.State
			replaced.State = Condemned
			t.notify([]Transition{{Worker: replaced, From: from, To: Condemned}})
		}
	} else if existing == nil {
		log.Infof("Worker %s registered with instance %s at %s", workerId, instanceId, address)
	}
	return worker.DeepCopy(), nil
}

// Ingest applies a single liveness event. Events for unknown workers fail with ErrNotFound, events for an instance
// other than the current one are ignored, and heartbeats from a condemned instance fail with ErrCondemned.
func (t *Tracker) Ingest(event Event) error {
	eventTime := event.Time
	if eventTime.IsZero() {
		eventTime = t.clock.Now()
	}

	txn := t.db.WriteTxn()
	defer txn.Abort()
	existing, err := t.db.GetById(txn, event.WorkerId)
	if err != nil {
		return err
	}
	if existing == nil {
		return errors.WithStack(&taskhiveerrors.ErrNotFound{Type: "worker", Value: event.WorkerId, Message: "worker must register first"})
	}
	if existing.InstanceId != event.InstanceId {
		if event.Kind == HeartbeatReceived {
			return errors.WithStack(&taskhiveerrors.ErrNotFound{
				Type:    "worker instance",
				Value:   event.InstanceId,
				Message: "worker must register this instance first",
			})
		}
		log.Debugf("Ignoring health check of stale instance %s of worker %s", event.InstanceId, event.WorkerId)
		return nil
	}
	if existing.State == Condemned {
		if event.Kind == HeartbeatReceived {
			return errors.WithStack(&taskhiveerrors.ErrCondemned{WorkerId: existing.Id, InstanceId: existing.InstanceId})
		}
		return nil
	}

	worker := existing.DeepCopy()
	switch event.Kind {
	case HeartbeatReceived:
		worker.TimeLastHeartbeat = latest(worker.TimeLastHeartbeat, eventTime)
	case HealthcheckPassed:
		worker.TimeLastGoodHealthcheck = latest(worker.TimeLastGoodHealthcheck, eventTime)
	case HealthcheckFailed:
		log.Debugf("Worker %s failed a health check", worker.Id)
		return nil
	default:
		return errors.WithStack(&taskhiveerrors.ErrInvalidArgument{Name: "kind", Value: event.Kind, Message: "unknown event kind"})
	}
	if err := t.db.Upsert(txn, []*Worker{worker}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Recompute re-evaluates the state of every worker at the current time, commits the changes, checkpoints the
// records and then notifies listeners of each transition.
func (t *Tracker) Recompute(ctx context.Context) ([]Transition, error) {
	now := t.clock.Now()

	txn := t.db.WriteTxn()
	defer txn.Abort()
	workers, err := t.db.GetAll(txn)
	if err != nil {
		return nil, err
	}
	var transitions []Transition
	updated := make([]*Worker, 0, len(workers))
	for _, worker := range workers {
		newState := worker.ComputeState(now, t.thresholds)
		if newState == worker.State {
			updated = append(updated, worker)
			continue
		}
		changed := worker.DeepCopy()
		changed.State = newState
		updated = append(updated, changed)
		transitions = append(transitions, Transition{Worker: changed, From: worker.State, To: newState})
	}
	for _, transition := range transitions {
		if err := t.db.Upsert(txn, []*Worker{transition.Worker}); err != nil {
			return nil, err
		}
	}
	txn.Commit()

	for _, transition := range transitions {
		entry := log.WithFields(log.Fields{
			"worker":   transition.Worker.Id,
			"instance": transition.Worker.InstanceId,
			"from":     transition.From.String(),
		})
		if transition.To == Condemned {
			entry.Error("Worker condemned")
		} else {
			entry.Infof("Worker is now %s", transition.To)
		}
	}
	if t.repository != nil {
		if err := t.repository.StoreWorkers(ctx, updated); err != nil {
			log.WithError(err).Warn("Failed to checkpoint worker records")
		}
	}
	t.notify(transitions)
	return transitions, nil
}

// Get returns the current record of a worker or nil if it is unknown.
func (t *Tracker) Get(workerId string) *Worker {
	worker, err := t.db.GetById(t.db.ReadTxn(), workerId)
	if err != nil {
		log.WithError(err).Errorf("Failed to look up worker %s", workerId)
		return nil
	}
	return worker.DeepCopy()
}

// Workers returns every known worker sorted by id.
func (t *Tracker) Workers() ([]*Worker, error) {
	return t.db.GetAll(t.db.ReadTxn())
}

// HealthyWorkers returns the workers that may currently be given tasks, keyed by id.
func (t *Tracker) HealthyWorkers() (map[string]*Worker, error) {
	workers, err := t.db.GetByState(t.db.ReadTxn(), Healthy)
	if err != nil {
		return nil, err
	}
	rv := make(map[string]*Worker, len(workers))
	for _, worker := range workers {
		rv[worker.Id] = worker
	}
	return rv, nil
}

// CountByState returns the number of workers in each state.
func (t *Tracker) CountByState() (map[WorkerState]int, error) {
	workers, err := t.Workers()
	if err != nil {
		return nil, err
	}
	counts := make(map[WorkerState]int, len(workerStateNames))
	for state := range workerStateNames {
		counts[state] = 0
	}
	for _, worker := range workers {
		counts[worker.State]++
	}
	return counts, nil
}

func (t *Tracker) notify(transitions []Transition) {
	if len(transitions) == 0 {
		return
	}
	t.mu.RLock()
	listeners := t.listeners
	t.mu.RUnlock()
	for _, transition := range transitions {
		for _, listener := range listeners {
			listener(transition)
		}
	}
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
