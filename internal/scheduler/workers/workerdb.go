package workers

import (
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

const (
	workersTable = "workers"
	idIndex      = "id"    // index for looking up workers by id
	stateIndex   = "state" // index for looking up all workers in a given state
)

// Worker is the scheduler-internal record of one worker instance.
// Records stored in the WorkerDb are immutable; use DeepCopy before modifying one.
type Worker struct {
	// Stable worker identity. A worker keeps its id across restarts.
	Id string
	// Identity of the running process. Changes every time the worker restarts.
	InstanceId string
	// Base url tasks are dispatched to and health checks are sent to.
	Address string
	// When this instance first registered.
	RegisteredAt time.Time
	RemoteWorkerState
}

func (w *Worker) DeepCopy() *Worker {
	if w == nil {
		return nil
	}
	copied := *w
	return &copied
}

// WorkerDb stores the latest record of every known worker.
// It is implemented on top of https://github.com/hashicorp/go-memdb, so readers get consistent snapshots
// while a single writer applies updates.
type WorkerDb struct {
	Db *memdb.MemDB
}

func NewWorkerDb() (*WorkerDb, error) {
	db, err := memdb.NewMemDB(workerDbSchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &WorkerDb{Db: db}, nil
}

func (workerDb *WorkerDb) ReadTxn() *memdb.Txn {
	return workerDb.Db.Txn(false)
}

func (workerDb *WorkerDb) WriteTxn() *memdb.Txn {
	return workerDb.Db.Txn(true)
}

// Upsert will insert the given workers if they don't already exist or replace them if they do.
// Any workers passed to this function *must not* be subsequently modified.
func (workerDb *WorkerDb) Upsert(txn *memdb.Txn, workers []*Worker) error {
	for _, worker := range workers {
		if err := txn.Insert(workersTable, worker); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// GetById returns the worker with the given id or nil if no such worker exists.
// The worker returned by this function *must not* be subsequently modified.
func (workerDb *WorkerDb) GetById(txn *memdb.Txn, id string) (*Worker, error) {
	obj, err := txn.First(workersTable, idIndex, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, nil
	}
	return obj.(*Worker), nil
}

// GetAll returns all workers sorted by id.
// The workers returned by this function *must not* be subsequently modified.
func (workerDb *WorkerDb) GetAll(txn *memdb.Txn) ([]*Worker, error) {
	iter, err := txn.Get(workersTable, idIndex)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return collect(iter), nil
}

// GetByState returns all workers currently in the given state, sorted by id.
func (workerDb *WorkerDb) GetByState(txn *memdb.Txn, state WorkerState) ([]*Worker, error) {
	iter, err := txn.Get(workersTable, stateIndex, int(state))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return collect(iter), nil
}

func collect(iter memdb.ResultIterator) []*Worker {
	result := make([]*Worker, 0)
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		result = append(result, obj.(*Worker))
	}
	return result
}

func workerDbSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			workersTable: {
				Name: workersTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Id"},
					},
					stateIndex: {
						Name:    stateIndex,
						Unique:  false,
						Indexer: &memdb.IntFieldIndex{Field: "State"},
					},
				},
			},
		},
	}
}
