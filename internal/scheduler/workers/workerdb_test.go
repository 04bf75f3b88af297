package workers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerDb_UpsertAndQuery(t *testing.T) {
	db, err := NewWorkerDb()
	require.NoError(t, err)

	w1 := &Worker{Id: "w1", InstanceId: "i1", RemoteWorkerState: RemoteWorkerState{State: Healthy}}
	w2 := &Worker{Id: "w2", InstanceId: "i2", RemoteWorkerState: RemoteWorkerState{State: Degraded}}
	w3 := &Worker{Id: "w3", InstanceId: "i3", RemoteWorkerState: RemoteWorkerState{State: Healthy}}

	txn := db.WriteTxn()
	require.NoError(t, db.Upsert(txn, []*Worker{w3, w1, w2}))
	txn.Commit()

	read := db.ReadTxn()
	got, err := db.GetById(read, "w2")
	require.NoError(t, err)
	assert.Equal(t, w2, got)

	missing, err := db.GetById(read, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := db.GetAll(read)
	require.NoError(t, err)
	assert.Equal(t, []*Worker{w1, w2, w3}, all)

	healthy, err := db.GetByState(read, Healthy)
	require.NoError(t, err)
	assert.Equal(t, []*Worker{w1, w3}, healthy)
}

func TestWorkerDb_ReadersSeeSnapshot(t *testing.T) {
	db, err := NewWorkerDb()
	require.NoError(t, err)

	txn := db.WriteTxn()
	require.NoError(t, db.Upsert(txn, []*Worker{{Id: "w1", RemoteWorkerState: RemoteWorkerState{State: Healthy}}}))
	txn.Commit()

	snapshot := db.ReadTxn()

	txn = db.WriteTxn()
	require.NoError(t, db.Upsert(txn, []*Worker{{Id: "w1", RemoteWorkerState: RemoteWorkerState{State: Degraded}}}))
	txn.Commit()

	old, err := db.GetById(snapshot, "w1")
	require.NoError(t, err)
	assert.Equal(t, Healthy, old.State)

	current, err := db.GetById(db.ReadTxn(), "w1")
	require.NoError(t, err)
	assert.Equal(t, Degraded, current.State)
}

func TestWorker_DeepCopy(t *testing.T) {
	w := &Worker{Id: "w1", RemoteWorkerState: RemoteWorkerState{State: Healthy}}
	c := w.DeepCopy()
	c.State = Condemned
	assert.Equal(t, Healthy, w.State)
	assert.Nil(t, (*Worker)(nil).DeepCopy())
}
