package launcher

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/armadaproject/taskhive/internal/scheduler/ledger"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
	"github.com/armadaproject/taskhive/internal/scheduler/policy"
	"github.com/armadaproject/taskhive/internal/scheduler/workers"
)

type fakeDispatcher struct {
	err        error
	dispatched []string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, worker *workers.Worker, job *model.Job, node *model.Node) error {
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, job.Id+"/"+node.Id+"@"+worker.Id)
	return nil
}

type recordingListener struct {
	launched []string
	failed   []string
}

func (l *recordingListener) TaskLaunched(job *model.Job, node *model.Node, _ *workers.Worker) {
	l.launched = append(l.launched, job.Id+"/"+node.Id)
}

func (l *recordingListener) TaskDispatchFailed(_ context.Context, job *model.Job, node *model.Node, _ error) {
	l.failed = append(l.failed, job.Id+"/"+node.Id)
}

var (
	testJob  = &model.Job{Id: "j1", Resources: model.Resources{"slots": 1}}
	testNode = &model.Node{Id: "n1", Type: "host", Worker: "w1"}
	healthy  = map[string]*workers.Worker{"w1": {Id: "w1", InstanceId: "i1"}}
)

func TestLauncher_Callback(t *testing.T) {
	tests := map[string]struct {
		dispatchErr       error
		workers           map[string]*workers.Worker
		slots             int64
		expectedResponse  policy.TaskRunnerResponse
		expectedRemaining int64
		expectedLaunched  []string
		expectedFailed    []string
	}{
		"launches": {
			workers:           healthy,
			slots:             2,
			expectedResponse:  policy.RanTask,
			expectedRemaining: 1,
			expectedLaunched:  []string{"j1/n1"},
		},
		"worker not healthy": {
			workers:           map[string]*workers.Worker{},
			slots:             2,
			expectedResponse:  policy.DidNotRunTask,
			expectedRemaining: 2,
		},
		"not enough resources": {
			workers:           healthy,
			slots:             0,
			expectedResponse:  policy.DidNotRunTask,
			expectedRemaining: 0,
		},
		"dispatch failure releases resources": {
			dispatchErr:       errors.New("connection refused"),
			workers:           healthy,
			slots:             2,
			expectedResponse:  policy.DidNotRunTask,
			expectedRemaining: 2,
			expectedFailed:    []string{"j1/n1"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			listener := &recordingListener{}
			launcher := NewLauncher(&fakeDispatcher{err: tc.dispatchErr}, 0, 0, listener)
			resources := ledger.NewResourcesByNodeType(map[string]model.Resources{"host": {"slots": tc.slots}})

			response := launcher.Callback(context.Background(), tc.workers)(resources, testNode, testJob)

			assert.Equal(t, tc.expectedResponse, response)
			assert.Equal(t, model.Resources{"slots": tc.expectedRemaining}, resources.Remaining("host"))
			assert.Equal(t, tc.expectedLaunched, listener.launched)
			assert.Equal(t, tc.expectedFailed, listener.failed)
		})
	}
}

func TestLauncher_RateLimitEndsPass(t *testing.T) {
	listener := &recordingListener{}
	dispatcher := &fakeDispatcher{}
	launcher := NewLauncher(dispatcher, 0.001, 2, listener)
	resources := ledger.NewResourcesByNodeType(map[string]model.Resources{"host": {"slots": 10}})
	callback := launcher.Callback(context.Background(), healthy)

	assert.Equal(t, policy.RanTask, callback(resources, testNode, testJob))
	assert.Equal(t, policy.RanTask, callback(resources, testNode, testJob))
	assert.Equal(t, policy.DoNotRunMoreTasks, callback(resources, testNode, testJob))
	assert.Len(t, dispatcher.dispatched, 2)
	assert.Equal(t, model.Resources{"slots": 8}, resources.Remaining("host"))
}

func TestLauncher_CancelledContextEndsPass(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	launcher := NewLauncher(&fakeDispatcher{}, 0, 0, &recordingListener{})
	resources := ledger.NewResourcesByNodeType(map[string]model.Resources{"host": {"slots": 10}})

	assert.Equal(t, policy.DoNotRunMoreTasks, launcher.Callback(ctx, healthy)(resources, testNode, testJob))
}

func TestLauncher_WithLongTailPolicy(t *testing.T) {
	listener := &recordingListener{}
	launcher := NewLauncher(&fakeDispatcher{}, 0, 0, listener)
	resources := ledger.NewResourcesByNodeType(map[string]model.Resources{"host": {"slots": 2}})
	nodes := []*model.Node{
		{Id: "n1", Type: "host", Worker: "w1"},
		{Id: "n2", Type: "host", Worker: "w2"},
		{Id: "n3", Type: "host", Worker: "w1"},
	}
	jobs := []*model.JobWithNodes{model.NewJobWithNodes(testJob, nodes...)}

	scheduled := policy.NewLongTailPolicy().Schedule(&jobs, resources, launcher.Callback(context.Background(), healthy))

	// w2 is not healthy, so only the two nodes on w1 run.
	assert.Equal(t, 2, scheduled)
	assert.ElementsMatch(t, []string{"j1/n1", "j1/n3"}, listener.launched)
}
