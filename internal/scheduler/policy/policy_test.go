package policy

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/taskhive/internal/scheduler/ledger"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
)

type attempt struct {
	job  string
	node string
}

// recorder is a TaskRunnerCallback that reserves resources like the real launcher does and records every call.
type recorder struct {
	attempts []attempt
	// Responds DoNotRunMoreTasks once this many attempts have been made. Zero means never.
	haltAfter int
}

func (r *recorder) launch(resources *ledger.ResourcesByNodeType, node *model.Node, job *model.Job) TaskRunnerResponse {
	if r.haltAfter > 0 && len(r.attempts) >= r.haltAfter {
		return DoNotRunMoreTasks
	}
	r.attempts = append(r.attempts, attempt{job: job.Id, node: node.Id})
	if !resources.TryReserve(node.Type, job.Resources) {
		return DidNotRunTask
	}
	return RanTask
}

func (r *recorder) jobOrder() []string {
	var order []string
	for _, a := range r.attempts {
		if len(order) == 0 || order[len(order)-1] != a.job {
			order = append(order, a.job)
		}
	}
	return order
}

func makeJob(id string, priority float64, numNodes int) *model.JobWithNodes {
	nodes := make([]*model.Node, numNodes)
	for i := range nodes {
		nodes[i] = &model.Node{Id: fmt.Sprintf("%s-node%d", id, i), Type: "host"}
	}
	return model.NewJobWithNodes(&model.Job{Id: id, Priority: priority, Resources: model.Resources{"slots": 1}}, nodes...)
}

func plentyOfSlots() *ledger.ResourcesByNodeType {
	return ledger.NewResourcesByNodeType(map[string]model.Resources{"host": {"slots": 1000}})
}

func TestLongTail_FewestNodesFirst(t *testing.T) {
	jobs := []*model.JobWithNodes{makeJob("a", 0, 5), makeJob("b", 0, 1), makeJob("c", 0, 3)}
	r := &recorder{}

	scheduled := NewLongTailPolicy().Schedule(&jobs, plentyOfSlots(), r.launch)

	assert.Equal(t, 9, scheduled)
	assert.Equal(t, []string{"b", "c", "a"}, r.jobOrder())
	assert.Equal(t, attempt{job: "b", node: "b-node0"}, r.attempts[0])
	assert.Equal(t, attempt{job: "c", node: "c-node2"}, r.attempts[1])
	assert.Empty(t, jobs)
}

func TestLongTail_TiesKeepInputOrder(t *testing.T) {
	jobs := []*model.JobWithNodes{makeJob("x", 0, 2), makeJob("y", 0, 2), makeJob("z", 0, 1)}
	r := &recorder{}

	NewLongTailPolicy().Schedule(&jobs, plentyOfSlots(), r.launch)

	assert.Equal(t, []string{"z", "x", "y"}, r.jobOrder())
}

func TestLongTail_HaltsImmediately(t *testing.T) {
	jobs := []*model.JobWithNodes{makeJob("a", 0, 3), makeJob("b", 0, 2)}
	r := &recorder{haltAfter: 3}

	scheduled := NewLongTailPolicy().Schedule(&jobs, plentyOfSlots(), r.launch)

	assert.Equal(t, 3, scheduled)
	assert.Len(t, r.attempts, 3)
	// b was completed, a had one node attempted before the node that halted the pass.
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Job.Id)
	assert.Len(t, jobs[0].Nodes, 1)
}

func TestPolicies_PruneJobsWithoutNodes(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			policy, err := New(name)
			require.NoError(t, err)
			jobs := []*model.JobWithNodes{makeJob("empty", 5, 0), makeJob("a", 1, 1), makeJob("empty2", 3, 0)}
			r := &recorder{}

			scheduled := policy.Schedule(&jobs, plentyOfSlots(), r.launch)

			assert.Equal(t, 1, scheduled)
			assert.Equal(t, []attempt{{job: "a", node: "a-node0"}}, r.attempts)
			assert.Empty(t, jobs)
		})
	}
}

func TestPolicies_NeverOvercommit(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			policy, err := New(name)
			require.NoError(t, err)
			jobs := []*model.JobWithNodes{makeJob("a", 1, 4), makeJob("b", 2, 4), makeJob("c", 3, 4)}
			resources := ledger.NewResourcesByNodeType(map[string]model.Resources{"host": {"slots": 5}})
			r := &recorder{}

			scheduled := policy.Schedule(&jobs, resources, r.launch)

			assert.Equal(t, 5, scheduled)
			assert.Equal(t, model.Resources{"slots": 0}, resources.Remaining("host"))
			// Once the ledger is exhausted the pre-check stops further callbacks.
			assert.Len(t, r.attempts, 5)
		})
	}
}

func TestPolicies_HaltReturnsCountSoFar(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			policy, err := New(name)
			require.NoError(t, err)
			jobs := []*model.JobWithNodes{makeJob("a", 1, 3), makeJob("b", 2, 3)}
			r := &recorder{haltAfter: 2}

			scheduled := policy.Schedule(&jobs, plentyOfSlots(), r.launch)

			assert.Equal(t, 2, scheduled)
			assert.Len(t, r.attempts, 2)
		})
	}
}

func TestPolicies_SkipsNodeTypesWithoutCapacity(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			policy, err := New(name)
			require.NoError(t, err)
			job := makeJob("a", 1, 2)
			job.Nodes[0].Type = "full"
			jobs := []*model.JobWithNodes{job}
			resources := ledger.NewResourcesByNodeType(map[string]model.Resources{
				"host": {"slots": 1},
				"full": {"slots": 0},
			})
			r := &recorder{}

			scheduled := policy.Schedule(&jobs, resources, r.launch)

			assert.Equal(t, 1, scheduled)
			assert.Equal(t, []attempt{{job: "a", node: "a-node1"}}, r.attempts)
		})
	}
}

func TestRankedPriority_HighestFirst(t *testing.T) {
	jobs := []*model.JobWithNodes{makeJob("low", 1, 2), makeJob("high", 10, 2), makeJob("mid", 5, 1), makeJob("mid2", 5, 1)}
	r := &recorder{}

	scheduled := NewRankedPriorityPolicy().Schedule(&jobs, plentyOfSlots(), r.launch)

	assert.Equal(t, 6, scheduled)
	assert.Equal(t, []string{"high", "mid", "mid2", "low"}, r.jobOrder())
	assert.Equal(t, attempt{job: "high", node: "high-node0"}, r.attempts[0])
}

func TestRoundRobin_Interleaves(t *testing.T) {
	jobs := []*model.JobWithNodes{makeJob("a", 0, 2), makeJob("b", 0, 1), makeJob("c", 0, 2)}
	r := &recorder{}

	scheduled := NewRoundRobinPolicy().Schedule(&jobs, plentyOfSlots(), r.launch)

	assert.Equal(t, 5, scheduled)
	assert.Equal(t, []attempt{
		{job: "a", node: "a-node0"},
		{job: "b", node: "b-node0"},
		{job: "c", node: "c-node0"},
		{job: "a", node: "a-node1"},
		{job: "c", node: "c-node1"},
	}, r.attempts)
}

func TestRandomizedPriority_AttemptsEveryNodeOnce(t *testing.T) {
	jobs := []*model.JobWithNodes{makeJob("a", 1, 3), makeJob("b", 100, 3), makeJob("c", 0, 2)}
	r := &recorder{}

	scheduled := NewRandomizedPriorityPolicy(rand.New(rand.NewSource(42))).Schedule(&jobs, plentyOfSlots(), r.launch)

	assert.Equal(t, 8, scheduled)
	seen := map[attempt]bool{}
	for _, a := range r.attempts {
		assert.False(t, seen[a], "node attempted twice: %v", a)
		seen[a] = true
	}
	// Zero priority jobs only run once weighted jobs are exhausted.
	assert.Equal(t, "c", r.attempts[len(r.attempts)-1].job)
	assert.Equal(t, "c", r.attempts[len(r.attempts)-2].job)
}

func TestRandomizedPriority_FavoursHigherPriority(t *testing.T) {
	random := rand.New(rand.NewSource(7))
	policy := NewRandomizedPriorityPolicy(random)
	firstPicks := map[string]int{}
	for i := 0; i < 1000; i++ {
		jobs := []*model.JobWithNodes{makeJob("low", 1, 1), makeJob("high", 9, 1)}
		r := &recorder{haltAfter: 1}
		policy.Schedule(&jobs, plentyOfSlots(), r.launch)
		firstPicks[r.attempts[0].job]++
	}
	assert.InDelta(t, 900, firstPicks["high"], 60)
}

func TestNew_UnknownPolicy(t *testing.T) {
	_, err := New("fifo")
	assert.Error(t, err)
	assert.Equal(t, []string{"long_tail", "randomized_priority", "ranked_priority", "round_robin"}, Names())
}
