package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/armadaproject/taskhive/internal/scheduler/model"
)

func validConfig() Configuration {
	return Configuration{
		HttpPort:         8080,
		MetricsPort:      9000,
		Name:             "test",
		CyclePeriod:      time.Second,
		SchedulingPolicy: "long_tail",
		Launch: LaunchConfig{
			DispatchTimeout:  time.Second,
			DispatchAttempts: 1,
		},
		WorkerHealth: WorkerHealthConfig{
			HealthcheckPeriod:  time.Second,
			HealthcheckTimeout: time.Second,
			MaxHeartbeatGap:    5 * time.Second,
			CondemnMultiplier:  2,
			RecomputePeriod:    time.Second,
		},
		TaskStore: TaskStoreConfig{Type: "sqlite", Table: "task_statuses"},
		NodeTypes: map[string]map[string]resource.Quantity{
			"host": {"slots": resource.MustParse("4")},
		},
		Nodes: []NodeConfig{
			{Id: "n1", Type: "host", Worker: "w1", Tags: []string{"ssd"}},
			{Id: "n2", Type: "host", Worker: "w1"},
		},
		Jobs: []JobConfig{
			{
				Id:        "j1",
				Priority:  2,
				Resources: map[string]resource.Quantity{"slots": resource.MustParse("1")},
				Filters:   model.NodeFiltersConfig{Blacklist: []string{"n2"}},
				Command:   []string{"echo", "hi"},
			},
			{Id: "off", Command: []string{"true"}, Disabled: true},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		modify  func(c *Configuration)
		isValid bool
	}{
		"valid": {
			modify:  func(c *Configuration) {},
			isValid: true,
		},
		"unknown policy": {
			modify: func(c *Configuration) { c.SchedulingPolicy = "fifo" },
		},
		"condemn multiplier below one": {
			modify: func(c *Configuration) { c.WorkerHealth.CondemnMultiplier = 0.5 },
		},
		"health check timeout longer than period": {
			modify: func(c *Configuration) { c.WorkerHealth.HealthcheckTimeout = time.Minute },
		},
		"bad table name": {
			modify: func(c *Configuration) { c.TaskStore.Table = "statuses; drop table x" },
		},
		"unknown task store": {
			modify: func(c *Configuration) { c.TaskStore.Type = "mysql" },
		},
		"job without command": {
			modify: func(c *Configuration) { c.Jobs[0].Command = nil },
		},
		"node without worker": {
			modify: func(c *Configuration) { c.Nodes[0].Worker = "" },
		},
		"fraction of nodes out of range": {
			modify: func(c *Configuration) { c.Jobs[0].Filters.FractionOfNodes = 2 },
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			tc.modify(&c)
			err := c.Validate()
			if tc.isValid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestBuildCluster(t *testing.T) {
	c := validConfig()

	jobs, err := c.BuildJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "j1", jobs[0].Id)
	assert.Equal(t, model.Resources{"slots": 1}, jobs[0].Resources)

	nodes, err := c.BuildNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.True(t, jobs[0].CanRunOn(nodes[0]))
	assert.False(t, jobs[0].CanRunOn(nodes[1]))

	capacity, err := c.BuildCapacity()
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Resources{"host": {"slots": 4}}, capacity)
}

func TestBuildCluster_Errors(t *testing.T) {
	c := validConfig()
	c.Jobs = append(c.Jobs, JobConfig{Id: "j1", Command: []string{"x"}})
	_, err := c.BuildJobs()
	assert.Error(t, err)

	c = validConfig()
	c.Jobs[0].Filters.WhitelistRegex = "("
	_, err = c.BuildJobs()
	assert.Error(t, err)

	c = validConfig()
	c.Nodes = append(c.Nodes, NodeConfig{Id: "n3", Type: "gpu", Worker: "w1"})
	_, err = c.BuildNodes()
	assert.Error(t, err)

	c = validConfig()
	c.NodeTypes["host"]["slots"] = resource.MustParse("-1")
	_, err = c.BuildCapacity()
	assert.Error(t, err)
}
