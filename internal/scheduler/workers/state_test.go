package workers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

func TestComputeState(t *testing.T) {
	tests := map[string]struct {
		state      RemoteWorkerState
		now        time.Time
		thresholds Thresholds
		expected   WorkerState
	}{
		"never health checked stays not trusted": {
			state:      RemoteWorkerState{State: NotTrusted, TimeLastHeartbeat: at(0)},
			now:        at(0),
			thresholds: Thresholds{MaxHeartbeatGap: time.Second, CondemnMultiplier: 1},
			expected:   NotTrusted,
		},
		"not trusted becomes healthy after a health check": {
			state:      RemoteWorkerState{State: NotTrusted, TimeLastHeartbeat: at(2), TimeLastGoodHealthcheck: at(1)},
			now:        at(3),
			thresholds: Thresholds{MaxHeartbeatGap: 5 * time.Second, CondemnMultiplier: 1},
			expected:   Healthy,
		},
		"healthy with recent heartbeat": {
			state:      RemoteWorkerState{State: Healthy, TimeLastHeartbeat: at(2), TimeLastGoodHealthcheck: at(1)},
			now:        at(3),
			thresholds: Thresholds{HealthcheckPeriod: 5 * time.Second, MaxHeartbeatGap: 5 * time.Second, CondemnMultiplier: 1},
			expected:   Healthy,
		},
		"heartbeat exactly at the gap is healthy": {
			state:      RemoteWorkerState{State: Healthy, TimeLastHeartbeat: at(2), TimeLastGoodHealthcheck: at(1)},
			now:        at(7),
			thresholds: Thresholds{MaxHeartbeatGap: 5 * time.Second, CondemnMultiplier: 1},
			expected:   Healthy,
		},
		"healthy with stale heartbeat degrades": {
			state:      RemoteWorkerState{State: Healthy, TimeLastHeartbeat: at(2), TimeLastGoodHealthcheck: at(1)},
			now:        at(5),
			thresholds: Thresholds{HealthcheckPeriod: 5 * time.Second, MaxHeartbeatGap: 2 * time.Second, CondemnMultiplier: 1},
			expected:   Degraded,
		},
		"healthy with very stale heartbeat only degrades": {
			state:      RemoteWorkerState{State: Healthy, TimeLastHeartbeat: at(2), TimeLastGoodHealthcheck: at(1)},
			now:        at(500),
			thresholds: Thresholds{MaxHeartbeatGap: 2 * time.Second, CondemnMultiplier: 1},
			expected:   Degraded,
		},
		"degraded recovers with recent heartbeat": {
			state:      RemoteWorkerState{State: Degraded, TimeLastHeartbeat: at(2), TimeLastGoodHealthcheck: at(1)},
			now:        at(3),
			thresholds: Thresholds{HealthcheckPeriod: 5 * time.Second, MaxHeartbeatGap: 5 * time.Second, CondemnMultiplier: 1},
			expected:   Healthy,
		},
		"degraded within condemn window stays degraded": {
			state:      RemoteWorkerState{State: Degraded, TimeLastHeartbeat: at(2), TimeLastGoodHealthcheck: at(1)},
			now:        at(5),
			thresholds: Thresholds{HealthcheckPeriod: 5 * time.Second, MaxHeartbeatGap: 2 * time.Second, CondemnMultiplier: 10},
			expected:   Degraded,
		},
		"degraded past condemn window is condemned": {
			state:      RemoteWorkerState{State: Degraded, TimeLastHeartbeat: at(2), TimeLastGoodHealthcheck: at(1)},
			now:        at(5),
			thresholds: Thresholds{HealthcheckPeriod: 5 * time.Second, MaxHeartbeatGap: 2 * time.Second, CondemnMultiplier: 1},
			expected:   Condemned,
		},
		"condemned is terminal": {
			state:      RemoteWorkerState{State: Condemned, TimeLastHeartbeat: at(2), TimeLastGoodHealthcheck: at(1)},
			now:        at(5),
			thresholds: Thresholds{HealthcheckPeriod: 10 * time.Second, MaxHeartbeatGap: 10 * time.Second, CondemnMultiplier: 10},
			expected:   Condemned,
		},
		"condemned stays condemned even with a fresh heartbeat": {
			state:      RemoteWorkerState{State: Condemned, TimeLastHeartbeat: at(5), TimeLastGoodHealthcheck: at(5)},
			now:        at(5),
			thresholds: Thresholds{MaxHeartbeatGap: time.Second, CondemnMultiplier: 1},
			expected:   Condemned,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			before := tc.state
			assert.Equal(t, tc.expected, tc.state.ComputeState(tc.now, tc.thresholds))
			assert.Equal(t, before, tc.state)
		})
	}
}

func TestWorkerState_String(t *testing.T) {
	assert.Equal(t, "healthy", Healthy.String())
	assert.Equal(t, "condemned", Condemned.String())
	assert.Equal(t, "unknown", WorkerState(42).String())
}
