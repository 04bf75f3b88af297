package workers

import (
	"time"
)

// WorkerState is the scheduler's opinion of whether a worker can be given tasks.
type WorkerState int

const (
	// NotTrusted workers have never passed a health check and receive no tasks.
	NotTrusted WorkerState = iota
	// Healthy workers have passed a health check and heartbeat recently. Only healthy workers receive tasks.
	Healthy
	// Degraded workers have missed heartbeats but may still recover.
	Degraded
	// Condemned workers have been lost for good. A condemned worker instance never returns to any other state.
	Condemned
)

var workerStateNames = map[WorkerState]string{
	NotTrusted: "not_trusted",
	Healthy:    "healthy",
	Degraded:   "degraded",
	Condemned:  "condemned",
}

func (s WorkerState) String() string {
	if name, ok := workerStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Thresholds configure how quickly a worker is demoted when its heartbeats stop.
type Thresholds struct {
	// How often workers are expected to pass a health check.
	HealthcheckPeriod time.Duration
	// A worker whose last heartbeat is older than this is no longer healthy.
	MaxHeartbeatGap time.Duration
	// A degraded worker whose last heartbeat is older than MaxHeartbeatGap * CondemnMultiplier is condemned.
	CondemnMultiplier float64
}

func (t Thresholds) condemnAfter() time.Duration {
	return time.Duration(float64(t.MaxHeartbeatGap) * t.CondemnMultiplier)
}

// RemoteWorkerState is the health record of a single worker instance.
type RemoteWorkerState struct {
	State WorkerState
	// Zero until the first successful health check.
	TimeLastGoodHealthcheck time.Time
	// Zero until the first heartbeat.
	TimeLastHeartbeat time.Time
}

// ComputeState returns the state the worker should be in at time now. It does not modify the receiver.
//
// A worker only leaves NotTrusted once it has passed a health check, and only becomes Condemned after first being
// seen as Degraded, so a worker that goes silent always spends at least one recomputation in the Degraded state.
func (s RemoteWorkerState) ComputeState(now time.Time, thresholds Thresholds) WorkerState {
	if s.State == Condemned {
		return Condemned
	}
	if s.TimeLastGoodHealthcheck.IsZero() {
		return NotTrusted
	}
	staleness := now.Sub(s.TimeLastHeartbeat)
	if staleness <= thresholds.MaxHeartbeatGap {
		return Healthy
	}
	if s.State == Degraded && staleness > thresholds.condemnAfter() {
		return Condemned
	}
	return Degraded
}
