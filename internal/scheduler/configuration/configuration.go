package configuration

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/armadaproject/taskhive/internal/common/config"
	"github.com/armadaproject/taskhive/internal/common/database"
	"github.com/armadaproject/taskhive/internal/scheduler/model"
)

type Configuration struct {
	// Port the worker ingestion api and the monitor are served on.
	HttpPort uint16 `validate:"required"`
	// Port prometheus metrics are served on.
	MetricsPort uint16 `validate:"required"`
	// Name of this scheduler, used to namespace shared state.
	Name string `validate:"required"`
	// How often a scheduling pass runs.
	CyclePeriod time.Duration `validate:"required"`
	// One of long_tail, ranked_priority, round_robin, randomized_priority.
	SchedulingPolicy string `validate:"required,oneof=long_tail ranked_priority round_robin randomized_priority"`
	Launch           LaunchConfig
	WorkerHealth     WorkerHealthConfig
	TaskStore        TaskStoreConfig
	// Optional. If set, worker records are checkpointed to redis so they survive a restart.
	Redis config.RedisConfig
	// Capacity of each resource kind, per node type.
	NodeTypes map[string]map[string]resource.Quantity
	Nodes     []NodeConfig `validate:"dive"`
	Jobs      []JobConfig  `validate:"dive"`
}

func (c Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterStructValidation(workerHealthValidation, WorkerHealthConfig{})
	if err := validate.RegisterValidation("sqlidentifier", isSqlIdentifier); err != nil {
		return err
	}
	return validate.Struct(c)
}

var sqlIdentifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isSqlIdentifier(fl validator.FieldLevel) bool {
	return sqlIdentifierRegex.MatchString(fl.Field().String())
}

type LaunchConfig struct {
	// Maximum sustained task launches per second across all workers. Zero means unlimited.
	MaxLaunchesPerSecond float64 `validate:"gte=0"`
	// Number of launches allowed in a burst above MaxLaunchesPerSecond.
	Burst int `validate:"gte=0"`
	// Timeout of a single dispatch request to a worker.
	DispatchTimeout time.Duration `validate:"required"`
	// How many times a dispatch is attempted before the task is given up on for this pass.
	DispatchAttempts uint `validate:"required"`
	// Delay between dispatch attempts.
	DispatchRetryDelay time.Duration
}

type WorkerHealthConfig struct {
	// How often every worker is sent a health check.
	HealthcheckPeriod time.Duration `validate:"required"`
	// Timeout of a single health check.
	HealthcheckTimeout time.Duration `validate:"required"`
	// Maximum number of health checks in flight at once.
	HealthcheckConcurrency int `validate:"gte=0"`
	// A worker that has not sent a heartbeat for this long is no longer healthy.
	MaxHeartbeatGap time.Duration `validate:"required"`
	// A degraded worker is condemned once its heartbeat is older than MaxHeartbeatGap * CondemnMultiplier.
	CondemnMultiplier float64 `validate:"gte=1"`
	// How often worker states are recomputed.
	RecomputePeriod time.Duration `validate:"required"`
}

func workerHealthValidation(sl validator.StructLevel) {
	c := sl.Current().Interface().(WorkerHealthConfig)
	if c.HealthcheckTimeout > c.HealthcheckPeriod {
		sl.ReportError(c.HealthcheckTimeout, "HealthcheckTimeout", "HealthcheckTimeout", "lteHealthcheckPeriod", "")
	}
}

type TaskStoreConfig struct {
	// Either sqlite or postgres.
	Type     string `validate:"required,oneof=sqlite postgres"`
	Table    string `validate:"required,sqlidentifier"`
	Sqlite   database.SqliteConfig
	Postgres database.PostgresConfig
}

type NodeConfig struct {
	Id   string `validate:"required"`
	Type string `validate:"required"`
	// Worker that runs tasks placed on this node.
	Worker string `validate:"required"`
	Tags   []string
}

type JobConfig struct {
	Id       string `validate:"required"`
	Priority float64
	// Amount of each resource kind a single task of this job consumes.
	Resources map[string]resource.Quantity
	Filters   model.NodeFiltersConfig
	Command   []string `validate:"required"`
	// Disabled jobs are not scheduled.
	Disabled bool
}
