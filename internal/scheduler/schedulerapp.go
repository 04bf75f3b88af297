package scheduler

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/armadaproject/taskhive/internal/common"
	"github.com/armadaproject/taskhive/internal/common/app"
	dbcommon "github.com/armadaproject/taskhive/internal/common/database"
	"github.com/armadaproject/taskhive/internal/common/health"
	"github.com/armadaproject/taskhive/internal/common/task"
	schedulerconfig "github.com/armadaproject/taskhive/internal/scheduler/configuration"
	"github.com/armadaproject/taskhive/internal/scheduler/launcher"
	"github.com/armadaproject/taskhive/internal/scheduler/policy"
	"github.com/armadaproject/taskhive/internal/scheduler/statuses"
	"github.com/armadaproject/taskhive/internal/scheduler/workers"
)

// Run sets up a Scheduler application and runs it until a SIGTERM is received
func Run(config schedulerconfig.Configuration) error {
	g, ctx := errgroup.WithContext(app.CreateContextWithShutdown())

	//////////////////////////////////////////////////////////////////////////
	// Health Checks
	//////////////////////////////////////////////////////////////////////////
	mux := http.NewServeMux()

	startupCompleteCheck := health.NewStartupCompleteChecker()
	healthChecks := health.NewMultiChecker(startupCompleteCheck)
	health.SetupHttpMux(mux, healthChecks)

	// List of services to run concurrently.
	// Because we want to start services only once all input validation has been completed,
	// we add all services to a slice and start them together at the end of this function.
	var services []func() error

	//////////////////////////////////////////////////////////////////////////
	// Cluster
	//////////////////////////////////////////////////////////////////////////
	cluster, err := BuildCluster(config)
	if err != nil {
		return err
	}
	log.Infof("Loaded %d jobs, %d nodes and %d node types", len(cluster.Jobs), len(cluster.Nodes), len(cluster.Capacity))
	schedulerPolicy, err := policy.New(config.SchedulingPolicy)
	if err != nil {
		return err
	}

	//////////////////////////////////////////////////////////////////////////
	// Database setup (task store and redis)
	//////////////////////////////////////////////////////////////////////////
	log.Infof("Setting up database connections")
	taskStore, closeTaskStore, err := OpenTaskStore(ctx, config.TaskStore)
	if err != nil {
		return err
	}
	defer closeTaskStore()

	var workerRepository workers.WorkerRepository
	if config.Redis.Enabled() {
		redisClient := redis.NewUniversalClient(config.Redis.AsUniversalOptions())
		defer func() {
			err := redisClient.Close()
			if err != nil {
				log.WithError(errors.WithStack(err)).Warnf("Redis client didn't close down cleanly")
			}
		}()
		workerRepository = workers.NewRedisWorkerRepository(redisClient, config.Name)
		healthChecks.Add(health.FuncChecker(func() error {
			return errors.WithMessage(redisClient.Ping(ctx).Err(), "redis")
		}))
	}

	//////////////////////////////////////////////////////////////////////////
	// Worker tracking
	//////////////////////////////////////////////////////////////////////////
	workerDb, err := workers.NewWorkerDb()
	if err != nil {
		return err
	}
	tracker := workers.NewTracker(workerDb, workers.Thresholds{
		HealthcheckPeriod: config.WorkerHealth.HealthcheckPeriod,
		MaxHeartbeatGap:   config.WorkerHealth.MaxHeartbeatGap,
		CondemnMultiplier: config.WorkerHealth.CondemnMultiplier,
	}, clock.RealClock{}, workerRepository)
	if err := tracker.Restore(ctx); err != nil {
		return errors.WithMessage(err, "error restoring worker records")
	}
	prober := workers.NewProber(tracker, config.WorkerHealth.HealthcheckTimeout, config.WorkerHealth.HealthcheckConcurrency)

	//////////////////////////////////////////////////////////////////////////
	// Scheduling
	//////////////////////////////////////////////////////////////////////////
	log.Infof("Setting up scheduling loop with policy %s", config.SchedulingPolicy)
	metrics := NewSchedulerMetrics(prometheus.DefaultRegisterer)
	dispatcher := launcher.NewHttpDispatcher(
		config.Launch.DispatchTimeout,
		config.Launch.DispatchAttempts,
		config.Launch.DispatchRetryDelay,
	)
	scheduler := NewScheduler(
		cluster,
		schedulerPolicy,
		tracker,
		dispatcher,
		config.Launch.MaxLaunchesPerSecond,
		config.Launch.Burst,
		taskStore,
		metrics,
		clock.RealClock{},
		config.CyclePeriod,
	)
	services = append(services, func() error { return scheduler.Run(ctx) })

	backgroundTasks := task.NewBackgroundTaskManager(metricsPrefix, prometheus.DefaultRegisterer, clock.RealClock{})
	backgroundTasks.Register("worker_healthcheck", config.WorkerHealth.HealthcheckPeriod, prober.ProbeAll)
	backgroundTasks.Register("worker_recompute", config.WorkerHealth.RecomputePeriod, func(ctx context.Context) error {
		if _, err := tracker.Recompute(ctx); err != nil {
			return err
		}
		counts, err := tracker.CountByState()
		if err != nil {
			return err
		}
		metrics.ReportWorkerCounts(counts)
		return nil
	})
	services = append(services, func() error { return backgroundTasks.Run(ctx) })

	//////////////////////////////////////////////////////////////////////////
	// Worker Api and Monitor
	//////////////////////////////////////////////////////////////////////////
	NewApi(scheduler, tracker).RegisterRoutes(mux)
	shutdownHttpServer := common.ServeHttp(config.HttpPort, mux)
	defer shutdownHttpServer()

	shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetricServer()

	// start all services
	for _, service := range services {
		g.Go(service)
	}

	// Mark startup as complete, will allow the health check to return healthy
	startupCompleteCheck.MarkComplete()

	return g.Wait()
}

// BuildCluster converts the configured jobs, nodes and node types into their scheduler representation.
func BuildCluster(config schedulerconfig.Configuration) (Cluster, error) {
	jobs, err := config.BuildJobs()
	if err != nil {
		return Cluster{}, errors.WithMessage(err, "error loading jobs")
	}
	nodes, err := config.BuildNodes()
	if err != nil {
		return Cluster{}, errors.WithMessage(err, "error loading nodes")
	}
	capacity, err := config.BuildCapacity()
	if err != nil {
		return Cluster{}, errors.WithMessage(err, "error loading node types")
	}
	return Cluster{Jobs: jobs, Nodes: nodes, Capacity: capacity}, nil
}

// OpenTaskStore opens the configured task store, creating its table if needed. The returned function closes it.
func OpenTaskStore(ctx context.Context, config schedulerconfig.TaskStoreConfig) (statuses.TaskStore, func(), error) {
	switch config.Type {
	case "sqlite":
		db, err := dbcommon.OpenSqlite(config.Sqlite)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "error opening sqlite task store")
		}
		closeDb := func() {
			if err := db.Close(); err != nil {
				log.WithError(err).Warn("Sqlite task store didn't close down cleanly")
			}
		}
		store := statuses.NewSQLiteTaskStore(db, config.Table, clock.RealClock{})
		if err := store.Setup(ctx); err != nil {
			closeDb()
			return nil, nil, errors.WithMessage(err, "error creating sqlite task store table")
		}
		return store, closeDb, nil
	case "postgres":
		db, err := dbcommon.OpenPgxPool(ctx, config.Postgres)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "error opening connection to postgres")
		}
		store := statuses.NewPostgresTaskStore(db, config.Table, clock.RealClock{})
		if err := store.Setup(ctx); err != nil {
			db.Close()
			return nil, nil, errors.WithMessage(err, "error creating postgres task store table")
		}
		return store, db.Close, nil
	default:
		return nil, nil, errors.Errorf("%s is not a valid task store type", config.Type)
	}
}
