package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const workersPrefix = "workers"

// RedisWorkerRepository stores worker records in a redis hash keyed by worker id.
type RedisWorkerRepository struct {
	db         redis.UniversalClient
	workersKey string
}

func NewRedisWorkerRepository(db redis.UniversalClient, schedulerName string) *RedisWorkerRepository {
	return &RedisWorkerRepository{
		db:         db,
		workersKey: fmt.Sprintf("%s_%s", workersPrefix, schedulerName),
	}
}

func (r *RedisWorkerRepository) GetWorkers(ctx context.Context) ([]*Worker, error) {
	result, err := r.db.HGetAll(ctx, r.workersKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "Error retrieving workers from redis")
	}
	workers := make([]*Worker, 0, len(result))
	for id, v := range result {
		worker := &Worker{}
		if err := json.Unmarshal([]byte(v), worker); err != nil {
			return nil, errors.Wrapf(err, "Error unmarshalling worker %s", id)
		}
		workers = append(workers, worker)
	}
	return workers, nil
}

func (r *RedisWorkerRepository) StoreWorkers(ctx context.Context, workers []*Worker) error {
	if len(workers) == 0 {
		return nil
	}
	pipe := r.db.TxPipeline()
	for _, worker := range workers {
		data, err := json.Marshal(worker)
		if err != nil {
			return errors.Wrapf(err, "Error marshalling worker %s", worker.Id)
		}
		pipe.HSet(ctx, r.workersKey, worker.Id, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "Error storing workers in redis")
	}
	return nil
}
