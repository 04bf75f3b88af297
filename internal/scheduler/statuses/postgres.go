package statuses

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"
)

// PostgresTaskStore keeps task statuses in a postgres table, for deployments that share the store between hosts.
type PostgresTaskStore struct {
	db    *pgxpool.Pool
	table string
	clock clock.PassiveClock
}

func NewPostgresTaskStore(db *pgxpool.Pool, table string, clock clock.PassiveClock) *PostgresTaskStore {
	return &PostgresTaskStore{db: db, table: table, clock: clock}
}

// Setup creates the status table if it does not exist yet.
func (s *PostgresTaskStore) Setup(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			job_id text NOT NULL,
			node_id text NOT NULL,
			timestamp timestamptz NOT NULL,
			result integer NOT NULL,
			PRIMARY KEY(job_id, node_id))`, pgx.Identifier{s.table}.Sanitize()))
	return errors.WithStack(err)
}

func (s *PostgresTaskStore) Store(ctx context.Context, jobId string, nodeId string, result TaskResult) error {
	_, err := s.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (job_id, node_id, timestamp, result) VALUES ($1, $2, $3, $4)
			ON CONFLICT (job_id, node_id) DO UPDATE SET timestamp = EXCLUDED.timestamp, result = EXCLUDED.result`,
			pgx.Identifier{s.table}.Sanitize()),
		jobId, nodeId, s.clock.Now().UTC(), int(result))
	if err != nil {
		return errors.Wrapf(err, "error storing status of task %s/%s", jobId, nodeId)
	}
	return nil
}

func (s *PostgresTaskStore) FetchJobTasks(ctx context.Context, jobIds []string) ([]TaskStatus, error) {
	if len(jobIds) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		fmt.Sprintf("SELECT job_id, node_id, timestamp, result FROM %s WHERE job_id = ANY($1) ORDER BY job_id, node_id",
			pgx.Identifier{s.table}.Sanitize()),
		jobIds)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var statuses []TaskStatus
	for rows.Next() {
		var status TaskStatus
		var result int
		if err := rows.Scan(&status.JobId, &status.NodeId, &status.Timestamp, &result); err != nil {
			return nil, errors.WithStack(err)
		}
		status.Timestamp = status.Timestamp.UTC()
		status.Result = TaskResult(result)
		statuses = append(statuses, status)
	}
	return statuses, errors.WithStack(rows.Err())
}
