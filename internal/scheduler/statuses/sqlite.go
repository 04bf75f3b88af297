package statuses

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"
)

// SQLiteTaskStore keeps task statuses in a single sqlite table.
type SQLiteTaskStore struct {
	db    *sql.DB
	table string
	clock clock.PassiveClock
	lock  sync.Mutex
}

func NewSQLiteTaskStore(db *sql.DB, table string, clock clock.PassiveClock) *SQLiteTaskStore {
	return &SQLiteTaskStore{db: db, table: table, clock: clock}
}

// Setup creates the status table if it does not exist yet.
func (s *SQLiteTaskStore) Setup(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			job_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			result INTEGER NOT NULL,
			PRIMARY KEY(job_id, node_id))`, s.table))
	return errors.WithStack(err)
}

func (s *SQLiteTaskStore) Store(ctx context.Context, jobId string, nodeId string, result TaskResult) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT OR REPLACE INTO %s (job_id, node_id, timestamp, result) VALUES (?, ?, ?, ?)", s.table),
		jobId, nodeId, s.clock.Now().Unix(), int(result))
	if err != nil {
		return errors.Wrapf(err, "error storing status of task %s/%s", jobId, nodeId)
	}
	return nil
}

func (s *SQLiteTaskStore) FetchJobTasks(ctx context.Context, jobIds []string) ([]TaskStatus, error) {
	if len(jobIds) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(jobIds)), ",")
	args := make([]any, len(jobIds))
	for i, id := range jobIds {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT job_id, node_id, timestamp, result FROM %s WHERE job_id IN (%s) ORDER BY job_id, node_id",
			s.table, placeholders),
		args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var statuses []TaskStatus
	for rows.Next() {
		var status TaskStatus
		var timestamp int64
		var result int
		if err := rows.Scan(&status.JobId, &status.NodeId, &timestamp, &result); err != nil {
			return nil, errors.WithStack(err)
		}
		status.Timestamp = time.Unix(timestamp, 0).UTC()
		status.Result = TaskResult(result)
		statuses = append(statuses, status)
	}
	return statuses, errors.WithStack(rows.Err())
}
