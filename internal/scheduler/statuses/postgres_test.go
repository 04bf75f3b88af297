package statuses

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/armadaproject/taskhive/internal/common/database"
)

// Runs against the database named by TASKHIVE_TEST_POSTGRES, e.g.
// TASKHIVE_TEST_POSTGRES="host=localhost port=5432 user=postgres password=psw dbname=postgres sslmode=disable"
func TestPostgresTaskStore_RoundTrip(t *testing.T) {
	connection, ok := os.LookupEnv("TASKHIVE_TEST_POSTGRES")
	if !ok {
		t.Skip("TASKHIVE_TEST_POSTGRES not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.OpenPgxPoolFromConnectionString(ctx, connection)
	require.NoError(t, err)
	defer db.Close()

	table := "task_statuses_" + uuid.NewString()[:8]
	store := NewPostgresTaskStore(db, table, clock.NewFakeClock(testTime))
	require.NoError(t, store.Setup(ctx))
	defer func() {
		_, err := db.Exec(ctx, "DROP TABLE "+table)
		assert.NoError(t, err)
	}()

	require.NoError(t, store.Store(ctx, "j1", "n1", TaskResultError))
	require.NoError(t, store.Store(ctx, "j1", "n1", TaskResultSuccess))
	require.NoError(t, store.Store(ctx, "j2", "n1", TaskResultFailed))

	statuses, err := store.FetchJobTasks(ctx, []string{"j1"})
	require.NoError(t, err)
	assert.Equal(t, []TaskStatus{
		{JobId: "j1", NodeId: "n1", Result: TaskResultSuccess, Timestamp: testTime},
	}, statuses)
}
