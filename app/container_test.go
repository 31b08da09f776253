package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zed-io/fineract-sub004/internal/lock"
	"github.com/zed-io/fineract-sub004/internal/state"
	"github.com/zed-io/fineract-sub004/internal/store/memory"
	"github.com/zed-io/fineract-sub004/internal/store/postgres"
	"github.com/zed-io/fineract-sub004/types"
	"github.com/zed-io/fineract-sub004/types/config"
)

type nopBroker struct{ published int }

func (b *nopBroker) Publish(context.Context, string, []byte) error {
	b.published++
	return nil
}
func (b *nopBroker) Close() error { return nil }

func TestNewContainer_Memory(t *testing.T) {
	worker := types.NewFuncWorker("email", func(ctx context.Context, job *types.Job, params map[string]any) (map[string]any, error) {
		return map[string]any{"sent": 1}, nil
	})
	cfg, err := config.NewSchedulerConfig("node-a", config.WithStorageDriver(config.Memory))
	require.NoError(t, err)
	require.NoError(t, cfg.RegisterWorker(worker))

	broker := &nopBroker{}
	c, err := NewContainer(cfg, WithMessageBroker(broker))
	require.NoError(t, err)

	assert.IsType(t, &memory.Store{}, c.JobStore)
	assert.IsType(t, &memory.Store{}, c.LockManager)
	assert.True(t, c.Registry.Exists("email"))
	require.NoError(t, c.InitSchema(context.Background()))

	ctx := context.Background()
	job, err := c.JobManager.ScheduleJob(ctx, &types.Job{JobType: "email"})
	require.NoError(t, err)

	execution, err := c.JobManager.ExecuteJob(ctx, job.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, execution.Status)
	assert.Equal(t, 1, broker.published)
}

func TestNewContainer_PostgresWithInjectedDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg, err := config.NewSchedulerConfig("node-a")
	require.NoError(t, err)

	c, err := NewContainer(cfg, WithDB(db))
	require.NoError(t, err)

	assert.IsType(t, &postgres.PostgresJobStore{}, c.JobStore)
	assert.IsType(t, &postgres.PostgresJobExecutionStore{}, c.ExecutionStore)
	assert.IsType(t, &lock.PostgresDistributedLockManager{}, c.LockManager)
	assert.Nil(t, c.MessageBroker)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewContainer_RedisLock(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg, err := config.NewSchedulerConfig("node-a", config.WithLockDriver(config.RedisLock))
	require.NoError(t, err)

	c, err := NewContainer(cfg, WithDB(db), WithRedis(client))
	require.NoError(t, err)
	require.IsType(t, &lock.RedisDistributedLockManager{}, c.LockManager)

	ok, err := c.LockManager.Acquire(context.Background(), "job-1", "node-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewContainer_InvalidDriverCombination(t *testing.T) {
	cfg, err := config.NewSchedulerConfig("node-a",
		config.WithStorageDriver(config.Memory),
		config.WithLockDriver(config.PostgresLock),
	)
	require.NoError(t, err)

	_, err = NewContainer(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "requires the postgres storage driver")
}
