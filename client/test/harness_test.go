package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zed-io/fineract-sub004/client"
	"github.com/zed-io/fineract-sub004/client/test/mocks"
	"github.com/zed-io/fineract-sub004/internal/store/memory"
	"github.com/zed-io/fineract-sub004/types"
	"github.com/zed-io/fineract-sub004/types/config"
)

const nodeID = "node-a"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 12, 1, 30, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// harness wires the engine against the memory store and a controllable clock.
type harness struct {
	clock     *testClock
	store     *memory.Store
	registry  *config.WorkerRegistry
	cfg       *config.SchedulerConfig
	broker    *mocks.MockMessageBroker
	executor  *client.Executor
	scheduler *client.Scheduler
	manager   *client.JobManager
}

func newHarness(t *testing.T, workers ...types.Worker) *harness {
	t.Helper()

	cfg, err := config.NewSchedulerConfig(nodeID,
		config.WithStorageDriver(config.Memory),
		config.WithPollInterval(20*time.Millisecond),
	)
	require.NoError(t, err)

	clock := newTestClock()
	st := memory.NewStore(memory.WithClock(clock.Now))
	registry := config.NewWorkerRegistry()
	for _, w := range workers {
		require.NoError(t, registry.Register(w))
	}
	broker := &mocks.MockMessageBroker{}

	executor := client.NewExecutor(st, st, st, registry, cfg,
		client.WithExecutorClock(clock.Now),
		client.WithEventBroker(broker),
	)
	scheduler := client.NewScheduler(st, st, executor, cfg, client.WithSchedulerClock(clock.Now))
	manager := client.NewJobManager(st, st, registry, executor, scheduler, cfg,
		client.WithManagerClock(clock.Now),
		client.WithManagerBroker(broker),
	)

	return &harness{
		clock:     clock,
		store:     st,
		registry:  registry,
		cfg:       cfg,
		broker:    broker,
		executor:  executor,
		scheduler: scheduler,
		manager:   manager,
	}
}

// poll runs one scheduler cycle and waits for the attempts it started.
func (h *harness) poll(t *testing.T) int {
	t.Helper()
	n, err := h.scheduler.Poll(context.Background())
	require.NoError(t, err)
	h.scheduler.Wait()
	return n
}

func okWorker(jobType string) *types.FuncWorker {
	return types.NewFuncWorker(jobType, func(ctx context.Context, job *types.Job, params map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})
}

func failingWorker(jobType string, err error) *types.FuncWorker {
	return types.NewFuncWorker(jobType, func(ctx context.Context, job *types.Job, params map[string]any) (map[string]any, error) {
		return nil, err
	})
}
