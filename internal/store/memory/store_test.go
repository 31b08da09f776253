package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zed-io/fineract-sub004/custom_errors"
	"github.com/zed-io/fineract-sub004/internal/lock"
	"github.com/zed-io/fineract-sub004/internal/state"
	"github.com/zed-io/fineract-sub004/internal/store"
	"github.com/zed-io/fineract-sub004/types"
)

var (
	_ store.JobStore               = (*Store)(nil)
	_ store.JobExecutionStore      = (*Store)(nil)
	_ lock.DistributedLockManager = (*Store)(nil)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newJob(id string, next time.Time, priority int) *types.Job {
	return &types.Job{
		ID:          id,
		Name:        id,
		JobType:     "email",
		Status:      state.StatusScheduled,
		Priority:    priority,
		NextRunTime: &next,
		IsActive:    true,
	}
}

func TestStore_AddOrUpdate_VersionIncreases(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	job := newJob("a", time.Now(), 0)

	require.NoError(t, s.AddOrUpdate(ctx, job))
	assert.Equal(t, int64(1), job.Version)

	for want := int64(2); want <= 4; want++ {
		job.Priority++
		require.NoError(t, s.AddOrUpdate(ctx, job))
		assert.Equal(t, want, job.Version)
	}

	stored, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Version)
	assert.Equal(t, 3, stored.Priority)
}

func TestStore_AddOrUpdate_StaleVersionConflicts(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.AddOrUpdate(ctx, newJob("a", time.Now(), 0)))

	first, err := s.Get(ctx, "a")
	require.NoError(t, err)
	second, err := s.Get(ctx, "a")
	require.NoError(t, err)

	first.Status = state.StatusPaused
	require.NoError(t, s.AddOrUpdate(ctx, first))

	second.Status = state.StatusCancelled
	err = s.AddOrUpdate(ctx, second)
	assert.ErrorIs(t, err, custom_errors.ErrConflict)

	stored, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, state.StatusPaused, stored.Status)
}

func TestStore_AddOrUpdate_DuplicateInsert(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.AddOrUpdate(ctx, newJob("a", time.Now(), 0)))

	err := s.AddOrUpdate(ctx, newJob("a", time.Now(), 0))
	assert.ErrorIs(t, err, custom_errors.ErrConflict)
}

func TestStore_Get_NotFound(t *testing.T) {
	_, err := NewStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, custom_errors.ErrJobNotFound)
}

func TestStore_Get_ReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	job := newJob("a", time.Now(), 0)
	job.Parameters = map[string]any{"k": "v"}
	require.NoError(t, s.AddOrUpdate(ctx, job))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Parameters["k"] = "changed"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Parameters["k"])
}

func TestStore_FetchDueJobs(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(WithClock(clock.Now))
	ctx := context.Background()
	now := clock.Now()

	require.NoError(t, s.AddOrUpdate(ctx, newJob("low", now.Add(-2*time.Minute), 1)))
	require.NoError(t, s.AddOrUpdate(ctx, newJob("high", now.Add(-time.Minute), 9)))
	require.NoError(t, s.AddOrUpdate(ctx, newJob("future", now.Add(time.Minute), 9)))
	require.NoError(t, s.AddOrUpdate(ctx, newJob("locked", now.Add(-time.Minute), 5)))

	inactive := newJob("inactive", now.Add(-time.Minute), 5)
	inactive.IsActive = false
	require.NoError(t, s.AddOrUpdate(ctx, inactive))

	ok, err := s.Acquire(ctx, "locked", "node-a", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	due, err := s.FetchDueJobs(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "high", due[0].ID)
	assert.Equal(t, "low", due[1].ID)

	due, err = s.FetchDueJobs(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	clock.Advance(31 * time.Second)
	due, err = s.FetchDueJobs(ctx, clock.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestStore_FetchDueJobs_PausedExcluded(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.AddOrUpdate(ctx, newJob("a", now.Add(-time.Hour), 0)))

	job, err := s.Get(ctx, "a")
	require.NoError(t, err)
	job.Status = state.StatusPaused
	require.NoError(t, s.AddOrUpdate(ctx, job))

	due, err := s.FetchDueJobs(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestStore_List(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tenant := "t1"

	a := newJob("a", time.Now(), 0)
	a.TenantID = &tenant
	b := newJob("b", time.Now(), 0)
	b.JobType = "report"
	c := newJob("c", time.Now(), 0)
	c.IsActive = false
	for _, j := range []*types.Job{a, b, c} {
		require.NoError(t, s.AddOrUpdate(ctx, j))
	}

	jobs, err := s.List(ctx, types.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = s.List(ctx, types.JobFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	jobs, err = s.List(ctx, types.JobFilter{JobType: "report"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "b", jobs[0].ID)

	jobs, err = s.List(ctx, types.JobFilter{TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].ID)
}

func TestStore_FindRunningByNode(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	node := "node-a"
	other := "node-b"

	mine := newJob("mine", time.Now(), 0)
	mine.Status = state.StatusRunning
	mine.LockID = &node
	theirs := newJob("theirs", time.Now(), 0)
	theirs.Status = state.StatusRunning
	theirs.LockID = &other
	for _, j := range []*types.Job{mine, theirs} {
		require.NoError(t, s.AddOrUpdate(ctx, j))
	}

	jobs, err := s.FindRunningByNode(ctx, node)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "mine", jobs[0].ID)
}

func TestStore_CountAllJobsGroupedByStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.AddOrUpdate(ctx, newJob("a", time.Now(), 0)))
	require.NoError(t, s.AddOrUpdate(ctx, newJob("b", time.Now(), 0)))

	counts, err := s.CountAllJobsGroupedByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[state.StatusScheduled])
	assert.Equal(t, 0, counts[state.StatusFailed])
}

func TestStore_Executions(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, s.Insert(ctx, &types.JobExecution{
			ID: id, JobID: "a", StartTime: base.Add(time.Duration(i) * time.Minute), Status: state.StatusRunning,
		}))
	}

	end := base.Add(time.Hour)
	require.NoError(t, s.Finish(ctx, &types.JobExecution{ID: "e2", JobID: "a", StartTime: base.Add(time.Minute), EndTime: &end, Status: state.StatusCompleted}))

	// finished executions are immutable
	later := end.Add(time.Hour)
	require.NoError(t, s.Finish(ctx, &types.JobExecution{ID: "e2", JobID: "a", StartTime: base.Add(time.Minute), EndTime: &later, Status: state.StatusFailed}))

	history, err := s.History(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "e3", history[0].ID)
	assert.Equal(t, "e2", history[1].ID)
	assert.Equal(t, state.StatusCompleted, history[1].Status)
	assert.True(t, end.Equal(*history[1].EndTime))

	history, err = s.History(ctx, "a", 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	err = s.Finish(ctx, &types.JobExecution{ID: "nope", JobID: "a"})
	assert.Error(t, err)
}

func TestStore_LeaseLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewStore(WithClock(clock.Now))
	ctx := context.Background()

	ok, err := s.Acquire(ctx, "X", "node-a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Acquire(ctx, "X", "node-b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(5 * time.Second)
	ok, err = s.Refresh(ctx, "X", "node-a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(9 * time.Second)
	ok, err = s.Acquire(ctx, "X", "node-b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(2 * time.Second)
	ok, err = s.Refresh(ctx, "X", "node-a", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Acquire(ctx, "X", "node-b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Release(ctx, "X", "node-a"))
	l, exists := s.Lease("X")
	require.True(t, exists)
	assert.Equal(t, "node-b", l.NodeID)

	require.NoError(t, s.Release(ctx, "X", "node-b"))
	_, exists = s.Lease("X")
	assert.False(t, exists)
}

func TestStore_ConcurrentAcquire(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.Acquire(ctx, "X", string(rune('a'+i)), 10*time.Second)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
