package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ucdiagram/pkg/schema"
)

type fakeMaintainer struct {
	mu        sync.Mutex
	vacuums   int
	prunedAt  []time.Time
	vacuumErr error
}

func (f *fakeMaintainer) Vacuum(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vacuums++
	return f.vacuumErr
}

func (f *fakeMaintainer) PruneEvents(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prunedAt = append(f.prunedAt, before)
	return 3, nil
}

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

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(clock *fakeClock) *Scheduler {
	return NewScheduler(quietLogger(), WithClock(clock.Now))
}

func TestCalculateNextRun(t *testing.T) {
	sched := NewScheduler(quietLogger())
	from := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	next, err := sched.CalculateNextRun("0 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC), next)

	next, err = sched.CalculateNextRun("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC), next)

	next, err = sched.CalculateNextRun("@daily", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC), next)

	_, err = sched.CalculateNextRun("invalid cron", from)
	require.Error(t, err)
}

func TestAddValidates(t *testing.T) {
	sched := NewScheduler(quietLogger())
	noop := func(context.Context, time.Time) error { return nil }

	assert.Error(t, sched.Add(Job{Cron: "@hourly", Run: noop}))
	assert.Error(t, sched.Add(Job{Name: "x", Cron: "@hourly"}))
	assert.Error(t, sched.Add(Job{Name: "x", Cron: "not a cron", Run: noop}))
	require.NoError(t, sched.Add(Job{Name: "x", Cron: "@hourly", Run: noop}))
	assert.Error(t, sched.Add(Job{Name: "x", Cron: "@daily", Run: noop}))
}

func TestTickRunsDueJobs(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)}
	sched := newTestScheduler(clock)
	m := &fakeMaintainer{}
	require.NoError(t, sched.Add(VacuumJob(m, "0 * * * *")))

	ctx := context.Background()
	sched.Tick(ctx)
	assert.Equal(t, 0, m.vacuums, "not due before 11:00")

	clock.Advance(30 * time.Minute)
	sched.Tick(ctx)
	assert.Equal(t, 1, m.vacuums)

	sched.Tick(ctx)
	assert.Equal(t, 1, m.vacuums, "next run moved to 12:00")

	status := sched.Status()
	require.Len(t, status, 1)
	assert.Equal(t, JobVacuum, status[0].Name)
	assert.Equal(t, "success", status[0].LastStatus)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), status[0].LastRunAt)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), status[0].NextRunAt)
}

func TestTickRecordsFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)}
	sched := newTestScheduler(clock)
	m := &fakeMaintainer{vacuumErr: errors.New("disk full")}
	require.NoError(t, sched.Add(VacuumJob(m, "0 * * * *")))

	clock.Advance(time.Minute)
	sched.Tick(context.Background())

	status := sched.Status()
	assert.Equal(t, "error", status[0].LastStatus)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), status[0].NextRunAt)
}

func TestPruneJobUsesRetention(t *testing.T) {
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	m := &fakeMaintainer{}
	job := PruneJob(m, "@daily", 7*24*time.Hour, quietLogger())

	require.NoError(t, job.Run(context.Background(), now))
	require.Len(t, m.prunedAt, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), m.prunedAt[0])
}

func TestRegisterMaintenance(t *testing.T) {
	m := &fakeMaintainer{}

	sched := NewScheduler(quietLogger())
	require.NoError(t, sched.RegisterMaintenance(m, MaintenanceConfig{
		VacuumCron:     "@weekly",
		PruneCron:      "@daily",
		EventRetention: 24 * time.Hour,
	}))
	names := []string{}
	for _, s := range sched.Status() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{JobVacuum, JobPrune}, names)

	disabled := NewScheduler(quietLogger())
	require.NoError(t, disabled.RegisterMaintenance(m, MaintenanceConfig{PruneCron: "@daily"}))
	assert.Empty(t, disabled.Status())

	bad := NewScheduler(quietLogger())
	assert.Error(t, bad.RegisterMaintenance(m, MaintenanceConfig{VacuumCron: "nope"}))
}

func TestRunNow(t *testing.T) {
	sched := NewScheduler(quietLogger())
	m := &fakeMaintainer{}
	require.NoError(t, sched.Add(VacuumJob(m, "@yearly")))

	require.NoError(t, sched.RunNow(context.Background(), JobVacuum))
	assert.Equal(t, 1, m.vacuums)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(sched.RunNow(context.Background(), "missing")))
}

func TestInflightDedup(t *testing.T) {
	sched := NewScheduler(quietLogger())
	release := make(chan struct{})
	started := make(chan struct{})
	var runs int
	var mu sync.Mutex
	require.NoError(t, sched.Add(Job{Name: "slow", Cron: "@hourly", Run: func(context.Context, time.Time) error {
		mu.Lock()
		runs++
		mu.Unlock()
		close(started)
		<-release
		return nil
	}}))

	errCh := make(chan error, 1)
	go func() { errCh <- sched.RunNow(context.Background(), "slow") }()
	<-started

	assert.Equal(t, schema.ErrCodeConflict, schema.ErrorCode(sched.RunNow(context.Background(), "slow")))
	close(release)
	require.NoError(t, <-errCh)

	mu.Lock()
	assert.Equal(t, 1, runs)
	mu.Unlock()
}

func TestStartStop(t *testing.T) {
	sched := NewScheduler(quietLogger(), WithInterval(5*time.Millisecond))
	m := &fakeMaintainer{}
	require.NoError(t, sched.Add(Job{Name: "every-minute", Cron: "* * * * *", Run: func(ctx context.Context, _ time.Time) error {
		return m.Vacuum(ctx)
	}}))

	ctx := context.Background()
	require.NoError(t, sched.Start(ctx))
	assert.Error(t, sched.Start(ctx))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())

	// Restart is allowed after stop.
	require.NoError(t, sched.Start(ctx))
	require.NoError(t, sched.Stop())
}
