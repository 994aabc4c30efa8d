package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallshelf/hallshelf/internal/tasks"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []backlite.Task
	err   error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, task backlite.Task) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.tasks = append(r.tasks, task)
	return "task-1", nil
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 3 * * *"))
	assert.NoError(t, ValidateSchedule("*/5 * * * *"))
	assert.Error(t, ValidateSchedule("every day"))
	assert.Error(t, ValidateSchedule("0 0 3 * * *"), "seconds field is not accepted")
}

func TestMaintenanceScheduler_StartStop(t *testing.T) {
	s := NewMaintenanceScheduler(&recordingEnqueuer{}, DefaultJobs("0 3 * * *", "30 2 * * *", 90)...)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.NotNil(t, s.NextRun(tasks.TypeCleanupAuditEvents))
	assert.NotNil(t, s.NextRun(tasks.TypeReconcileInventory))

	// Starting twice is a no-op
	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.NextRun(tasks.TypeCleanupAuditEvents))
}

func TestMaintenanceScheduler_EmptyScheduleSkipsJob(t *testing.T) {
	s := NewMaintenanceScheduler(&recordingEnqueuer{}, DefaultJobs("", "30 2 * * *", 90)...)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Nil(t, s.NextRun(tasks.TypeCleanupAuditEvents))
	assert.NotNil(t, s.NextRun(tasks.TypeReconcileInventory))
}

func TestMaintenanceScheduler_InvalidSchedule(t *testing.T) {
	s := NewMaintenanceScheduler(&recordingEnqueuer{}, DefaultJobs("nonsense", "30 2 * * *", 90)...)

	err := s.Start(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), tasks.TypeCleanupAuditEvents)
	assert.False(t, s.IsRunning())
}

func TestMaintenanceScheduler_RunNow(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	s := NewMaintenanceScheduler(enqueuer, DefaultJobs("0 3 * * *", "30 2 * * *", 45)...)

	require.NoError(t, s.RunNow(tasks.TypeCleanupAuditEvents))
	require.NoError(t, s.RunNow(tasks.TypeReconcileInventory))
	assert.Error(t, s.RunNow("unknown_job"))

	require.Len(t, enqueuer.tasks, 2)
	assert.Equal(t, tasks.CleanupAuditEventsTask{RetentionDays: 45}, enqueuer.tasks[0])
	assert.Equal(t, tasks.ReconcileInventoryTask{}, enqueuer.tasks[1])

	t.Run("enqueue failures are logged, not fatal", func(t *testing.T) {
		enqueuer.err = errors.New("queue closed")
		assert.NoError(t, s.RunNow(tasks.TypeReconcileInventory))
	})
}

func TestMaintenanceScheduler_StopsWithContext(t *testing.T) {
	s := NewMaintenanceScheduler(&recordingEnqueuer{}, DefaultJobs("0 3 * * *", "30 2 * * *", 90)...)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}
