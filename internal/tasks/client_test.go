package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallshelf/hallshelf/internal/config"
	"github.com/hallshelf/hallshelf/internal/database/inventory"
)

func TestDatabasePath(t *testing.T) {
	assert.Equal(t, filepath.Join(".", "hallshelf-tasks.db"), DatabasePath("./hallshelf.db"))
	assert.Equal(t, filepath.Join("/var/lib", "library-tasks.sqlite"), DatabasePath("/var/lib/library.sqlite"))
	assert.Equal(t, filepath.Join("data", "library-tasks.db"), DatabasePath("data/library"))
}

func TestNewClient(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(dbPath, cfg)
	require.NoError(t, err)
	require.NotNil(t, client)

	_, err = os.Stat(filepath.Join(tmpDir, "test-tasks.db"))
	assert.NoError(t, err, "tasks database should be created")

	assert.NoError(t, client.Close())
}

func TestClientStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"), cfg)
	require.NoError(t, err)
	defer client.Close()

	// Stop before Start is a no-op
	assert.True(t, client.Stop(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	assert.True(t, client.Stop(stopCtx), "stop should succeed gracefully")
}

// TestTask is a simple task for testing
type TestTask struct {
	Value string `json:"value"`
}

func (t TestTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "test_task",
		MaxAttempts: 1,
		Backoff:     time.Second,
		Timeout:     5 * time.Second,
	}
}

func TestTaskEnqueue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"), cfg)
	require.NoError(t, err)
	defer client.Close()

	executed := make(chan string, 1)
	client.Register(backlite.NewQueue(func(ctx context.Context, task TestTask) error {
		executed <- task.Value
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)

	id, err := client.Enqueue(ctx, TestTask{Value: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case val := <-executed:
		assert.Equal(t, "hello", val)
	case <-time.After(5 * time.Second):
		t.Fatal("task was not executed within timeout")
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.Tasks{Workers: 4, ReleaseAfter: time.Minute}, config.Audit{RetentionDays: 30})

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, time.Minute, cfg.ReleaseAfter)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, 24*time.Hour, cfg.RetentionDuration)
	assert.Equal(t, 30, cfg.AuditRetentionDays)
}

func TestNewTask(t *testing.T) {
	task, err := NewTask(TypeCleanupAuditEvents, RunParams{RetentionDays: 7})
	require.NoError(t, err)
	assert.Equal(t, CleanupAuditEventsTask{RetentionDays: 7}, task)
	assert.Equal(t, TypeCleanupAuditEvents, task.Config().Name)

	task, err = NewTask(TypeReconcileInventory, RunParams{})
	require.NoError(t, err)
	assert.Equal(t, TypeReconcileInventory, task.Config().Name)

	_, err = NewTask(TypeCleanupAuditEvents, RunParams{RetentionDays: -1})
	assert.Error(t, err)

	_, err = NewTask("enrich_book", RunParams{})
	assert.Error(t, err)

	assert.Len(t, Types(), 2)
}

type fakeCleaner struct {
	retention time.Duration
}

func (f *fakeCleaner) DeleteOldEvents(_ context.Context, retention time.Duration) (int64, error) {
	f.retention = retention
	return 3, nil
}

func TestCleanupAuditEventsProcessor(t *testing.T) {
	cleaner := &fakeCleaner{}

	require.NoError(t, CleanupAuditEventsProcessor(cleaner, 30)(context.Background(), CleanupAuditEventsTask{}))
	assert.Equal(t, 30*24*time.Hour, cleaner.retention)

	require.NoError(t, CleanupAuditEventsProcessor(cleaner, 30)(context.Background(), CleanupAuditEventsTask{RetentionDays: 2}))
	assert.Equal(t, 48*time.Hour, cleaner.retention)

	assert.Error(t, CleanupAuditEventsProcessor(nil, 30)(context.Background(), CleanupAuditEventsTask{}))
}

type fakeReconciler struct {
	rows []inventory.ReconcileRow
	err  error
	all  bool
}

func (f *fakeReconciler) Reconcile(_ context.Context, all bool) ([]inventory.ReconcileRow, error) {
	f.all = all
	return f.rows, f.err
}

type maintenanceEntry struct {
	action   string
	metadata map[string]any
	err      error
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []maintenanceEntry
}

func (f *fakeAuditor) LogMaintenance(action, _ string, metadata map[string]any, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, maintenanceEntry{action: action, metadata: metadata, err: err})
}

func TestReconcileInventoryProcessor(t *testing.T) {
	t.Run("reports discrepancies", func(t *testing.T) {
		reconciler := &fakeReconciler{rows: []inventory.ReconcileRow{
			{CollectionID: 1, BookTitle: "Kindred", HallName: "North Hall", TotalCopies: 3, AvailableCopies: 1, Outstanding: 1, Lost: 1, Discrepancy: 1},
			{CollectionID: 2, BookTitle: "Dawn", HallName: "South Hall", TotalCopies: 2, AvailableCopies: 0, Lost: 2, Discrepancy: 2},
		}}
		auditor := &fakeAuditor{}

		err := ReconcileInventoryProcessor(reconciler, auditor)(context.Background(), ReconcileInventoryTask{})
		require.NoError(t, err)

		assert.False(t, reconciler.all, "only discrepant rows are requested")
		require.Len(t, auditor.entries, 1)
		assert.Equal(t, "reconcile_inventory", auditor.entries[0].action)
		assert.Equal(t, 2, auditor.entries[0].metadata["discrepant_collections"])
		assert.Equal(t, 3, auditor.entries[0].metadata["lost_copies"])
	})

	t.Run("records failures", func(t *testing.T) {
		boom := errors.New("database is locked")
		auditor := &fakeAuditor{}

		err := ReconcileInventoryProcessor(&fakeReconciler{err: boom}, auditor)(context.Background(), ReconcileInventoryTask{})
		assert.ErrorIs(t, err, boom)
		require.Len(t, auditor.entries, 1)
		assert.ErrorIs(t, auditor.entries[0].err, boom)
	})
}
