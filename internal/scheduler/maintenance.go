package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/hallshelf/hallshelf/internal/tasks"
)

// Enqueuer saves tasks for the background workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
}

// Job pairs a cron expression with the task it enqueues.
type Job struct {
	Name     string
	Schedule string
	Task     func() backlite.Task
}

// MaintenanceScheduler enqueues maintenance tasks on their cron schedules.
// Work happens in the task queue so a slow job never blocks the scheduler.
type MaintenanceScheduler struct {
	enqueuer Enqueuer
	jobs     []Job

	cron       *cron.Cron
	entries    map[string]cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NewMaintenanceScheduler creates a scheduler for the given jobs. Jobs with an
// empty schedule are skipped.
func NewMaintenanceScheduler(enqueuer Enqueuer, jobs ...Job) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		enqueuer: enqueuer,
		jobs:     jobs,
		cron:     cron.New(cron.WithParser(parser)),
		entries:  make(map[string]cron.EntryID),
	}
}

// DefaultJobs returns the audit cleanup and inventory reconciliation jobs.
func DefaultJobs(auditCleanup, inventoryReconcile string, retentionDays int) []Job {
	return []Job{
		{
			Name:     tasks.TypeCleanupAuditEvents,
			Schedule: auditCleanup,
			Task: func() backlite.Task {
				return tasks.CleanupAuditEventsTask{RetentionDays: retentionDays}
			},
		},
		{
			Name:     tasks.TypeReconcileInventory,
			Schedule: inventoryReconcile,
			Task: func() backlite.Task {
				return tasks.ReconcileInventoryTask{}
			},
		},
	}
}

// ValidateSchedule checks a five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// Start registers every job and starts the scheduler.
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	for _, job := range s.jobs {
		if job.Schedule == "" {
			log.Printf("Maintenance scheduler: %s disabled", job.Name)
			continue
		}
		if err := ValidateSchedule(job.Schedule); err != nil {
			return fmt.Errorf("invalid cron schedule '%s' for %s: %w", job.Schedule, job.Name, err)
		}

		job := job
		entryID, err := s.cron.AddFunc(job.Schedule, func() {
			s.enqueue(job)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
		s.entries[job.Name] = entryID
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	for name, id := range s.entries {
		log.Printf("Maintenance scheduler: %s next run at %v", name, s.cron.Entry(id).Next)
	}

	// Monitor for context cancellation
	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop stops the scheduler and waits for running enqueues to finish.
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	s.isRunning = false

	log.Printf("Maintenance scheduler: stopped")
}

// IsRunning returns whether the scheduler is active
func (s *MaintenanceScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns when the named job fires next.
func (s *MaintenanceScheduler) NextRun(name string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entries[name]
	if !s.isRunning || !ok {
		return nil
	}
	next := s.cron.Entry(id).Next
	return &next
}

// RunNow enqueues the named job immediately.
func (s *MaintenanceScheduler) RunNow(name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			s.enqueue(job)
			return nil
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (s *MaintenanceScheduler) enqueue(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := s.enqueuer.Enqueue(ctx, job.Task())
	if err != nil {
		log.Printf("Maintenance scheduler: failed to enqueue %s: %v", job.Name, err)
		return
	}
	log.Printf("Maintenance scheduler: enqueued %s (task %s)", job.Name, id)
}
