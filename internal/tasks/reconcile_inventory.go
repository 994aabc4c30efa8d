package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/hallshelf/hallshelf/internal/database/inventory"
)

// InventoryReconciler reports collections whose counts do not add up.
type InventoryReconciler interface {
	Reconcile(ctx context.Context, all bool) ([]inventory.ReconcileRow, error)
}

// MaintenanceAuditor records the outcome of maintenance jobs.
type MaintenanceAuditor interface {
	LogMaintenance(action, description string, metadata map[string]any, err error)
}

// ReconcileInventoryTask compares every collection's counts with its
// outstanding and lost lendings. It only reports; counts are never changed.
type ReconcileInventoryTask struct{}

// Config returns the queue configuration for reconciliation tasks.
func (t ReconcileInventoryTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        TypeReconcileInventory,
		MaxAttempts: 2,
		Backoff:     10 * time.Minute,
		Timeout:     5 * time.Minute,
		Retention: &backlite.Retention{
			Duration: 7 * 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// ReconcileInventoryProcessor creates a processor function for ReconcileInventoryTask.
func ReconcileInventoryProcessor(reconciler InventoryReconciler, auditor MaintenanceAuditor) backlite.QueueProcessor[ReconcileInventoryTask] {
	return func(ctx context.Context, _ ReconcileInventoryTask) error {
		if reconciler == nil {
			return fmt.Errorf("inventory reconciler not configured")
		}

		rows, err := reconciler.Reconcile(ctx, false)
		if err != nil {
			if auditor != nil {
				auditor.LogMaintenance("reconcile_inventory", "Inventory reconciliation failed", nil, err)
			}
			return fmt.Errorf("reconcile inventory: %w", err)
		}

		lost := 0
		for _, row := range rows {
			lost += row.Lost
			log.Printf("[TASK] Collection %d (%q at %q): total=%d available=%d outstanding=%d lost=%d discrepancy=%d",
				row.CollectionID, row.BookTitle, row.HallName,
				row.TotalCopies, row.AvailableCopies, row.Outstanding, row.Lost, row.Discrepancy)
		}
		log.Printf("[TASK] Inventory reconciliation found %d discrepant collections", len(rows))

		if auditor != nil {
			auditor.LogMaintenance("reconcile_inventory",
				fmt.Sprintf("%d collections need correction", len(rows)),
				map[string]any{"discrepant_collections": len(rows), "lost_copies": lost},
				nil)
		}
		return nil
	}
}

// NewReconcileInventoryQueue creates a backlite queue for reconciliation tasks.
func NewReconcileInventoryQueue(reconciler InventoryReconciler, auditor MaintenanceAuditor) backlite.Queue {
	return backlite.NewQueue(ReconcileInventoryProcessor(reconciler, auditor))
}
