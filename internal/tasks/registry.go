package tasks

import (
	"fmt"

	"github.com/mikestefanello/backlite"
)

// Task types, which double as queue names.
const (
	TypeCleanupAuditEvents = "cleanup_audit_events"
	TypeReconcileInventory = "reconcile_inventory"
)

// TypeInfo describes a task type that can be triggered manually.
type TypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Queue       string `json:"queue"`
}

// RunParams are the optional parameters of a manually triggered task.
type RunParams struct {
	RetentionDays int `json:"retention_days,omitempty" form:"retention_days"`
}

// Types lists the task types in a stable order.
func Types() []TypeInfo {
	return []TypeInfo{
		{
			Type:        TypeCleanupAuditEvents,
			Description: "Delete audit events older than the retention period",
			Queue:       TypeCleanupAuditEvents,
		},
		{
			Type:        TypeReconcileInventory,
			Description: "Report collections whose copy counts disagree with outstanding and lost lendings",
			Queue:       TypeReconcileInventory,
		},
	}
}

// NewTask builds a task of the given type.
func NewTask(taskType string, params RunParams) (backlite.Task, error) {
	switch taskType {
	case TypeCleanupAuditEvents:
		if params.RetentionDays < 0 {
			return nil, fmt.Errorf("retention_days must not be negative")
		}
		return CleanupAuditEventsTask{RetentionDays: params.RetentionDays}, nil
	case TypeReconcileInventory:
		return ReconcileInventoryTask{}, nil
	default:
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}
}

// RegisterQueues registers every maintenance queue on the client.
func RegisterQueues(c *Client, cleaner AuditEventCleaner, reconciler InventoryReconciler, auditor MaintenanceAuditor) {
	c.Register(
		NewCleanupAuditEventsQueue(cleaner, c.config.AuditRetentionDays),
		NewReconcileInventoryQueue(reconciler, auditor),
	)
}
