package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hallshelf/hallshelf/internal/audit"
	auditdb "github.com/hallshelf/hallshelf/internal/database/audit"
	"github.com/hallshelf/hallshelf/internal/entities"
)

type AuditController struct {
	auditService *audit.Service
}

func NewAuditController(auditService *audit.Service) *AuditController {
	return &AuditController{
		auditService: auditService,
	}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?type=&entity_type=&entity_id=&user_id=
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	page, ok := parsePagination(c)
	if !ok {
		return
	}
	filter := auditdb.Filter{
		EventType:  entities.AuditEventType(c.Query("type")),
		EntityType: c.Query("entity_type"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	if filter.UserID, ok = parseQueryID(c, "user_id"); !ok {
		return
	}
	if filter.EntityID, ok = parseQueryID(c, "entity_id"); !ok {
		return
	}

	events, total, err := ac.auditService.ListEvents(c.Request.Context(), filter)
	if err != nil {
		respondInternalError(c, err, "list audit events")
		return
	}
	if events == nil {
		events = []entities.AuditEvent{}
	}
	c.JSON(http.StatusOK, newPage(events, total, page))
}

// GetEventTypes lists the event types accepted by the type filter.
// GET /api/audit/types
func (ac *AuditController) GetEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"types": []entities.AuditEventType{
			entities.AuditEventCirculation,
			entities.AuditEventInventory,
			entities.AuditEventCatalog,
			entities.AuditEventAuth,
			entities.AuditEventMaintenance,
		},
	})
}
