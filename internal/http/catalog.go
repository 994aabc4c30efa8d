package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hallshelf/hallshelf/internal/auth"
	"github.com/hallshelf/hallshelf/internal/database/catalog"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// CatalogAuditor records catalog changes.
type CatalogAuditor interface {
	LogCatalog(userID uint, action, entityType string, entityID uint, description string)
}

// CatalogController serves CRUD for one reference table.
type CatalogController[T any, PT interface {
	*T
	entities.Record
}] struct {
	store   *catalog.Store[T, PT]
	auditor CatalogAuditor
}

func NewCatalogController[T any, PT interface {
	*T
	entities.Record
}](store *catalog.Store[T, PT], auditor CatalogAuditor) *CatalogController[T, PT] {
	return &CatalogController[T, PT]{store: store, auditor: auditor}
}

// RegisterRoutes mounts the resource under group. Writes go through the
// write middleware, reads only through the group's.
func (cc *CatalogController[T, PT]) RegisterRoutes(group *gin.RouterGroup, write ...gin.HandlerFunc) {
	group.GET("", cc.List)
	group.GET("/:id", cc.Get)

	writes := group.Group("", write...)
	writes.POST("", cc.Create)
	writes.PUT("/:id", cc.Update)
	writes.DELETE("/:id", cc.Delete)
}

// List handles GET /api/<resource>?q=&limit=&offset=
func (cc *CatalogController[T, PT]) List(c *gin.Context) {
	page, ok := parsePagination(c)
	if !ok {
		return
	}
	records, total, err := cc.store.List(c.Request.Context(), catalog.ListParams{
		Search: c.Query("q"),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		respondAppError(c, err)
		return
	}
	if records == nil {
		records = []T{}
	}
	c.JSON(http.StatusOK, newPage(records, total, page))
}

// Get handles GET /api/<resource>/:id
func (cc *CatalogController[T, PT]) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	record, err := cc.store.Get(c.Request.Context(), id)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Create handles POST /api/<resource>
func (cc *CatalogController[T, PT]) Create(c *gin.Context) {
	record := PT(new(T))
	if err := c.ShouldBindJSON(record); err != nil {
		respondValidation(c, "body", err.Error())
		return
	}
	if err := cc.store.Create(c.Request.Context(), record); err != nil {
		respondAppError(c, err)
		return
	}
	cc.log(c, "create", record.GetID())
	c.JSON(http.StatusCreated, record)
}

// Update handles PUT /api/<resource>/:id
func (cc *CatalogController[T, PT]) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	record := PT(new(T))
	if err := c.ShouldBindJSON(record); err != nil {
		respondValidation(c, "body", err.Error())
		return
	}
	updated, err := cc.store.Update(c.Request.Context(), id, record)
	if err != nil {
		respondAppError(c, err)
		return
	}
	cc.log(c, "update", id)
	c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /api/<resource>/:id
func (cc *CatalogController[T, PT]) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := cc.store.Delete(c.Request.Context(), id); err != nil {
		respondAppError(c, err)
		return
	}
	cc.log(c, "delete", id)
	c.Status(http.StatusNoContent)
}

func (cc *CatalogController[T, PT]) log(c *gin.Context, action string, id uint) {
	if cc.auditor == nil {
		return
	}
	resource := cc.store.Resource()
	cc.auditor.LogCatalog(auth.GetUserID(c), action, resource, id,
		fmt.Sprintf("%s %s %d", action, resource, id))
}
