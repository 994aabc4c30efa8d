package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hallshelf/hallshelf/internal/auth"
	"github.com/hallshelf/hallshelf/internal/circulation"
	"github.com/hallshelf/hallshelf/internal/database/inventory"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// CollectionsController serves the per-hall inventory.
type CollectionsController struct {
	manager *circulation.Manager
}

func NewCollectionsController(manager *circulation.Manager) *CollectionsController {
	return &CollectionsController{manager: manager}
}

// UpsertStockBody adds copies to a hall. Both counts are increments.
type UpsertStockBody struct {
	BookID          uint `json:"book_id"`
	HallID          uint `json:"hall_id"`
	TotalCopies     int  `json:"total_copies"`
	AvailableCopies int  `json:"available_copies"`
}

// SetStockBody replaces the counts of a collection.
type SetStockBody struct {
	TotalCopies     *int `json:"total_copies"`
	AvailableCopies *int `json:"available_copies"`
}

// Upsert handles POST /api/book-collections
func (cc *CollectionsController) Upsert(c *gin.Context) {
	var body UpsertStockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondValidation(c, "body", err.Error())
		return
	}

	collection, err := cc.manager.UpsertStock(c.Request.Context(), circulation.UpsertStockInput{
		BookID:          body.BookID,
		HallID:          body.HallID,
		TotalCopies:     body.TotalCopies,
		AvailableCopies: body.AvailableCopies,
		ActorID:         auth.GetUserID(c),
	})
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

// List handles GET /api/book-collections?book_id=&hall_id=
func (cc *CollectionsController) List(c *gin.Context) {
	page, ok := parsePagination(c)
	if !ok {
		return
	}
	filter := inventory.Filter{Limit: page.Limit, Offset: page.Offset}
	if filter.BookID, ok = parseQueryID(c, "book_id"); !ok {
		return
	}
	if filter.HallID, ok = parseQueryID(c, "hall_id"); !ok {
		return
	}

	collections, total, err := cc.manager.ListCollections(c.Request.Context(), filter)
	if err != nil {
		respondAppError(c, err)
		return
	}
	if collections == nil {
		collections = []entities.BookCollection{}
	}
	c.JSON(http.StatusOK, newPage(collections, total, page))
}

// Get handles GET /api/book-collections/:id
func (cc *CollectionsController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	collection, err := cc.manager.GetCollection(c.Request.Context(), id)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

// Set handles PUT /api/book-collections/:id
func (cc *CollectionsController) Set(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body SetStockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondValidation(c, "body", err.Error())
		return
	}
	if body.TotalCopies == nil {
		respondValidation(c, "total_copies", "is required")
		return
	}
	if body.AvailableCopies == nil {
		respondValidation(c, "available_copies", "is required")
		return
	}

	collection, err := cc.manager.SetStock(c.Request.Context(), id, *body.TotalCopies, *body.AvailableCopies, auth.GetUserID(c))
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

// Delete handles DELETE /api/book-collections/:id
func (cc *CollectionsController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := cc.manager.DeleteStock(c.Request.Context(), id, auth.GetUserID(c)); err != nil {
		respondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Reconciliation handles GET /api/book-collections/reconciliation?all=true
func (cc *CollectionsController) Reconciliation(c *gin.Context) {
	rows, err := cc.manager.Reconcile(c.Request.Context(), c.Query("all") == "true")
	if err != nil {
		respondAppError(c, err)
		return
	}
	if rows == nil {
		rows = []inventory.ReconcileRow{}
	}
	c.JSON(http.StatusOK, gin.H{
		"rows":  rows,
		"count": len(rows),
	})
}

// Availability handles GET /api/books/:id/availability
func (cc *CollectionsController) Availability(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	availability, err := cc.manager.BookAvailability(c.Request.Context(), id)
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, availability)
}
