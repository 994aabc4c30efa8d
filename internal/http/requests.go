package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hallshelf/hallshelf/internal/circulation"
	circdb "github.com/hallshelf/hallshelf/internal/database/circulation"
	"github.com/hallshelf/hallshelf/internal/entities"
)

// CirculationController serves requests and lendings.
type CirculationController struct {
	manager *circulation.Manager
}

func NewCirculationController(manager *circulation.Manager) *CirculationController {
	return &CirculationController{manager: manager}
}

// CreateRequestBody is the body of POST /api/requests. ReaderID is only read
// when authentication is disabled.
type CreateRequestBody struct {
	ReaderID uint `json:"reader_id"`
	BookID   uint `json:"book_id"`
	HallID   uint `json:"hall_id"`
}

// FulfillBody is the body of POST /api/requests/:id/fulfill. VolunteerID is
// only read when authentication is disabled.
type FulfillBody struct {
	VolunteerID uint `json:"volunteer_id"`
}

// CreateRequest handles POST /api/requests
func (cc *CirculationController) CreateRequest(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondValidation(c, "body", err.Error())
		return
	}

	req, err := cc.manager.CreateRequest(c.Request.Context(), circulation.CreateRequestInput{
		ReaderID: resolveUserID(c, body.ReaderID),
		BookID:   body.BookID,
		HallID:   body.HallID,
	})
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// ListRequests handles GET /api/requests?status=&hall_id=&book_id=&reader_id=
func (cc *CirculationController) ListRequests(c *gin.Context) {
	page, ok := parsePagination(c)
	if !ok {
		return
	}
	filter := circdb.RequestFilter{
		Status: entities.RequestStatus(c.Query("status")),
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	if filter.ReaderID, ok = parseQueryID(c, "reader_id"); !ok {
		return
	}
	if filter.BookID, ok = parseQueryID(c, "book_id"); !ok {
		return
	}
	if filter.HallID, ok = parseQueryID(c, "hall_id"); !ok {
		return
	}

	requests, total, err := cc.manager.ListRequests(c.Request.Context(), filter, actorFrom(c))
	if err != nil {
		respondAppError(c, err)
		return
	}
	if requests == nil {
		requests = []entities.Request{}
	}
	c.JSON(http.StatusOK, newPage(requests, total, page))
}

// GetRequest handles GET /api/requests/:id
func (cc *CirculationController) GetRequest(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	req, err := cc.manager.GetRequest(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// CancelRequest handles POST /api/requests/:id/cancel
func (cc *CirculationController) CancelRequest(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	req, err := cc.manager.CancelRequest(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// FulfillRequest handles POST /api/requests/:id/fulfill
func (cc *CirculationController) FulfillRequest(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body FulfillBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondValidation(c, "body", err.Error())
			return
		}
	}

	lending, err := cc.manager.Fulfill(c.Request.Context(), id, resolveUserID(c, body.VolunteerID))
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lending)
}

// ListLendings handles GET /api/lendings?status=&hall_id=&volunteer_id=&reader_id=
func (cc *CirculationController) ListLendings(c *gin.Context) {
	page, ok := parsePagination(c)
	if !ok {
		return
	}
	filter := circdb.LendingFilter{
		Status: entities.LendingStatus(c.Query("status")),
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	if filter.VolunteerID, ok = parseQueryID(c, "volunteer_id"); !ok {
		return
	}
	if filter.ReaderID, ok = parseQueryID(c, "reader_id"); !ok {
		return
	}
	if filter.HallID, ok = parseQueryID(c, "hall_id"); !ok {
		return
	}

	lendings, total, err := cc.manager.ListLendings(c.Request.Context(), filter, actorFrom(c))
	if err != nil {
		respondAppError(c, err)
		return
	}
	if lendings == nil {
		lendings = []entities.Lending{}
	}
	c.JSON(http.StatusOK, newPage(lendings, total, page))
}

// GetLending handles GET /api/lendings/:id
func (cc *CirculationController) GetLending(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	lending, err := cc.manager.GetLending(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, lending)
}

// ReturnLending handles POST /api/lendings/:id/return
func (cc *CirculationController) ReturnLending(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	lending, err := cc.manager.ReturnBook(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, lending)
}

// MarkLendingLost handles POST /api/lendings/:id/mark-lost
func (cc *CirculationController) MarkLendingLost(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	lending, err := cc.manager.MarkLost(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, lending)
}
