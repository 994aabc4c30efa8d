package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hallshelf/hallshelf/internal/apperr"
	"github.com/hallshelf/hallshelf/internal/auth"
	"github.com/hallshelf/hallshelf/internal/circulation"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`    // machine-readable error code
	Details any    `json:"details,omitempty"` // additional context (validation errors, etc.)
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data       any   `json:"data"`
	Total      int64 `json:"total"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	HasMore    bool  `json:"has_more"`
	TotalPages int   `json:"total_pages,omitempty"`
}

func newPage(data any, total int64, p pagination) PaginatedResponse {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Limit:      p.Limit,
		Offset:     p.Offset,
		HasMore:    int64(p.Offset+p.Limit) < total,
		TotalPages: pages,
	}
}

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: "bad_request"})
}

// respondValidation sends a 422 for a malformed body field.
func respondValidation(c *gin.Context, field, message string) {
	respondAppError(c, apperr.Validation(field, message))
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s) [request %s]: %v", context, GetRequestID(c), err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal"})
}

// respondAppError maps a domain error to its status code. Errors without a
// kind are internal and their cause is only logged.
func respondAppError(c *gin.Context, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var status int

	switch kind := apperr.KindOf(err); {
	case errors.Is(kind, apperr.ErrValidation):
		status, resp.Code = http.StatusUnprocessableEntity, "validation"
		if field := apperr.FieldOf(err); field != "" {
			resp.Details = gin.H{"field": field}
		}
	case errors.Is(kind, apperr.ErrNotFound):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(kind, apperr.ErrConflict):
		status, resp.Code = http.StatusConflict, "conflict"
	case errors.Is(kind, apperr.ErrForbidden):
		status, resp.Code = http.StatusForbidden, "forbidden"
	case errors.Is(err, context.DeadlineExceeded):
		log.Printf("Request timed out (%s) [request %s]: %v", c.FullPath(), GetRequestID(c), err)
		respondTimeout(c)
		return
	default:
		respondInternalError(c, err, c.FullPath())
		return
	}
	c.JSON(status, resp)
}

// --- Parameter Parsing ---

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	idStr := c.Param(paramName)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseQueryID extracts an optional unsigned integer ID from query parameters.
// A missing parameter yields 0, true; a malformed one responds with 400.
func parseQueryID(c *gin.Context, paramName string) (uint, bool) {
	idStr := c.Query(paramName)
	if idStr == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

type pagination struct {
	Limit  int
	Offset int
}

// parsePagination reads limit and offset from the query string.
func parsePagination(c *gin.Context) (pagination, bool) {
	p := pagination{Limit: defaultPageLimit}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respondBadRequest(c, "invalid limit")
			return p, false
		}
		p.Limit = min(n, maxPageLimit)
	}
	if s := c.Query("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondBadRequest(c, "invalid offset")
			return p, false
		}
		p.Offset = n
	}
	return p, true
}

// actorFrom returns the caller as seen by the circulation manager. Without
// authentication the actor is empty and ownership checks are skipped.
func actorFrom(c *gin.Context) circulation.Actor {
	return circulation.Actor{
		UserID: auth.GetUserID(c),
		Role:   auth.GetUserRole(c),
	}
}

// resolveUserID prefers the authenticated user over an id from the body.
func resolveUserID(c *gin.Context, fromBody uint) uint {
	if id := auth.GetUserID(c); id != auth.DefaultUserID {
		return id
	}
	return fromBody
}
