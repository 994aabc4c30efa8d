package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hallshelf/hallshelf/internal/metadata"
)

// BookLookup finds edition details for an ISBN.
type BookLookup interface {
	LookupISBN(ctx context.Context, isbn string) (*metadata.BookInfo, error)
}

// LookupController prefills catalog entries from an external source.
type LookupController struct {
	lookup BookLookup
}

func NewLookupController(lookup BookLookup) *LookupController {
	return &LookupController{lookup: lookup}
}

// LookupISBN handles GET /api/books/lookup?isbn=
func (lc *LookupController) LookupISBN(c *gin.Context) {
	isbn := strings.TrimSpace(c.Query("isbn"))
	if isbn == "" {
		respondValidation(c, "isbn", "is required")
		return
	}

	info, err := lc.lookup.LookupISBN(c.Request.Context(), isbn)
	if err != nil {
		if errors.Is(err, metadata.ErrUpstream) {
			c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: "upstream"})
			return
		}
		respondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}
