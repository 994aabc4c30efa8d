package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hallshelf/hallshelf/internal/apperr"
)

// ErrUpstream is returned when the lookup service fails or answers with
// something other than a book or a 404.
var ErrUpstream = errors.New("book lookup service unavailable")

const (
	DefaultBaseURL  = "https://openlibrary.org"
	defaultCacheTTL = 24 * time.Hour
	cacheSize       = 1024
	userAgent       = "HallShelf/1.0"
)

// BookInfo is what a lookup knows about an edition. It prefills catalog
// entries; nothing is written to the catalog by a lookup.
type BookInfo struct {
	ISBN          string   `json:"isbn"`
	Title         string   `json:"title"`
	Author        string   `json:"author,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	PublishedYear int      `json:"published_year,omitempty"`
	Description   string   `json:"description,omitempty"`
	Subjects      []string `json:"subjects,omitempty"`
	PageCount     int      `json:"page_count,omitempty"`
	CoverURL      string   `json:"cover_url,omitempty"`
}

// OpenLibraryClient looks editions up by ISBN on the OpenLibrary API.
type OpenLibraryClient struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rateLimiter
	cache       *expirable.LRU[string, *BookInfo]
}

type rateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	interval time.Duration
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

func (r *rateLimiter) wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if since := time.Since(r.lastCall); since < r.interval {
		timer := time.NewTimer(r.interval - since)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	r.lastCall = time.Now()
	return nil
}

// NewOpenLibraryClient creates a client with one request per second and a
// result cache. Empty baseURL and zero cacheTTL select the defaults.
func NewOpenLibraryClient(baseURL string, cacheTTL time.Duration) *OpenLibraryClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &OpenLibraryClient{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		rateLimiter: newRateLimiter(time.Second),
		cache:       expirable.NewLRU[string, *BookInfo](cacheSize, nil, cacheTTL),
	}
}

// LookupISBN returns what OpenLibrary knows about an ISBN-10 or ISBN-13.
// Hyphens and spaces are ignored.
func (c *OpenLibraryClient) LookupISBN(ctx context.Context, isbn string) (*BookInfo, error) {
	normalized := NormalizeISBN(isbn)
	if normalized == "" {
		return nil, apperr.Validation("isbn", "must be an ISBN-10 or ISBN-13")
	}

	if info, ok := c.cache.Get(normalized); ok {
		return info, nil
	}

	var book openLibraryBook
	found, err := c.getJSON(ctx, fmt.Sprintf("/isbn/%s.json", normalized), &book)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NotFoundf("no book found for isbn %s", normalized)
	}

	info := convertBook(&book, normalized)

	// Edition records name authors by key only
	if len(book.Authors) > 0 {
		if name, err := c.fetchAuthorName(ctx, book.Authors[0].Key); err == nil {
			info.Author = name
		}
	}

	c.cache.Add(normalized, info)
	return info, nil
}

func (c *OpenLibraryClient) fetchAuthorName(ctx context.Context, authorKey string) (string, error) {
	if authorKey == "" {
		return "", fmt.Errorf("empty author key")
	}

	var author struct {
		Name string `json:"name"`
	}
	found, err := c.getJSON(ctx, authorKey+".json", &author)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("author %s not found", authorKey)
	}
	return author.Name, nil
}

// getJSON decodes the document at path into out. A 404 is reported as
// found == false rather than an error.
func (c *OpenLibraryClient) getJSON(ctx context.Context, path string, out any) (bool, error) {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return true, nil
}

func convertBook(book *openLibraryBook, isbn string) *BookInfo {
	info := &BookInfo{
		ISBN:      isbn,
		Title:     book.Title,
		PageCount: book.NumberOfPages,
		CoverURL:  fmt.Sprintf("https://covers.openlibrary.org/b/isbn/%s-L.jpg", isbn),
	}

	if book.PublishDate != "" {
		info.PublishedYear = extractYear(book.PublishDate)
	}
	if len(book.Publishers) > 0 {
		info.Publisher = book.Publishers[0]
	}

	// Description is either a string or {type, value}
	switch v := book.Description.(type) {
	case string:
		info.Description = v
	case map[string]any:
		if val, ok := v["value"].(string); ok {
			info.Description = val
		}
	}

	info.Subjects = book.Subjects
	if len(info.Subjects) > 10 {
		info.Subjects = info.Subjects[:10]
	}

	return info
}

// NormalizeISBN strips hyphens and spaces. It returns "" unless the result
// has the length of an ISBN-10 or ISBN-13.
func NormalizeISBN(isbn string) string {
	isbn = strings.ReplaceAll(isbn, "-", "")
	isbn = strings.ReplaceAll(isbn, " ", "")
	isbn = strings.TrimSpace(isbn)

	if len(isbn) != 10 && len(isbn) != 13 {
		return ""
	}
	for i, r := range isbn {
		// ISBN-10 check digit may be X
		if (r < '0' || r > '9') && !(i == 9 && len(isbn) == 10 && (r == 'X' || r == 'x')) {
			return ""
		}
	}

	return strings.ToUpper(isbn)
}

// extractYear tries to extract a 4-digit year from a date string.
func extractYear(dateStr string) int {
	dateStr = strings.TrimSpace(dateStr)
	if len(dateStr) < 4 {
		return 0
	}

	formats := []string{
		"2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2006-01-02",
		"January 2006",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t.Year()
		}
	}

	// Last resort: find 4 consecutive digits
	for i := 0; i <= len(dateStr)-4; i++ {
		if dateStr[i] >= '0' && dateStr[i] <= '9' {
			var year int
			if _, err := fmt.Sscanf(dateStr[i:i+4], "%d", &year); err == nil && year > 1000 && year < 3000 {
				return year
			}
		}
	}

	return 0
}

type openLibraryBook struct {
	Key           string      `json:"key"`
	Title         string      `json:"title"`
	Authors       []authorRef `json:"authors"`
	Publishers    []string    `json:"publishers"`
	PublishDate   string      `json:"publish_date"`
	NumberOfPages int         `json:"number_of_pages"`
	Description   any         `json:"description"`
	Subjects      []string    `json:"subjects"`
}

type authorRef struct {
	Key string `json:"key"`
}
