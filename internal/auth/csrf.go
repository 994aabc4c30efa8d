package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
)

// CSRFTokenHeader carries the CSRF token both ways: responses expose the
// current token and unsafe session requests must send it back.
const CSRFTokenHeader = "X-CSRF-Token"

// CSRFMiddleware creates a Gin middleware for CSRF protection of
// cookie-authenticated requests. It skips CSRF checks for requests with a
// valid Bearer token; safe methods (GET, HEAD, OPTIONS, TRACE) always pass.
//
// When secure is false the requests are treated as plain HTTP so local
// development without TLS does not trip the referer check. Requests to the
// exempt paths are never checked.
func CSRFMiddleware(secret []byte, secure bool, authService *Service, exempt ...string) gin.HandlerFunc {
	exemptPaths := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		exemptPaths[p] = true
	}

	csrfProtect := csrf.Protect(
		secret,
		csrf.Secure(secure),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteStrictMode),
		csrf.Path("/"),
		csrf.RequestHeader(CSRFTokenHeader),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	)

	return func(c *gin.Context) {
		if exemptPaths[c.Request.URL.Path] || hasValidBearer(c, authService) {
			c.Next()
			return
		}

		if !secure {
			c.Request = csrf.PlaintextHTTPRequest(c.Request)
		}

		passed := false
		handler := csrfProtect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			token := csrf.Token(r)
			c.Set("csrf_token", token)
			c.Header(CSRFTokenHeader, token)
			c.Request = r
			c.Next()
		}))

		handler.ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"CSRF token invalid or missing","code":"csrf"}`))
}

// hasValidBearer checks if the request carries a valid Bearer token.
// If authService is nil, only the header's presence is checked.
func hasValidBearer(c *gin.Context, authService *Service) bool {
	token := bearerToken(c)
	if token == "" {
		return false
	}

	if authService == nil {
		return true
	}

	_, err := authService.ValidateToken(c.Request.Context(), token)
	return err == nil
}

// GetCSRFToken retrieves the CSRF token from the Gin context.
func GetCSRFToken(c *gin.Context) string {
	if token, exists := c.Get("csrf_token"); exists {
		if t, ok := token.(string); ok {
			return t
		}
	}
	return ""
}
