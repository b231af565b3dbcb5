package security

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/cors"
)

// Headers configures common security headers for HTTP responses.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

// Middleware attaches standard security headers to each response.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Enable {
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		// fee amounts and receipts must never land in a shared cache
		headers.Set("Cache-Control", "no-store")
		if h.EnableHSTS && r.TLS != nil {
			maxAge := h.HSTSMaxAge
			if maxAge <= 0 {
				maxAge = 31536000
			}
			value := "max-age=" + strconv.Itoa(maxAge)
			if h.HSTSIncludeSubdomains {
				value += "; includeSubDomains"
			}
			headers.Set("Strict-Transport-Security", value)
		}
		next.ServeHTTP(w, r)
	})
}

// CORS returns go-chi/cors middleware for the cashier console origins.
// An empty list or "*" allows any origin without credentials.
func CORS(origins []string, branchHeader string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	wildcard := len(origins) == 0
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			wildcard = true
			continue
		}
		if trimmed != "" {
			allowed = append(allowed, trimmed)
		}
	}
	if wildcard {
		allowed = []string{"*"}
	}
	headers := []string{"Authorization", "Content-Type", "Accept", "X-Request-ID", "Idempotency-Key"}
	if branchHeader = strings.TrimSpace(branchHeader); branchHeader != "" {
		headers = append(headers, branchHeader)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   headers,
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	})
}
