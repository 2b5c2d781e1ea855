package util

import (
	"net/http"
	"strings"
)

const apiCSP = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"

// WithSecurityHeaders sets the headers every JSON API response carries.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCommonSecurityHeaders(w, r)
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", apiCSP)
		next.ServeHTTP(w, r)
	})
}

// WithEmbeddableHeaders is for stored PDFs and covers, which the frontend
// renders inside its own pages. Only the listed origins may frame them; an
// empty or wildcard list falls back to same-origin framing.
func WithEmbeddableHeaders(frameAncestors []string) func(http.Handler) http.Handler {
	ancestors := "'self'"
	for _, origin := range frameAncestors {
		origin = strings.TrimSpace(origin)
		if origin == "" || origin == "*" {
			continue
		}
		ancestors += " " + origin
	}
	csp := "default-src 'none'; img-src 'self'; frame-ancestors " + ancestors
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			setCommonSecurityHeaders(w, r)
			w.Header().Set("Content-Security-Policy", csp)
			w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}

func setCommonSecurityHeaders(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")
	if r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}
