package middleware

import "net/http"

// Content Security Policy for an API that serves JSON and TwiML only.
// Everything is locked to the same origin; connect-src allows ws:/wss:
// so browser-based dashboards can reach the media stream endpoint.
const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self'; " +
	"img-src 'self' data:; " +
	"connect-src 'self' ws: wss:; " +
	"frame-ancestors 'none'; " +
	"base-uri 'self'; " +
	"form-action 'self'"

var securityHeaders = map[string]string{
	"X-Frame-Options":         "DENY",
	"X-Content-Type-Options":  "nosniff",
	"X-XSS-Protection":        "0", // CSP supersedes the legacy filter
	"Referrer-Policy":         "strict-origin-when-cross-origin",
	"Content-Security-Policy": contentSecurityPolicy,
	"Permissions-Policy":      "camera=(), microphone=(), geolocation=(), payment=()",
}

// SecurityHeaders sets standard HTTP security headers on every response.
// Strict-Transport-Security is only sent when tlsEnabled is true, so a
// plain-HTTP deployment never teaches browsers to require HTTPS for a
// host that cannot serve it.
func SecurityHeaders(tlsEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range securityHeaders {
				h.Set(name, value)
			}
			if tlsEnabled {
				// Two years, applied to subdomains as well.
				h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
