package httpserver

import "net/http"

// securityHeadersMiddleware adds baseline defense-in-depth headers to every
// response; this is a JSON API, not an HTML one, but a misconfigured CORS
// proxy or browser-based agent client still benefits from them.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// adminMetricsAuth protects operator-only routes (metrics, circuit breaker
// status, manual mint finalization) behind a bearer token. An empty apiKey
// disables the check, matching local/dev deployments that have no token
// configured.
func adminMetricsAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("Authorization") != "Bearer "+apiKey {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid admin bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
