package middleware

import (
	"net/http"
	"strings"
)

var (
	allowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	allowedHeaders = []string{"Accept", "Content-Type", "X-Request-Id"}
)

// CORS 允许本地前端跨域访问，并直接应答预检请求。
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", strings.Join(allowedMethods, ", "))
		h.Set("Access-Control-Allow-Headers", strings.Join(allowedHeaders, ", "))
		h.Set("Access-Control-Expose-Headers", "Content-Disposition")
		h.Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
