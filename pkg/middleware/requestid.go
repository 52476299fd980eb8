package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID returns middleware that assigns each request a random ID (or
// reuses the caller-provided one), echoes it in the response header, and
// stores it in the context for log correlation.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = newRequestID()
			}
			w.Header().Set(requestIDHeader, id)
			ctx := logger.WithRequestID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
