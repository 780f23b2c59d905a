package middleware

import (
	"fmt"
	"net/http"
)

// RequestSizeLimitMiddleware caps upload bodies at maxRequestSize bytes.
// A declared Content-Length above the cap is refused before the handler runs.
// Bodies of unknown length are cut off while streaming, and the handler sees
// an *http.MaxBytesError when the cap is crossed.
func RequestSizeLimitMiddleware(maxRequestSize int64) func(http.Handler) http.Handler {
	message := fmt.Sprintf("request body exceeds %d bytes", maxRequestSize)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxRequestSize {
				// the unread body would otherwise be drained by the server
				w.Header().Set("Connection", "close")
				WriteError(w, r, http.StatusRequestEntityTooLarge, message)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
			next.ServeHTTP(w, r)
		})
	}
}
