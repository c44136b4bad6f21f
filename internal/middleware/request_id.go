package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

type requestIdKey string

const (
	RequestIdKey    requestIdKey = "requestId"
	RequestIdHeader              = "X-Request-ID"
)

var validRequestId = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// WithRequestId keeps a well-formed inbound X-Request-ID (set by a proxy)
// or mints a new one, and echoes it on the response.
func WithRequestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqId := r.Header.Get(RequestIdHeader)
		if !validRequestId.MatchString(reqId) {
			reqId = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), RequestIdKey, reqId)
		r = r.WithContext(ctx)
		r.Header.Set(RequestIdHeader, reqId)
		w.Header().Set(RequestIdHeader, reqId)

		next.ServeHTTP(w, r)
	})
}
