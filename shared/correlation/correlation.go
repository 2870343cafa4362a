// Package correlation carries the opaque tracing token that travels from an
// HTTP request through every event it causes.
package correlation

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header is the HTTP header the id is read from and echoed in.
const Header = "X-Correlation-ID"

type ctxKey struct{}

// WithID stores id in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Ensure returns ctx with a correlation id, generating one when absent.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithID(ctx, id), id
}

// Middleware reads X-Correlation-ID (or generates one), stores it in the
// request context and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(Header); id != "" {
			ctx = WithID(ctx, id)
		}
		ctx, id := Ensure(ctx)
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
