package testutil

import (
	"context"
	"net/http"
	"time"

	id "issuance/pkg/domain"
	"issuance/pkg/requestcontext"
)

// AsPrincipal returns ctx acting as principal at a pinned time. A zero now
// leaves the clock unpinned.
func AsPrincipal(ctx context.Context, principal string, now time.Time) context.Context {
	ctx = requestcontext.WithPrincipal(ctx, id.PrincipalID(principal))
	if !now.IsZero() {
		ctx = requestcontext.WithTime(ctx, now)
	}
	return ctx
}

// WithPrincipal attaches a principal to the request, simulating the JWT
// middleware.
func WithPrincipal(req *http.Request, principal string) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), id.PrincipalID(principal)))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
