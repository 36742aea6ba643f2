package testutil

import (
	"net/http"

	"casegov/pkg/requestcontext"
)

// WithCaller injects a caller identity into the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithCaller(req *http.Request, callerID string, scopes ...string) *http.Request {
	ctx := requestcontext.WithCallerID(req.Context(), callerID)
	if len(scopes) > 0 {
		ctx = requestcontext.WithScopes(ctx, scopes)
	}
	return req.WithContext(ctx)
}

// WithRequestID injects a correlation id into the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
