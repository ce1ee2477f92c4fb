package flume

import (
	"context"
	"net/url"
)

// Request describes one call against the feed API. The path is relative to
// the API base and always trailing-slash terminated; the signature authorizes
// the request for exactly one feed.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any // JSON-encoded when non-nil
	Signature string
}

// Requester executes a request and decodes the JSON response into out.
//
// Implementations own retry and backoff policy; the feed layer never retries
// and surfaces whatever error comes back unchanged.
type Requester interface {
	Do(ctx context.Context, req *Request, out any) error
}
