// Package fetcher downloads source pages for the fetch ledger.
package fetcher

import (
	"context"
)

// Response is the outcome of one page download. Status is the HTTP status,
// rewritten to 403 when the body is an anti-bot challenge.
type Response struct {
	Status int
	Body   []byte
	Block  BlockType
}

// Fetcher downloads a single URL. Transport failures are returned as errors;
// any HTTP status is returned as a Response.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}
