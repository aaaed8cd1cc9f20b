package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// HTTPFetcher implements Fetcher using net/http. It does not retry: the
// ledger records each failure and a later run picks the URL up again.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "MarketMap/1.0 (source-verification-script)"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 << 20
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts: opts,
	}
}

// Fetch performs a GET and returns the status and (for 2xx) the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: get %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	out := &Response{Status: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out.Block = DetectBlock(resp, nil)
		return out, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read body %s", rawURL)
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return nil, eris.Errorf("fetcher: body of %s exceeds %d bytes", rawURL, f.opts.MaxBodyBytes)
	}

	if bt := DetectBlock(resp, body); bt != BlockNone {
		zap.L().Warn("fetcher: anti-bot page detected",
			zap.String("url", rawURL),
			zap.String("block_type", string(bt)),
		)
		out.Status = http.StatusForbidden
		out.Block = bt
		return out, nil
	}

	out.Body = body
	return out, nil
}
