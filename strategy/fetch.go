package strategy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bkalafat/tskulis-sub002/cachestore"
)

// Fetcher is the network collaborator. It may fail with an error
// (connection refused, context canceled) or succeed with any status;
// interpreting a non-2xx status as a non-success outcome is the
// executors' job, not the fetcher's.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*cachestore.Entry, error)
}

// HTTPFetcher forwards requests to an origin over a standard
// http.Client. No timeout is enforced here — callers that want one set
// it on the client they pass in.
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher returns a Fetcher bound to baseURL. Origin-relative
// request URLs are resolved against it; absolute URLs are fetched as-is.
func NewHTTPFetcher(client *http.Client, baseURL string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (f *HTTPFetcher) resolve(u *url.URL) (string, error) {
	if u.IsAbs() {
		return u.String(), nil
	}
	if f.baseURL == "" {
		return "", fmt.Errorf("strategy: relative URL %q with no base", u)
	}
	return f.baseURL + u.RequestURI(), nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*cachestore.Entry, error) {
	target, err := f.resolve(req.URL)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if req.Body != nil && req.Body != http.NoBody {
		buf, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("strategy: reading request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	outbound, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Header {
		outbound.Header[k] = v
	}
	resp, err := f.client.Do(outbound)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("strategy: reading response body: %w", err)
	}
	return cachestore.NewEntry(resp.StatusCode, resp.Header, payload), nil
}
