package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response bodies larger than these limits are rejected.
const (
	maxListingBytes  = 10 << 20
	maxDocumentBytes = 64 << 20
)

// CustomTransport adds a browser-like User-Agent header to every request.
type CustomTransport struct {
	Transport http.RoundTripper
	UserAgent string
}

func (t *CustomTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.UserAgent)
	return t.Transport.RoundTrip(req)
}

// NewHTTPClient creates the client used for listing and document fetches.
func NewHTTPClient(userAgent string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &CustomTransport{
			Transport: http.DefaultTransport,
			UserAgent: userAgent,
		},
	}
}

// fetch performs a single GET and returns the body. Non-2xx responses are
// errors; there is no retry.
func fetch(ctx context.Context, client *http.Client, link string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", link, limit)
	}
	return data, nil
}
