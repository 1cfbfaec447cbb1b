package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/prok20/faulty-server-poller/internal/run"
	"github.com/prok20/faulty-server-poller/internal/tracing"
)

// RunIDHeader carries the run id on every upstream call.
const RunIDHeader = "X-Run-Id"

const maxBodyBytes = 64 << 10

// Requester implements run.Upstream over HTTP. It is safe for concurrent use.
type Requester struct {
	client    *http.Client
	address   string
	propagate bool
}

// NewRequester validates address and returns a Requester that uses client.
// When propagate is set, W3C trace headers are added to each call.
func NewRequester(client *http.Client, address string, propagate bool) (*Requester, error) {
	if client == nil {
		return nil, errors.New("http client cannot be nil")
	}
	address = strings.TrimSpace(address)
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid polling address: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("polling address %q must be an absolute URL", address)
	}
	return &Requester{client: client, address: address, propagate: propagate}, nil
}

// SendRequest performs one call for id and never returns a Go error.
func (r *Requester) SendRequest(ctx context.Context, id run.ID) run.Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.address, nil)
	if err != nil {
		return run.Err(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set(RunIDHeader, id.String())
	req.Header.Set("Accept", "application/json")
	if r.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return run.Err(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return run.Err(fmt.Sprintf("read response: %v", err))
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return decodeOutcome(resp.StatusCode, body)
}
