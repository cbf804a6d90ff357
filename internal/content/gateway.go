// Package content retrieves exercise charts and solutions from a content-addressed gateway.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/observability"
)

var (
	// ErrNotFound is returned when the gateway has no content for a CID.
	ErrNotFound = errors.New("content not found")

	// ErrBadContent is returned when content cannot be decoded or fails validation.
	ErrBadContent = errors.New("bad content")
)

// DefaultMaxBodyBytes caps a single content blob.
const DefaultMaxBodyBytes = 8 << 20

// Fetcher retrieves immutable content by CID.
type Fetcher interface {
	FetchChart(ctx context.Context, cid string) (*domain.Chart, error)
	FetchSolution(ctx context.Context, cid string) (*domain.Solution, error)
}

// GatewayClient fetches content with GET <gateway>/<cid>. It never retries.
type GatewayClient struct {
	gateway  string
	client   *http.Client
	maxBytes int64
}

// GatewayOption configures GatewayClient.
type GatewayOption func(*GatewayClient)

// WithGatewayHTTPClient sets a custom http.Client.
func WithGatewayHTTPClient(client *http.Client) GatewayOption {
	return func(g *GatewayClient) {
		g.client = client
	}
}

// WithMaxBodyBytes caps the response body size.
func WithMaxBodyBytes(n int64) GatewayOption {
	return func(g *GatewayClient) {
		g.maxBytes = n
	}
}

// NewGatewayClient creates a gateway client rooted at gateway, e.g. https://ipfs.io/ipfs.
func NewGatewayClient(gateway string, opts ...GatewayOption) *GatewayClient {
	g := &GatewayClient{
		gateway:  strings.TrimRight(gateway, "/"),
		client:   &http.Client{Timeout: 20 * time.Second},
		maxBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FetchChart retrieves and validates the chart blob of an exercise.
func (g *GatewayClient) FetchChart(ctx context.Context, cid string) (*domain.Chart, error) {
	var chart domain.Chart
	if err := g.fetch(ctx, "chart", cid, &chart); err != nil {
		return nil, err
	}
	if err := chart.Validate(); err != nil {
		observability.RecordContentFetch("chart", "invalid")
		return nil, fmt.Errorf("%w: %s: %v", ErrBadContent, cid, err)
	}
	observability.RecordContentFetch("chart", "ok")
	return &chart, nil
}

// FetchSolution retrieves and validates a solution blob.
func (g *GatewayClient) FetchSolution(ctx context.Context, cid string) (*domain.Solution, error) {
	var sol domain.Solution
	if err := g.fetch(ctx, "solution", cid, &sol); err != nil {
		return nil, err
	}
	if err := sol.Validate(); err != nil {
		observability.RecordContentFetch("solution", "invalid")
		return nil, fmt.Errorf("%w: %s: %v", ErrBadContent, cid, err)
	}
	observability.RecordContentFetch("solution", "ok")
	return &sol, nil
}

func (g *GatewayClient) fetch(ctx context.Context, kind, cid string, out interface{}) error {
	if cid == "" || strings.ContainsAny(cid, "/?#") {
		observability.RecordContentFetch(kind, "invalid")
		return fmt.Errorf("%w: invalid cid %q", ErrBadContent, cid)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.gateway+"/"+cid, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		observability.RecordContentFetch(kind, "error")
		return fmt.Errorf("fetch %s %s: %w", kind, cid, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		observability.RecordContentFetch(kind, "not_found")
		return fmt.Errorf("%w: %s", ErrNotFound, cid)
	case resp.StatusCode != http.StatusOK:
		observability.RecordContentFetch(kind, "error")
		return fmt.Errorf("fetch %s %s: unexpected status %d", kind, cid, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBytes+1))
	if err != nil {
		observability.RecordContentFetch(kind, "error")
		return fmt.Errorf("read %s %s: %w", kind, cid, err)
	}
	if int64(len(body)) > g.maxBytes {
		observability.RecordContentFetch(kind, "invalid")
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrBadContent, cid, g.maxBytes)
	}
	if err := json.Unmarshal(body, out); err != nil {
		observability.RecordContentFetch(kind, "invalid")
		return fmt.Errorf("%w: %s: %v", ErrBadContent, cid, err)
	}
	return nil
}

var _ Fetcher = (*GatewayClient)(nil)
