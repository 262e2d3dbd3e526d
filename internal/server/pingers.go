package server

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// EndpointPinger probes an HTTP endpoint with a GET request. Any response
// below 500 counts as reachable — a 404 from an embedding server's base URL
// still proves the process is up. It satisfies the Pinger interface and is
// used by GET /api/ready for the embedding and rerank backends.
type EndpointPinger struct {
	// url is the endpoint to probe.
	url string
	// name identifies the backend in readiness responses (e.g. "embedder").
	name string
	// client is the HTTP client used for probes.
	client *http.Client
}

// NewEndpointPinger constructs an EndpointPinger for the given URL and label.
func NewEndpointPinger(url, name string) *EndpointPinger {
	return &EndpointPinger{
		url:    url,
		name:   name,
		client: &http.Client{Timeout: probeTimeout},
	}
}

// Name returns the backend label used in readiness responses.
func (p *EndpointPinger) Name() string { return p.name }

// Ping issues a GET to the endpoint and reports reachability.
func (p *EndpointPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

// storePinger adapts a vector store that exposes Ping/Name (the Qdrant and
// in-memory stores both do) into the Pinger interface.
type storePinger interface {
	Ping(ctx context.Context) error
	Name() string
}

// NewStorePinger wraps a vector store's own health probe as a Pinger.
func NewStorePinger(store storePinger) Pinger { return storeProbe{store} }

type storeProbe struct{ s storePinger }

func (p storeProbe) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	return p.s.Ping(ctx)
}

func (p storeProbe) Name() string { return p.s.Name() }
