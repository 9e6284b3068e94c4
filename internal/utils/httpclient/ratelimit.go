package httpclient

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// Doer is the subset of *http.Client used by the lens client
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RateLimitedClient waits on a token bucket before each request
type RateLimitedClient struct {
	client  Doer
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps client with a limiter allowing requestsPerSecond
// with the given burst. A non-positive rate disables limiting.
func NewRateLimitedClient(client Doer, requestsPerSecond float64, burst int) *RateLimitedClient {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Wrap returns a client for another Doer that draws from the same limiter
func (c *RateLimitedClient) Wrap(client Doer) *RateLimitedClient {
	return &RateLimitedClient{client: client, limiter: c.limiter}
}

// Do blocks until the limiter admits the request or the request context ends
func (c *RateLimitedClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return c.client.Do(req)
}
