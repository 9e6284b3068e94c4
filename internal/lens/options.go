package lens

import (
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is the public Lens endpoint
	DefaultBaseURL = "https://lens.google.com"
	// DefaultUserAgent is a desktop browser string; other agents get a stripped page
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:103.0) Gecko/20100101 Firefox/103.0"
	// DefaultTimeout applies to the HTTP client built when none is supplied
	DefaultTimeout = 30 * time.Second
)

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at a different Lens host
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.rawBaseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for all requests. Its redirect policy
// is used for results pages; uploads always stop at the first response.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithUserAgent overrides the user agent sent on every request
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithHeader adds a header sent on every request
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithRateLimit limits outgoing requests to perSecond with the given burst.
// A non-positive rate leaves requests unlimited.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.rateLimit = perSecond
		c.rateBurst = burst
	}
}

// WithResultCache keeps search results for ttl. File searches are keyed by image
// content, URL searches by the image URL.
func WithResultCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}
