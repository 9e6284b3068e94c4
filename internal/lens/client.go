package lens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sammcj/mcp-lens/internal/cache"
	"github.com/sammcj/mcp-lens/internal/telemetry"
	"github.com/sammcj/mcp-lens/internal/utils/httpclient"
	"github.com/sirupsen/logrus"
)

// maxBodySize caps how much of any response is read
const maxBodySize = 20 * 1024 * 1024

// Client performs reverse image searches against Lens
type Client struct {
	logger     *logrus.Logger
	rawBaseURL string
	baseURL    *url.URL
	userAgent  string
	headers    http.Header
	httpClient *http.Client
	rateLimit  float64
	rateBurst  int
	cacheTTL   time.Duration

	// doer follows redirects, uploadDoer stops at the first response
	doer       httpclient.Doer
	uploadDoer httpclient.Doer
	results    *cache.Cache[*SearchResult]
}

// NewClient creates a Client. Without WithHTTPClient it builds a proxy-aware client
// with DefaultTimeout.
func NewClient(logger *logrus.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	c := &Client{
		logger:     logger,
		rawBaseURL: DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}

	base, err := url.Parse(strings.TrimRight(c.rawBaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		logger.WithField("base_url", c.rawBaseURL).Warn("Invalid Lens base URL, using default")
		base, _ = url.Parse(DefaultBaseURL)
	}
	c.baseURL = base

	if c.httpClient == nil {
		c.httpClient = httpclient.NewHTTPClientWithProxyAndLogger(DefaultTimeout, logger)
	}
	noRedirect := *c.httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	c.doer = c.httpClient
	c.uploadDoer = &noRedirect
	if c.rateLimit > 0 {
		limited := httpclient.NewRateLimitedClient(c.httpClient, c.rateLimit, c.rateBurst)
		c.doer = limited
		c.uploadDoer = limited.Wrap(&noRedirect)
	}

	if c.cacheTTL > 0 {
		c.results = cache.NewCache[*SearchResult](c.cacheTTL)
	}

	return c
}

// BaseURL returns the resolved Lens base URL
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SearchByFile uploads the image at path and parses the results page
func (c *Client) SearchByFile(ctx context.Context, path string) (*SearchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return c.SearchByImage(ctx, filepath.Base(path), data)
}

// SearchByImage uploads in-memory image bytes under filename and parses the results page
func (c *Client) SearchByImage(ctx context.Context, filename string, data []byte) (*SearchResult, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Message: "image data is empty"}
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, &ValidationError{Message: fmt.Sprintf("unsupported file type %s, expected an image", mtype.String())}
	}

	sum := sha256.Sum256(data)
	cacheKey := "file:" + hex.EncodeToString(sum[:])

	log := c.logger.WithFields(logrus.Fields{
		"search_id": uuid.NewString(),
		"mode":      "file",
		"filename":  filename,
		"mime_type": mtype.String(),
		"size":      len(data),
	})

	return c.search(ctx, log, "file", filename, cacheKey, func(ctx context.Context) (*SearchResult, error) {
		return c.upload(ctx, log, filename, mtype.String(), data)
	})
}

// SearchByURL asks Lens to fetch imageURL itself and parses the results page
func (c *Client) SearchByURL(ctx context.Context, imageURL string) (*SearchResult, error) {
	if err := validateImageURL(imageURL); err != nil {
		return nil, err
	}

	log := c.logger.WithFields(logrus.Fields{
		"search_id": uuid.NewString(),
		"mode":      "url",
		"image_url": telemetry.SanitiseURL(imageURL),
	})

	return c.search(ctx, log, "url", imageURL, "url:"+imageURL, func(ctx context.Context) (*SearchResult, error) {
		target := c.endpoint("/uploadbyurl", url.Values{"url": {imageURL}})
		return c.fetchResults(ctx, log, "uploadbyurl", target)
	})
}

// search wraps one search in the result cache, a span and completion logging
func (c *Client) search(ctx context.Context, log *logrus.Entry, mode, target, cacheKey string, run func(context.Context) (*SearchResult, error)) (*SearchResult, error) {
	if c.results != nil {
		if cached, ok := c.results.Get(cacheKey); ok {
			log.Debug("Lens search served from cache")
			return cached.clone(), nil
		}
	}

	ctx, span := telemetry.StartSearchSpan(ctx, mode, target)
	start := time.Now()

	result, err := run(ctx)

	similar := 0
	if result != nil {
		similar = len(result.Similar)
	}
	telemetry.EndSearchSpan(span, result != nil && result.Match != nil, similar, err)

	if err != nil {
		log.WithError(err).Debug("Lens search failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"match_found":   result.Match != nil,
		"similar_count": similar,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Lens search completed")

	if c.results != nil {
		c.results.Set(cacheKey, result.clone())
	}
	return result, nil
}

// fetchResults GETs a results page, following redirects, and parses it
func (c *Client) fetchResults(ctx context.Context, log *logrus.Entry, op, target string) (*SearchResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch results page: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Failed to close response body")
		}
	}()

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status": resp.StatusCode,
		"bytes":  len(body),
		"url":    telemetry.SanitiseURL(resp.Request.URL.String()),
	}).Debug("Received results page")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newUploadError(op, resp.StatusCode, body)
	}

	return ParsePage(body)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func validateImageURL(imageURL string) error {
	u, err := url.Parse(imageURL)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("invalid image URL: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Message: "image URL must use http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Message: "image URL must be absolute"}
	}
	return nil
}
