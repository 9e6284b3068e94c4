package reverseimage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-lens/internal/config"
	"github.com/sammcj/mcp-lens/internal/lens"
	"github.com/sammcj/mcp-lens/internal/registry"
	"github.com/sammcj/mcp-lens/internal/tools"
	"github.com/sammcj/mcp-lens/internal/utils/retry"
	"github.com/sirupsen/logrus"
)

const (
	// ToolName is the MCP name of the tool
	ToolName = "reverse_image_search"

	// MaxRetries bounds the retries argument
	MaxRetries = 5
)

// Searcher runs reverse image searches; *lens.Client satisfies it
type Searcher interface {
	SearchByFile(ctx context.Context, path string) (*lens.SearchResult, error)
	SearchByURL(ctx context.Context, imageURL string) (*lens.SearchResult, error)
}

// ReverseImageTool implements the tools.Tool interface for Lens reverse image search
type ReverseImageTool struct {
	once      sync.Once
	searcher  Searcher
	clientErr error

	// newSearcher builds the searcher on first use
	newSearcher func(logger *logrus.Logger) (Searcher, error)
}

// init registers the tool with the registry
func init() {
	registry.Register(New())
}

// New creates the tool with a lens client built from the loaded configuration
func New() *ReverseImageTool {
	return &ReverseImageTool{newSearcher: searcherFromConfig}
}

// NewWithSearcher creates the tool around an existing searcher
func NewWithSearcher(s Searcher) *ReverseImageTool {
	return &ReverseImageTool{newSearcher: func(*logrus.Logger) (Searcher, error) { return s, nil }}
}

func searcherFromConfig(logger *logrus.Logger) (Searcher, error) {
	cfg, err := config.Load(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load lens configuration: %w", err)
	}
	return config.NewLensClient(cfg, logger), nil
}

// Definition returns the tool's definition for MCP registration
func (t *ReverseImageTool) Definition() mcp.Tool {
	return mcp.NewTool(
		ToolName,
		mcp.WithDescription("Reverse image search using Google Lens. Provide exactly one of image_url or file_path. Returns the direct match (if any) and visually similar images with their source pages, prices and currencies where available."),
		mcp.WithString("image_url",
			mcp.Description("Absolute http(s) URL of an image for Lens to fetch"),
		),
		mcp.WithString("file_path",
			mcp.Description("Path to a local image file to upload"),
		),
		mcp.WithNumber("retries",
			mcp.Description("Retries for transient failures such as rate limiting or server errors (0-5, default 0)"),
			mcp.DefaultNumber(0),
			mcp.Min(0),
			mcp.Max(MaxRetries),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

// request holds validated tool arguments
type request struct {
	imageURL string
	filePath string
	retries  int
}

// Execute runs the search and returns the result as indented JSON
func (t *ReverseImageTool) Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	req, err := parseRequest(args)
	if err != nil {
		return nil, err
	}

	searcher, err := t.getSearcher(logger)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"by_url":  req.imageURL != "",
		"retries": req.retries,
	}).Info("Executing reverse image search")

	var result *lens.SearchResult
	err = retry.Do(ctx, retry.DefaultOptions(req.retries), logger, func(ctx context.Context) error {
		var searchErr error
		if req.imageURL != "" {
			result, searchErr = searcher.SearchByURL(ctx, req.imageURL)
		} else {
			result, searchErr = searcher.SearchByFile(ctx, req.filePath)
		}
		return searchErr
	})
	if err != nil {
		return nil, fmt.Errorf("reverse image search failed: %w", err)
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (t *ReverseImageTool) getSearcher(logger *logrus.Logger) (Searcher, error) {
	t.once.Do(func() {
		t.searcher, t.clientErr = t.newSearcher(logger)
	})
	return t.searcher, t.clientErr
}

func parseRequest(args map[string]any) (request, error) {
	var req request

	imageURL, err := optionalString(args, "image_url")
	if err != nil {
		return req, err
	}
	filePath, err := optionalString(args, "file_path")
	if err != nil {
		return req, err
	}

	switch {
	case imageURL != "" && filePath != "":
		return req, fmt.Errorf("provide either 'image_url' or 'file_path', not both")
	case imageURL == "" && filePath == "":
		return req, fmt.Errorf("either 'image_url' or 'file_path' parameter is required")
	}
	req.imageURL = imageURL
	req.filePath = expandHome(filePath)

	if raw, ok := args["retries"]; ok && raw != nil {
		n, err := toInt(raw)
		if err != nil {
			return req, fmt.Errorf("retries must be a number")
		}
		if n < 0 || n > MaxRetries {
			return req, fmt.Errorf("retries must be between 0 and %d", MaxRetries)
		}
		req.retries = n
	}
	return req, nil
}

func optionalString(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return strings.TrimSpace(s), nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not a whole number")
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func expandHome(path string) string {
	if path == "" || !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// ProvideExtendedInfo implements the ExtendedHelpProvider interface
func (t *ReverseImageTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		WhenToUse:    "Use to identify what an image shows, find where an image appears online, or locate visually similar products and their prices.",
		WhenNotToUse: "Don't use for text search or for images that must not leave the machine; file uploads are sent to Google.",
		Examples: []tools.ToolExample{
			{
				Description:    "Search by a public image URL",
				Arguments:      map[string]any{"image_url": "https://example.com/photo.jpg"},
				ExpectedResult: `{"match": {"title": "...", "thumbnail": "...", "pageURL": "..."}, "similar": [...]}`,
			},
			{
				Description: "Upload a local file and retry transient failures",
				Arguments:   map[string]any{"file_path": "~/Pictures/shoe.png", "retries": 2},
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "failed to extract payload",
				Solution: "The results page format changed or a consent page was returned. Retrying will not help; check LENS_USER_AGENT and LENS_BASE_URL.",
			},
			{
				Problem:  "lens upload failed: status 429",
				Solution: "Rate limited. Pass retries, or set LENS_RATE_LIMIT to space out requests.",
			},
		},
	}
}
