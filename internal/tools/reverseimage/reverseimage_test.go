package reverseimage

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-lens/internal/lens"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	mu       sync.Mutex
	calls    int
	lastURL  string
	lastPath string
	errs     []error
	result   *lens.SearchResult
}

func (f *fakeSearcher) next() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeSearcher) SearchByFile(_ context.Context, path string) (*lens.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPath = path
	if err := f.next(); err != nil {
		return nil, err
	}
	return f.result, nil
}

func (f *fakeSearcher) SearchByURL(_ context.Context, imageURL string) (*lens.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastURL = imageURL
	if err := f.next(); err != nil {
		return nil, err
	}
	return f.result, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func sampleResult() *lens.SearchResult {
	return &lens.SearchResult{
		Match: &lens.MatchItem{Title: "Sydney Opera House", Thumbnail: "https://img/t.jpg", PageURL: "https://example.com/soh"},
		Similar: []lens.SimilarItem{
			{Title: "Harbour", SimilarityScore: 0.8, PageURL: "https://p/1", SourceWebsite: "p", Price: "12.00", Currency: "AUD"},
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestDefinition(t *testing.T) {
	def := New().Definition()
	assert.Equal(t, ToolName, def.Name)
	assert.Contains(t, def.InputSchema.Properties, "image_url")
	assert.Contains(t, def.InputSchema.Properties, "file_path")
	assert.Contains(t, def.InputSchema.Properties, "retries")
	assert.Empty(t, def.InputSchema.Required)
}

func TestExecute_ByURL(t *testing.T) {
	fake := &fakeSearcher{result: sampleResult()}
	tool := NewWithSearcher(fake)

	result, err := tool.Execute(context.Background(), testLogger(), &sync.Map{}, map[string]any{
		"image_url": "https://images.example/opera.jpg",
	})
	require.NoError(t, err)

	var decoded lens.SearchResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	assert.Equal(t, *sampleResult(), decoded)
	assert.Equal(t, "https://images.example/opera.jpg", fake.lastURL)
	assert.Equal(t, 1, fake.calls)
}

func TestExecute_ByFile(t *testing.T) {
	fake := &fakeSearcher{result: &lens.SearchResult{Similar: []lens.SimilarItem{}}}
	tool := NewWithSearcher(fake)

	result, err := tool.Execute(context.Background(), testLogger(), &sync.Map{}, map[string]any{
		"file_path": "/tmp/photo.png",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"match": null, "similar": []}`, resultText(t, result))
	assert.Equal(t, "/tmp/photo.png", fake.lastPath)
}

func TestExecute_ArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		msg  string
	}{
		{"neither", map[string]any{}, "either 'image_url' or 'file_path'"},
		{"both", map[string]any{"image_url": "https://x/y.jpg", "file_path": "/tmp/y.jpg"}, "not both"},
		{"blank", map[string]any{"image_url": "   "}, "either 'image_url' or 'file_path'"},
		{"wrong type", map[string]any{"image_url": 42}, "image_url must be a string"},
		{"retries too high", map[string]any{"image_url": "https://x/y.jpg", "retries": float64(9)}, "between 0 and 5"},
		{"retries fractional", map[string]any{"image_url": "https://x/y.jpg", "retries": 1.5}, "retries must be a number"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeSearcher{result: sampleResult()}
			_, err := NewWithSearcher(fake).Execute(context.Background(), testLogger(), &sync.Map{}, tc.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
			assert.Zero(t, fake.calls)
		})
	}
}

func TestExecute_RetriesNonRetryableOnce(t *testing.T) {
	fake := &fakeSearcher{errs: []error{&lens.ExtractionError{Reason: "no script"}}}

	_, err := NewWithSearcher(fake).Execute(context.Background(), testLogger(), &sync.Map{}, map[string]any{
		"image_url": "https://x/y.jpg",
		"retries":   float64(3),
	})
	require.Error(t, err)
	assert.True(t, lens.IsExtractionError(err))
	assert.Equal(t, 1, fake.calls)
}

func TestExecute_SearcherBuiltOnce(t *testing.T) {
	builds := 0
	fake := &fakeSearcher{result: sampleResult()}
	tool := &ReverseImageTool{newSearcher: func(*logrus.Logger) (Searcher, error) {
		builds++
		return fake, nil
	}}

	for range 3 {
		_, err := tool.Execute(context.Background(), testLogger(), &sync.Map{}, map[string]any{"image_url": "https://x/y.jpg"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, builds)
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, "/home/tester/img.png", expandHome("~/img.png"))
	assert.Equal(t, "/abs/img.png", expandHome("/abs/img.png"))
	assert.Equal(t, "", expandHome(""))
}
