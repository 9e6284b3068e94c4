// Package cli runs reverse image searches from the command line, bypassing the
// MCP server entirely. Tools are invoked in-process via the registry, so no
// server or network round-trip to an MCP client is needed.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-lens/internal/lens"
	"github.com/sammcj/mcp-lens/internal/registry"
	"github.com/sammcj/mcp-lens/internal/tools"
	"github.com/sammcj/mcp-lens/internal/tools/reverseimage"
	"github.com/sirupsen/logrus"
)

// OutputFormat controls how results are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates an --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use text or json)", s)
	}
}

// SearchRequest describes one search; exactly one of ImageURL and FilePath is set.
type SearchRequest struct {
	ImageURL string
	FilePath string
	Retries  int
}

// Runner executes CLI commands against the tool registry.
type Runner struct {
	logger *logrus.Logger
	cache  *sync.Map
	output OutputFormat
	out    io.Writer
}

// NewRunner creates a Runner that writes to stdout.
func NewRunner(logger *logrus.Logger, cache *sync.Map, output OutputFormat) *Runner {
	return &Runner{logger: logger, cache: cache, output: output, out: os.Stdout}
}

// SetOutput redirects rendered output.
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// Search runs the reverse image search tool and renders its result.
func (r *Runner) Search(ctx context.Context, req SearchRequest) error {
	tool, ok := registry.GetTool(reverseimage.ToolName)
	if !ok {
		return fmt.Errorf("tool %s is not available (check DISABLED_TOOLS)", reverseimage.ToolName)
	}

	args := map[string]any{"retries": req.Retries}
	if req.ImageURL != "" {
		args["image_url"] = req.ImageURL
	}
	if req.FilePath != "" {
		args["file_path"] = req.FilePath
	}

	result, err := tool.Execute(ctx, r.logger, r.cache, args)
	if err != nil {
		return err
	}

	text, err := resultText(result)
	if err != nil {
		return err
	}

	if r.output == OutputJSON {
		_, err := fmt.Fprintln(r.out, text)
		return err
	}

	var sr lens.SearchResult
	if err := json.Unmarshal([]byte(text), &sr); err != nil {
		return fmt.Errorf("failed to decode search result: %w", err)
	}
	return r.renderSearch(&sr)
}

func (r *Runner) renderSearch(sr *lens.SearchResult) error {
	heading := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Fprintln(r.out, heading("Match"))
	if sr.Match == nil {
		fmt.Fprintln(r.out, faint("  No direct match"))
	} else {
		fmt.Fprintf(r.out, "  %s\n", color.New(color.Bold).Sprint(sr.Match.Title))
		fmt.Fprintf(r.out, "  Page:      %s\n", sr.Match.PageURL)
		fmt.Fprintf(r.out, "  Thumbnail: %s\n", sr.Match.Thumbnail)
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, heading(fmt.Sprintf("Similar (%d)", len(sr.Similar))))
	if len(sr.Similar) == 0 {
		fmt.Fprintln(r.out, faint("  No similar images"))
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  #\tSCORE\tTITLE\tSOURCE\tPRICE\tURL")
	for i, item := range sr.Similar {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			strconv.FormatFloat(item.SimilarityScore, 'g', 4, 64),
			truncate(item.Title, 48),
			item.SourceWebsite,
			formatPrice(item),
			item.PageURL,
		)
	}
	return w.Flush()
}

// ListTools prints all enabled tools with their descriptions.
func (r *Runner) ListTools() error {
	names := registry.GetEnabledToolNames()

	type entry struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	entries := make([]entry, 0, len(names))
	for _, name := range names {
		tool, _ := registry.GetTool(name)
		entries = append(entries, entry{Name: name, Description: firstLine(tool.Definition().Description)})
	}

	if r.output == OutputJSON {
		return writeJSON(r.out, entries)
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Name, e.Description)
	}
	return w.Flush()
}

// HelpTool prints the parameters and extended help for a single tool.
func (r *Runner) HelpTool(name string) error {
	tool, ok := registry.GetTool(strings.ReplaceAll(name, "-", "_"))
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}

	def := tool.Definition()
	var extended *tools.ExtendedHelp
	if p, ok := tool.(tools.ExtendedHelpProvider); ok {
		extended = p.ProvideExtendedInfo()
	}

	if r.output == OutputJSON {
		return writeJSON(r.out, map[string]any{"tool": def, "extended_help": extended})
	}

	fmt.Fprintf(r.out, "Tool: %s\n\n%s\n\n", def.Name, def.Description)

	props := def.InputSchema.Properties
	if len(props) > 0 {
		fmt.Fprintln(r.out, "Parameters:")
		names := make([]string, 0, len(props))
		for k := range props {
			names = append(names, k)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
		for _, pName := range names {
			pMap, _ := props[pName].(map[string]any)
			pType, _ := pMap["type"].(string)
			pDesc, _ := pMap["description"].(string)
			fmt.Fprintf(w, "  %s\t%s\t%s\n", pName, pType, firstLine(pDesc))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if extended != nil {
		if extended.WhenToUse != "" {
			fmt.Fprintf(r.out, "\nWhen to use: %s\n", extended.WhenToUse)
		}
		for _, tip := range extended.Troubleshooting {
			fmt.Fprintf(r.out, "\n%s\n  %s\n", tip.Problem, tip.Solution)
		}
	}
	return nil
}

// resultText returns the text content of a tool result
func resultText(result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("tool returned no result")
	}
	for _, content := range result.Content {
		if c, ok := content.(mcp.TextContent); ok {
			if result.IsError {
				return "", fmt.Errorf("tool returned an error: %s", c.Text)
			}
			return c.Text, nil
		}
	}
	return "", fmt.Errorf("tool returned no text content")
}

// --- helpers ---

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	if before, _, found := strings.Cut(s, "\n"); found {
		return before
	}
	return s
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func formatPrice(item lens.SimilarItem) string {
	switch {
	case item.Price == "":
		return "-"
	case item.Currency == "":
		return item.Price
	default:
		return item.Price + " " + item.Currency
	}
}
