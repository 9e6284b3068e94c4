package telemetry

// Attribute names for lens search and MCP tool spans

const (
	// Search attributes
	AttrSearchMode         = "lens.search.mode"          // "file" or "url"
	AttrSearchTarget       = "lens.search.target"        // Sanitised image URL or file base name
	AttrSearchMatchFound   = "lens.search.match_found"   // Whether a direct match was returned
	AttrSearchSimilarCount = "lens.search.similar_count" // Number of similar items
	AttrSearchError        = "lens.search.error"         // Error message if failed

	// MCP Tool attributes
	AttrMCPToolName    = "mcp.tool.name"
	AttrMCPToolSuccess = "mcp.tool.result.success"
	AttrMCPToolError   = "mcp.tool.result.error"
)

// Span names
const (
	SpanNameSearch      = "lens.search"
	SpanNameToolExecute = "mcp.tool.execute"
)
