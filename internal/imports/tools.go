package imports

import (
	// Tool packages register themselves with the registry in init
	_ "github.com/sammcj/mcp-lens/internal/tools/reverseimage"
)
