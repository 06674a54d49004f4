package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// MaxHistoryLimit caps scip_history results.
const MaxHistoryLimit = 100

// indexTool returns the tool definition for scip_index
func indexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "scip_index",
		Description: "Generate a SCIP index for a Python or TypeScript/JavaScript project at <path>/.scip/index.scip",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
				"incremental": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, skip the run when the index is newer than every source file",
					"default":     true,
				},
				"allow_install": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, install a missing language indexer globally with npm",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// statusTool returns the tool definition for scip_status
func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "scip_status",
		Description: "Report whether a project's SCIP index exists, is fresh, and matches the last successful run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
			},
			Required: []string{"path"},
		},
	}
}

// historyTool returns the tool definition for scip_history
func historyTool() mcp.Tool {
	return mcp.Tool{
		Name:        "scip_history",
		Description: "List recent indexing runs for a project, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of runs to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     MaxHistoryLimit,
				},
				"include_events": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include the lifecycle events of each run",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

func navigationHintPrompt() mcp.Prompt {
	return mcp.NewPrompt("scip_navigation_hint",
		mcp.WithPromptDescription("Advice on using scip_* tools for code navigation in a Python project"),
		mcp.WithArgument("path",
			mcp.ArgumentDescription("Absolute path to the project root"),
			mcp.RequiredArgument(),
		),
	)
}
