package mcp

import (
	"os"
	"path/filepath"
	"strings"
)

// NavigationHint is the advice given to agents working in a Python project
// when scip_* tools are available.
const NavigationHint = "For this Python project, prefer the scip_* tools for code navigation and structure: " +
	"use scip_find_definition, scip_find_references, scip_list_symbols, scip_search_symbols, and scip_project_tree " +
	"instead of ad-hoc text search or manual file scanning."

// SessionHint returns NavigationHint when cwd looks like a Python project and
// at least one of toolNames is a scip_* tool.
func SessionHint(cwd string, toolNames []string) (string, bool) {
	if !isPythonProject(cwd) || !hasScipTool(toolNames) {
		return "", false
	}
	return NavigationHint, true
}

func hasScipTool(names []string) bool {
	for _, n := range names {
		if strings.HasPrefix(n, "scip_") {
			return true
		}
	}
	return false
}

// isPythonProject checks for packaging files, then shallowly for .py files in
// src/ and the root. Unreadable directories count as "no".
func isPythonProject(cwd string) bool {
	for _, marker := range []string{"pyproject.toml", "setup.py"} {
		if _, err := os.Stat(filepath.Join(cwd, marker)); err == nil {
			return true
		}
	}
	return dirHasPython(filepath.Join(cwd, "src")) || dirHasPython(cwd)
}

func dirHasPython(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".py") {
			return true
		}
	}
	return false
}
