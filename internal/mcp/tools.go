package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/scip-indexer/internal/indexer"
	"github.com/dshills/scip-indexer/internal/languages"
	"github.com/dshills/scip-indexer/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // No supported language detected at path
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Project has no index or no run history
	ErrorCodeInstallDeclined    = -32004 // Indexer missing and installation not allowed
	ErrorCodeHistoryDisabled    = -32005 // Server runs without a history store
)

// progressTail is how many progress lines a failed scip_index reports.
const progressTail = 20

// handleIndex handles the scip_index tool invocation
func (s *Server) handleIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}

	incremental := getBoolDefault(args, "incremental", true)
	allowInstall := getBoolDefault(args, "allow_install", false)

	if !s.locks.TryAcquire(root) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"path": root,
		})
	}
	defer s.locks.Release(root)

	idx, err := s.newIndexer(root, true)
	if err != nil {
		return nil, err
	}

	progress := &lineTail{max: progressTail}
	result, err := idx.GenerateIndex(ctx, indexer.GenerateOptions{
		Incremental: incremental,
		OnProgress:  progress.add,
		ConfirmInstall: func(context.Context, string) (bool, error) {
			return allowInstall, nil
		},
	})
	if err != nil {
		data := map[string]interface{}{
			"error":    err.Error(),
			"progress": progress.lines(),
		}
		switch {
		case errors.Is(err, indexer.ErrNoLanguageDetected):
			return nil, newMCPError(ErrorCodeProjectNotFound, "no supported language detected", data)
		case errors.Is(err, languages.ErrInstallCancelled):
			return nil, newMCPError(ErrorCodeInstallDeclined, "indexer is not installed; retry with allow_install=true", data)
		}
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", data)
	}

	response := map[string]interface{}{
		"run_id":      result.RunID,
		"skipped":     result.Skipped,
		"index_path":  result.IndexPath,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if !result.Skipped {
		response["adapters"] = result.Adapters
		response["checksum"] = result.Checksum
		if result.BackupPath != "" {
			response["backup_path"] = result.BackupPath
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleStatus handles the scip_status tool invocation
func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}

	idx, err := s.newIndexer(root, false)
	if err != nil {
		return nil, err
	}

	exists := idx.IndexExists()
	response := map[string]interface{}{
		"project_root":    idx.Root(),
		"index_path":      idx.IndexPath(),
		"index_exists":    exists,
		"needs_reindex":   idx.NeedsReindex(),
		"history_enabled": s.store != nil,
	}
	if s.store == nil {
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	status, err := s.store.GetStatus(ctx, idx.Root())
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response["history"] = map[string]interface{}{
		"total_runs":      status.TotalRuns,
		"complete_runs":   status.CompleteRuns,
		"failed_runs":     status.FailedRuns,
		"skipped_runs":    status.SkippedRuns,
		"last_run":        runJSON(status.LastRun),
		"last_successful": runJSON(status.LastSuccessful),
		"last_failed":     runJSON(status.LastFailed),
	}

	// Only meaningful when there is both an artifact and a recorded fingerprint.
	if exists && status.LastSuccessful != nil && status.LastSuccessful.Checksum != "" {
		sum, err := indexer.Fingerprint(idx.IndexPath())
		if err == nil {
			response["checksum"] = sum
			response["checksum_matches"] = sum == status.LastSuccessful.Checksum
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleHistory handles the scip_history tool invocation
func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}

	if s.store == nil {
		return nil, newMCPError(ErrorCodeHistoryDisabled, "run history is disabled", nil)
	}

	limit := getIntDefault(args, "limit", storage.DefaultListLimit)
	if limit < 1 || limit > MaxHistoryLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param":  "limit",
			"reason": fmt.Sprintf("got %d", limit),
		})
	}
	includeEvents := getBoolDefault(args, "include_events", false)

	runs, err := s.store.ListRuns(ctx, root, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list runs", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if len(runs) == 0 {
		return nil, newMCPError(ErrorCodeNotIndexed, "project has no recorded runs", map[string]interface{}{
			"path": root,
		})
	}

	items := make([]map[string]interface{}, 0, len(runs))
	for _, r := range runs {
		item := runJSON(r)
		if includeEvents {
			events, err := s.store.ListEvents(ctx, r.ID)
			if err != nil {
				return nil, newMCPError(ErrorCodeInternalError, "failed to list events", map[string]interface{}{
					"run_id": r.ID,
					"error":  err.Error(),
				})
			}
			item["events"] = eventsJSON(events)
		}
		items = append(items, item)
	}

	response := map[string]interface{}{
		"project_root": root,
		"runs":         items,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleNavigationHint handles the scip_navigation_hint prompt
func (s *Server) handleNavigationHint(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	path := request.Params.Arguments["path"]
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	text, ok := SessionHint(path, s.toolNames)
	if !ok {
		text = "No navigation hint applies to " + path + "."
	}
	return mcp.NewGetPromptResult(
		"SCIP navigation hint",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		},
	), nil
}

// newIndexer builds an indexer from the project's configuration. Only runs
// that generate an index report to the event sinks.
func (s *Server) newIndexer(root string, withEvents bool) (*indexer.Indexer, error) {
	cfg, err := s.loadConfig(root)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid project configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}
	var events = s.events
	if !withEvents {
		events = nil
	}
	idx, err := indexer.NewFromConfig(root, cfg, events, s.runner)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to create indexer", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return idx, nil
}

// Helper functions

// projectArgs extracts the arguments map and the validated, cleaned path.
func projectArgs(request mcp.CallToolRequest) (map[string]interface{}, string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return args, filepath.Clean(path), nil
}

func runJSON(r *storage.Run) map[string]interface{} {
	if r == nil {
		return nil
	}
	out := map[string]interface{}{
		"id":          r.ID,
		"status":      string(r.Status),
		"incremental": r.Incremental,
		"started_at":  r.StartedAt.Format(time.RFC3339),
	}
	if !r.FinishedAt.IsZero() {
		out["finished_at"] = r.FinishedAt.Format(time.RFC3339)
		out["duration_ms"] = r.Duration().Milliseconds()
	}
	if r.Message != "" {
		out["message"] = r.Message
	}
	if r.IndexPath != "" {
		out["index_path"] = r.IndexPath
	}
	if r.Checksum != "" {
		out["checksum"] = r.Checksum
	}
	return out
}

func eventsJSON(events []*storage.Event) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(events))
	for _, e := range events {
		item := map[string]interface{}{
			"time":   e.Time.Format(time.RFC3339Nano),
			"action": e.Action,
		}
		if e.Level != "" {
			item["level"] = e.Level
		}
		if e.Adapter != "" {
			item["adapter"] = e.Adapter
		}
		if e.Message != "" {
			item["message"] = e.Message
		}
		out = append(out, item)
	}
	return out
}

// lineTail keeps the last max progress lines.
type lineTail struct {
	mu  sync.Mutex
	max int
	buf []string
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
}

func (t *lineTail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.buf...)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path exists and is accessible
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
