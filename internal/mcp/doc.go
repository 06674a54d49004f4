// Package mcp implements the Model Context Protocol (MCP) server for scip-indexer.
//
// The MCP server exposes three tools to AI coding assistants:
//   - scip_index: Generate or refresh <path>/.scip/index.scip
//   - scip_status: Check freshness of the index and its run history
//   - scip_history: List recent indexing runs
//
// and one prompt, scip_navigation_hint, which tells an agent working in a
// Python project to use scip_* navigation tools instead of text search.
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// stdout carries protocol messages only; diagnostics go to stderr.
//
// # Basic Usage
//
//	scipindexer serve
//
// # Tool: scip_index
//
//	Request:
//	{
//	  "name": "scip_index",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "incremental": true,
//	    "allow_install": false
//	  }
//	}
//
//	Response:
//	{
//	  "run_id": "5b0c...",
//	  "skipped": false,
//	  "adapters": ["python"],
//	  "index_path": "/path/to/project/.scip/index.scip",
//	  "backup_path": "/path/to/project/.scip/index.scip.bak",
//	  "checksum": "9f2c4e0d1a7b3c55",
//	  "duration_ms": 5120
//	}
//
// With incremental=true (the default) the run is skipped when the index is
// newer than every source file. A missing indexer is installed only when
// allow_install is true; otherwise the call fails with ErrorCodeInstallDeclined.
// A second call for the same root while one is running fails with
// ErrorCodeIndexingInProgress.
//
// # Tool: scip_status
//
// Reports index_exists and needs_reindex. When history is enabled it adds run
// counts, the last run, success and failure, and whether the artifact on disk
// still has the checksum recorded by the last successful run
// (checksum_matches).
//
// # Tool: scip_history
//
// Returns up to limit runs (default 10, max 100), newest first, optionally
// with their lifecycle events. Fails with ErrorCodeHistoryDisabled when the
// server has no store.
//
// # Error Codes
//
//	-32602  Invalid parameters
//	-32603  Internal error
//	-32001  No supported language detected
//	-32002  Indexing already in progress for this root
//	-32003  No recorded runs
//	-32004  Indexer missing and installation not allowed
//	-32005  History disabled
package mcp
