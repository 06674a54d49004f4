package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dshills/scip-indexer/internal/indexer"
	"github.com/dshills/scip-indexer/internal/mcp"
	"github.com/dshills/scip-indexer/internal/storage"
	"github.com/dshills/scip-indexer/internal/watch"
)

func indexCommand(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	idx, err := indexer.NewFromConfig(e.root, e.cfg, e.logger, nil)
	if err != nil {
		return err
	}

	res, err := idx.GenerateIndex(c.Context, indexer.GenerateOptions{
		Incremental:    c.Bool("incremental"),
		OnProgress:     printProgress,
		ConfirmInstall: newPrompter(c.Bool("yes")).confirm,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("indexing failed: %v", err), 1)
	}

	printResult(c.App.Writer, res)
	return nil
}

// statusReport is the status command's JSON shape.
type statusReport struct {
	ProjectRoot     string       `json:"project_root"`
	IndexPath       string       `json:"index_path"`
	IndexExists     bool         `json:"index_exists"`
	NeedsReindex    bool         `json:"needs_reindex"`
	Checksum        string       `json:"checksum,omitempty"`
	ChecksumMatches *bool        `json:"checksum_matches,omitempty"`
	History         *historyInfo `json:"history,omitempty"`
}

type historyInfo struct {
	TotalRuns      int          `json:"total_runs"`
	CompleteRuns   int          `json:"complete_runs"`
	FailedRuns     int          `json:"failed_runs"`
	SkippedRuns    int          `json:"skipped_runs"`
	LastRun        *storage.Run `json:"last_run,omitempty"`
	LastSuccessful *storage.Run `json:"last_successful,omitempty"`
	LastFailed     *storage.Run `json:"last_failed,omitempty"`
}

func statusCommand(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	idx, err := indexer.NewFromConfig(e.root, e.cfg, nil, nil)
	if err != nil {
		return err
	}

	report := statusReport{
		ProjectRoot:  idx.Root(),
		IndexPath:    idx.IndexPath(),
		IndexExists:  idx.IndexExists(),
		NeedsReindex: idx.NeedsReindex(),
	}

	if e.store != nil {
		status, err := e.store.GetStatus(c.Context, idx.Root())
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		report.History = &historyInfo{
			TotalRuns:      status.TotalRuns,
			CompleteRuns:   status.CompleteRuns,
			FailedRuns:     status.FailedRuns,
			SkippedRuns:    status.SkippedRuns,
			LastRun:        status.LastRun,
			LastSuccessful: status.LastSuccessful,
			LastFailed:     status.LastFailed,
		}
		if report.IndexExists && status.LastSuccessful != nil && status.LastSuccessful.Checksum != "" {
			if sum, err := indexer.Fingerprint(idx.IndexPath()); err == nil {
				matches := sum == status.LastSuccessful.Checksum
				report.Checksum = sum
				report.ChecksumMatches = &matches
			}
		}
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printStatus(c.App.Writer, report)
	return nil
}

func historyCommand(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.store == nil {
		return cli.Exit("run history is disabled", 1)
	}
	limit := c.Int("limit")
	if limit < 1 {
		return cli.Exit("--limit must be at least 1", 1)
	}

	runs, err := e.store.ListRuns(c.Context, e.root, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintf(c.App.Writer, "No runs recorded for %s\n", e.root)
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tMODE\tDURATION\tMESSAGE")
	for _, r := range runs {
		mode := "full"
		if r.Incremental {
			mode = "incremental"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID), r.StartedAt.Local().Format(time.DateTime), r.Status, mode,
			r.Duration().Round(time.Millisecond), firstLine(r.Message))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !c.Bool("events") {
		return nil
	}
	for _, r := range runs {
		events, err := e.store.ListEvents(c.Context, r.ID)
		if err != nil {
			return fmt.Errorf("failed to list events for run %s: %w", r.ID, err)
		}
		fmt.Fprintf(c.App.Writer, "\nRun %s:\n", r.ID)
		for _, ev := range events {
			line := fmt.Sprintf("  %s  %s", ev.Time.Local().Format("15:04:05.000"), ev.Action)
			if ev.Adapter != "" {
				line += " [" + ev.Adapter + "]"
			}
			if ev.Message != "" {
				line += "  " + ev.Message
			}
			fmt.Fprintln(c.App.Writer, line)
		}
	}
	return nil
}

func watchCommand(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	idx, err := indexer.NewFromConfig(e.root, e.cfg, e.logger, nil)
	if err != nil {
		return err
	}
	m, err := e.cfg.Matcher()
	if err != nil {
		return err
	}

	w := watch.New(idx, watch.Options{
		Debounce: e.cfg.Watch.Debounce.Duration,
		Ignore:   m,
		Generate: indexer.GenerateOptions{
			OnProgress:     printProgress,
			ConfirmInstall: newPrompter(c.Bool("yes")).confirm,
		},
		OnRun: func(r watch.Run) {
			if r.Err != nil {
				log.Printf("Index run failed: %v", r.Err)
				return
			}
			printResult(c.App.Writer, r.Result)
		},
	})

	log.Printf("Watching %s (debounce %s)", e.root, e.cfg.Watch.Debounce.Duration)
	return w.Run(c.Context)
}

func serveCommand(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	log.Printf("scip-indexer MCP server v%s starting...", version)
	log.Printf("Build Mode: %s, Driver: %s, History: %v", storage.BuildMode, storage.DriverName, e.store != nil)

	srv, err := mcp.NewServer(mcp.Options{
		Store:  e.store,
		Logger: e.console,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	log.Println("MCP server ready, listening on stdio...")
	if err := srv.Serve(c.Context); err != nil && !errors.Is(err, c.Context.Err()) {
		return fmt.Errorf("server error: %w", err)
	}
	log.Println("Server stopped")
	return nil
}

func hintCommand(c *cli.Context) error {
	root, err := resolveRoot(c)
	if err != nil {
		return err
	}

	tools := c.StringSlice("tool")
	if len(tools) == 0 {
		srv, err := mcp.NewServer(mcp.Options{})
		if err != nil {
			return err
		}
		tools = srv.ToolNames()
	}

	msg, ok := mcp.SessionHint(root, tools)
	if !ok {
		log.Printf("No navigation hint applies to %s", root)
		return nil
	}
	fmt.Fprintln(c.App.Writer, msg)
	return nil
}

func printProgress(message string) {
	fmt.Fprintln(os.Stderr, message)
}

func printResult(w io.Writer, res *indexer.Result) {
	if res == nil {
		return
	}
	if res.Skipped {
		fmt.Fprintf(w, "Index is up to date: %s\n", res.IndexPath)
		return
	}
	fmt.Fprintf(w, "Indexed %s with %s in %s\n", res.IndexPath, strings.Join(res.Adapters, ", "),
		res.Duration.Round(time.Millisecond))
	if res.Checksum != "" {
		fmt.Fprintf(w, "  checksum: %s\n", res.Checksum)
	}
	if res.BackupPath != "" {
		fmt.Fprintf(w, "  previous index: %s\n", res.BackupPath)
	}
}

func printStatus(w io.Writer, r statusReport) {
	fmt.Fprintf(w, "Project:       %s\n", r.ProjectRoot)
	fmt.Fprintf(w, "Index:         %s\n", r.IndexPath)
	fmt.Fprintf(w, "Index exists:  %v\n", r.IndexExists)
	fmt.Fprintf(w, "Needs reindex: %v\n", r.NeedsReindex)
	if r.ChecksumMatches != nil {
		fmt.Fprintf(w, "Checksum:      %s (matches last successful run: %v)\n", r.Checksum, *r.ChecksumMatches)
	}
	if r.History == nil {
		return
	}
	h := r.History
	fmt.Fprintf(w, "Runs:          %d total, %d complete, %d failed, %d skipped\n",
		h.TotalRuns, h.CompleteRuns, h.FailedRuns, h.SkippedRuns)
	if h.LastSuccessful != nil {
		fmt.Fprintf(w, "Last success:  %s\n", h.LastSuccessful.FinishedAt.Local().Format(time.DateTime))
	}
	if h.LastFailed != nil {
		fmt.Fprintf(w, "Last failure:  %s: %s\n", h.LastFailed.FinishedAt.Local().Format(time.DateTime),
			firstLine(h.LastFailed.Message))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
