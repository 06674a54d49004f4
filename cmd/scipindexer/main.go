package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dshills/scip-indexer/internal/config"
	"github.com/dshills/scip-indexer/internal/logging"
	"github.com/dshills/scip-indexer/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// stdout is reserved for command output and the MCP protocol
	log.SetOutput(os.Stderr)

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("scip-indexer\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "scipindexer",
		Usage:                  "Generate and maintain SCIP code-intelligence indexes for Python and TypeScript projects",
		Version:                version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory",
				Value:   ".",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Run history database (overrides config and " + config.EnvDBPath + ")",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record or read run history",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Lifecycle log level: debug, info, warning, error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Lifecycle log format: json or text",
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "index",
				Aliases: []string{"i"},
				Usage:   "Generate <root>/.scip/index.scip",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "incremental",
						Usage: "Skip when the index is newer than every source file",
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Install missing indexers without asking",
					},
				},
				Action: indexCommand,
			},
			{
				Name:  "status",
				Usage: "Show index freshness and run history summary",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: statusCommand,
			},
			{
				Name:  "history",
				Usage: "List recent indexing runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of runs",
						Value:   storage.DefaultListLimit,
					},
					&cli.BoolFlag{
						Name:  "events",
						Usage: "Include lifecycle events",
					},
				},
				Action: historyCommand,
			},
			{
				Name:  "watch",
				Usage: "Regenerate the index whenever sources change",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Install missing indexers without asking",
					},
				},
				Action: watchCommand,
			},
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio",
				Action: serveCommand,
			},
			{
				Name:  "hint",
				Usage: "Print the scip_* navigation hint if it applies to the project",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "tool",
						Usage: "Tool names available to the agent (default: this server's tools)",
					},
				},
				Action: hintCommand,
			},
		},
	}
}

// env is what every command needs: the resolved root, its configuration,
// the lifecycle loggers and, unless disabled, the history store.
type env struct {
	root  string
	cfg   *config.Config
	store storage.Storage
	// console renders lifecycle events on stderr; logger adds the history sink.
	console logging.Logger
	logger  logging.Logger
}

func (e *env) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

// loadEnv loads <root>/.scip-indexer.toml and applies global flag overrides.
func loadEnv(c *cli.Context) (*env, error) {
	root, err := resolveRoot(c)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v := c.String("db"); v != "" {
		cfg.History.DBPath = v
	}
	if c.Bool("no-history") {
		cfg.History.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slogger, err := logging.NewSlog(os.Stderr, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	e := &env{root: root, cfg: cfg, console: slogger, logger: slogger}
	if cfg.History.Enabled {
		e.store, err = openStore(cfg)
		if err != nil {
			return nil, err
		}
		e.logger = logging.Multi(slogger, storage.NewEventSink(e.store))
	}
	return e, nil
}

func resolveRoot(c *cli.Context) (string, error) {
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve root path %q: %w", c.String("root"), err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return "", fmt.Errorf("project root %s is not a directory", root)
	}
	return root, nil
}

func openStore(cfg *config.Config) (storage.Storage, error) {
	path, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Printf("Received signal %v, shutting down gracefully...", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
