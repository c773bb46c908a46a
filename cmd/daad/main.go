// Package main implements the DaaD command-line tool. DaaD stores records
// as chains of linked messages on NATS JetStream streams, one stream per
// table, and exposes one-shot insert/find/query/delete operations against
// the tables declared in configuration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/TotoCodeFR/DaaD/channel/natschannel"
	"github.com/TotoCodeFR/DaaD/config"
	"github.com/TotoCodeFR/DaaD/metric"
	"github.com/TotoCodeFR/DaaD/natsclient"
	"github.com/TotoCodeFR/DaaD/table"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "daad"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	loader := config.NewLoader()
	cfg, err := loader.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("configuration is valid", "tables", len(cfg.Tables))
		return nil
	}

	if len(cfg.Tables) == 0 {
		return fmt.Errorf("no tables declared in configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cliCfg.Timeout)
	defer cancel()

	// Tables listing needs no substrate connection.
	if cliCfg.Command == "tables" {
		return runTables(cfg)
	}

	registry := metric.NewMetricsRegistry()
	if cfg.Metrics.Enabled {
		srv := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			_ = srv.Stop(stopCtx)
		}()
		slog.Info("metrics server started", "addr", srv.Addr())
	}

	tables, cleanup, err := setupEngine(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return dispatch(ctx, cliCfg, tables)
}

// setupEngine connects to NATS, provisions one stream per configured table
// and binds the table engines.
func setupEngine(ctx context.Context, cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (map[string]*table.Table, func(), error) {
	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithClientName(cfg.NATS.Name),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithConnectTimeout(cfg.NATS.ConnectTimeout),
		natsclient.WithMetrics(registry.CoreMetrics()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}

	if err := client.WaitForConnection(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wait for NATS connection: %w", err)
	}

	deps := table.Dependencies{
		Logger:  logger,
		Metrics: registry.CoreMetrics(),
	}
	tableCfg := table.Config{
		ChunkSize:       cfg.Engine.ChunkSize,
		RetrievalWindow: cfg.Engine.RetrievalWindow,
	}

	tables := make(map[string]*table.Table, len(cfg.Tables))
	for _, tc := range cfg.Tables {
		schema, err := table.NewSchema(tc.Columns, tc.PrimaryKey)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("table %q: %w", tc.Name, err)
		}

		store, err := natschannel.Provision(ctx, client, cfg.NATS.SubjectPrefix, tc.Name,
			natschannel.WithMaxPayload(cfg.Engine.MaxPayload),
			natschannel.WithBulkMaxAge(cfg.Engine.BulkMaxAge),
			natschannel.WithLogger(logger),
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("provision channel for %q: %w", tc.Name, err)
		}

		tbl, err := table.New(tc.Name, schema, tableCfg, deps)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create table %q: %w", tc.Name, err)
		}
		if err := tbl.Bind(store); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("bind table %q: %w", tc.Name, err)
		}
		tables[tc.Name] = tbl
	}

	return tables, cleanup, nil
}

func dispatch(ctx context.Context, cliCfg *CLIConfig, tables map[string]*table.Table) error {
	tbl, ok := tables[cliCfg.Table]
	if !ok {
		return fmt.Errorf("unknown table %q", cliCfg.Table)
	}

	switch cliCfg.Command {
	case "insert":
		return runInsert(ctx, tbl, cliCfg.Args)
	case "find":
		return runFind(ctx, tbl, cliCfg.Args)
	case "query":
		return runQuery(ctx, tbl, cliCfg.Args)
	case "delete":
		return runDelete(ctx, tbl, cliCfg.Args)
	default:
		return fmt.Errorf("unknown command %q", cliCfg.Command)
	}
}

func runInsert(ctx context.Context, tbl *table.Table, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: insert <table> <record-json>")
	}

	var rec table.Record
	if err := json.Unmarshal([]byte(args[0]), &rec); err != nil {
		return fmt.Errorf("parse record json: %w", err)
	}

	head, err := tbl.Insert(ctx, rec)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"inserted": true, "head": head.ID, "label": head.Label})
}

func runFind(ctx context.Context, tbl *table.Table, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: find <table> <primary-key>")
	}

	rec, err := tbl.Find(ctx, args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return printJSON(map[string]any{"found": false})
	}
	return printJSON(map[string]any{"found": true, "record": rec})
}

// runQuery filters on field=value pairs; every pair must match.
func runQuery(ctx context.Context, tbl *table.Table, args []string) error {
	filters := make(map[string]string, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return fmt.Errorf("query filter %q is not field=value", arg)
		}
		filters[field] = value
	}

	recs, err := tbl.Query(ctx, func(rec table.Record) bool {
		for field, want := range filters {
			got, ok := rec[field].(string)
			if !ok || got != want {
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"count": len(recs), "records": recs})
}

func runDelete(ctx context.Context, tbl *table.Table, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <table> <primary-key>")
	}

	res, err := tbl.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"found":    res.Found,
		"deleted":  len(res.Deleted),
		"failed":   res.Failed,
		"fallback": res.Fallback,
	})
}

func runTables(cfg *config.Config) error {
	out := make([]map[string]any, 0, len(cfg.Tables))
	for _, tc := range cfg.Tables {
		out = append(out, map[string]any{
			"name":        tc.Name,
			"columns":     tc.Columns,
			"primary_key": tc.PrimaryKey,
		})
	}
	return printJSON(map[string]any{"tables": out})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
