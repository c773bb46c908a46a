package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	Timeout     time.Duration
	ShowVersion bool
	ShowHelp    bool
	Validate    bool

	Command string
	Table   string
	Args    []string
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("DAAD_CONFIG", ""),
		"Path to configuration file (env: DAAD_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("DAAD_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: DAAD_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("DAAD_LOG_FORMAT", "text"),
		"Log format: json, text (env: DAAD_LOG_FORMAT)")

	flag.DurationVar(&cfg.Timeout, "timeout",
		getEnvDuration("DAAD_TIMEOUT", 30*time.Second),
		"Overall operation timeout (env: DAAD_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp
	flag.Parse()

	args := flag.Args()
	if len(args) > 0 {
		cfg.Command = args[0]
		args = args[1:]
	}
	if cfg.Command != "" && cfg.Command != "tables" && len(args) > 0 {
		cfg.Table = args[0]
		args = args[1:]
	}
	cfg.Args = args

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if cfg.Validate {
		return nil
	}

	validCommands := []string{"insert", "find", "query", "delete", "tables"}
	if cfg.Command == "" {
		return fmt.Errorf("no command given, expected one of: insert, find, query, delete, tables")
	}
	if !contains(validCommands, cfg.Command) {
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
	if cfg.Command != "tables" && cfg.Table == "" {
		return fmt.Errorf("command %q requires a table name", cfg.Command)
	}

	return nil
}

// initializeCLI parses flags and handles version/help.
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	return cliCfg, false, nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - record storage over NATS JetStream

Usage: %s [options] <command> [table] [args]

Commands:
  insert <table> <record-json>      Store a record as a message chain
  find <table> <primary-key>        Look up one record by primary key
  query <table> [field=value ...]   Scan recent history with filters
  delete <table> <primary-key>      Remove a record's whole chain
  tables                            List configured tables

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  %s --config=daad.json insert users '{"id":"u1","name":"alice"}'
  %s --config=daad.json find users u1
  %s --config=daad.json query users name=alice
  %s --config=daad.json delete users u1

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
