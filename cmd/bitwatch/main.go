package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	bitwatch "github.com/mattkeenan/bitwatch/pkg"
	"github.com/mattkeenan/bitwatch/pkg/sqlstore"
)

// Exit codes follow diff(1): 1 when a verify found differences, 2 on trouble
const (
	exitOK          = 0
	exitDifferences = 1
	exitError       = 2
)

// errDifferences is returned by verify when something changed
var errDifferences = errors.New("differences found")

// app holds what every command needs
type app struct {
	options *ParsedOptions
	config  *bitwatch.Config
	logger  *zap.Logger
	out     *printer
	store   *sqlstore.Store
	engine  *bitwatch.Engine
}

type commandFunc func(ctx context.Context, a *app, args []string) error

var commands = map[string]commandFunc{
	"add":        cmdAdd,
	"remove":     cmdRemove,
	"roots":      cmdRoots,
	"exclude":    cmdExclude,
	"include":    cmdInclude,
	"exclusions": cmdExclusions,
	"hash":       cmdHash,
	"verify":     cmdVerify,
	"refresh":    cmdRefresh,
	"export":     cmdExport,
	"dupes":      cmdDupes,
	"settings":   cmdSettings,
	"watch":      cmdWatch,
}

func defineOptions() *ParsedOptions {
	options := NewParsedOptions()
	options.DefineOption("help", "h", OptionTypeBool, "false", "Show help message")
	options.DefineOption("version", "", OptionTypeBool, "false", "Show version information")
	options.DefineOption("verbose", "v", OptionTypeInt, "0", "Enable verbose output (can be repeated for more verbosity)")
	options.DefineOption("quiet", "q", OptionTypeBool, "false", "Suppress non-error output")
	options.DefineOption("format", "f", OptionTypeString, formatHuman, "Output format (human|json|yaml)")
	options.DefineOption("config", "c", OptionTypeString, "", "Configuration file")
	options.DefineOption("override", "o", OptionTypeList, "", "Override a configuration value (key:value, repeatable)")
	options.DefineOption("prune", "p", OptionTypeBool, "false", "Remove deleted nodes from the snapshot and retire vanished roots")
	options.DefineOption("output", "", OptionTypeString, "", "Write export output to this file instead of stdout")
	options.DefineOption("metrics-addr", "", OptionTypeString, "", "Serve Prometheus metrics on this address while watching")
	options.DefineOption("interval", "", OptionTypeInt, "0", "Minutes between watch runs (default: auto_run_interval_minutes)")
	options.DefineOption("run-now", "", OptionTypeBool, "false", "Run immediately when watch starts")
	return options
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	options := defineOptions()
	if err := options.Parse(argv); err != nil {
		fmt.Fprintf(os.Stderr, "bitwatch: %v\n", err)
		fmt.Fprintf(os.Stderr, "Try 'bitwatch --help' for more information.\n")
		return exitError
	}

	format := options.GetString("format")
	if err := validateFormat(format); err != nil {
		fmt.Fprintf(os.Stderr, "bitwatch: %v\n", err)
		return exitError
	}

	if options.GetBool("version") {
		fmt.Printf("bitwatch %s\n", getVersionString())
		return exitOK
	}

	args := options.GetArgs()
	if options.GetBool("help") || len(args) == 0 {
		showHelp(options)
		return exitOK
	}
	if args[0] == "help" {
		showHelp(options)
		return exitOK
	}

	command, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "bitwatch: unknown command '%s'\n", args[0])
		fmt.Fprintf(os.Stderr, "Try 'bitwatch --help' for more information.\n")
		return exitError
	}

	ctx, cancel := setupSignalHandler(context.Background())
	defer cancel()

	a, err := newApp(ctx, options, args[0] == "watch")
	if err != nil {
		fmt.Fprintf(os.Stderr, "bitwatch: %v\n", err)
		return exitError
	}
	defer a.close()

	err = command(ctx, a, args[1:])
	if closeErr := a.out.close(); err == nil {
		err = closeErr
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errDifferences):
		return exitDifferences
	default:
		a.logger.Debug("Command failed", zap.String("command", args[0]), zap.Error(err))
		fmt.Fprintf(os.Stderr, "bitwatch: %v\n", err)
		return exitError
	}
}

// newApp loads configuration and opens the repository. Metrics are only
// collected when watching, where they can be scraped.
func newApp(ctx context.Context, options *ParsedOptions, withMetrics bool) (*app, error) {
	configPath := options.GetString("config")
	if configPath == "" {
		configPath = bitwatch.DefaultConfigPath()
	}
	cfg, err := bitwatch.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyOverrides(options.GetList("override")); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", configPath, err)
	}

	logSection := cfg.GetLogConfig()
	level := logSection.Level
	if options.IsSet("verbose") || options.IsSet("quiet") {
		level = bitwatch.VerboseLevel(options.GetInt("verbose"), options.GetBool("quiet"))
	}
	logger, err := bitwatch.NewLogger(bitwatch.LogConfig{
		Level:      level,
		Format:     logSection.Format,
		OutputPath: logSection.Output,
	})
	if err != nil {
		return nil, err
	}

	dbConfig := cfg.GetDatabaseConfig()
	store, err := sqlstore.Open(ctx, dbConfig.Driver, dbConfig.DSN)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to open %s repository: %w", dbConfig.Driver, err)
	}

	bufferSize, err := bitwatch.ParseHumanSize(cfg.GetHashConfig().Buffer)
	if err != nil {
		store.Close()
		return nil, err
	}

	var metrics *bitwatch.Metrics
	if withMetrics {
		metrics = bitwatch.NewMetrics(prometheus.DefaultRegisterer)
	}

	engine, err := bitwatch.NewEngine(bitwatch.Options{
		Repository:     store,
		Filesystem:     bitwatch.NewOSFilesystem(cfg.GetSymlinkConfig().Mode),
		Logger:         logger,
		Metrics:        metrics,
		Defaults:       cfg.Defaults(),
		HashBufferSize: bufferSize,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		options: options,
		config:  cfg,
		logger:  logger,
		out:     newPrinter(os.Stdout, options.GetString("format"), options.GetInt("verbose"), options.GetBool("quiet")),
		store:   store,
		engine:  engine,
	}, nil
}

func (a *app) close() {
	a.store.Close()
	a.logger.Sync()
}

func showHelp(options *ParsedOptions) {
	fmt.Printf("bitwatch - directory integrity hashing and verification\n\n")
	fmt.Printf("Usage: bitwatch [OPTIONS] <command> [args...]\n\n")

	fmt.Printf("Commands:\n")
	fmt.Printf("  add <dir>...             Register directories as watched roots\n")
	fmt.Printf("  remove <root>...         Unregister roots (path or id) and forget their snapshot\n")
	fmt.Printf("  roots                    List watched roots\n")
	fmt.Printf("  exclude <path>...        Exclude paths (and everything beneath) from hashing\n")
	fmt.Printf("  include <path>...        Remove exclusion rules\n")
	fmt.Printf("  exclusions [<root>...]   List exclusion rules\n")
	fmt.Printf("  hash [<path>...]         Hash and record paths (default: every root)\n")
	fmt.Printf("  verify [<path>...]       Compare paths against the recorded snapshot\n")
	fmt.Printf("  refresh <path>...        List the structure below paths without hashing\n")
	fmt.Printf("  export <root>            Write a tagged checksum manifest of a root\n")
	fmt.Printf("  dupes [<root>...]        List recorded files with identical content\n")
	fmt.Printf("  settings [key [value]]   Show or change persisted settings\n")
	fmt.Printf("  watch                    Verify every root periodically until interrupted\n")
	fmt.Printf("  help                     Show this help\n\n")

	fmt.Printf("Options:\n")
	options.WriteUsage(os.Stdout)

	fmt.Printf("\nOverride keys: default, hash_buffer, interval, color, driver, dsn, level,\n")
	fmt.Printf("format, output, listen, mode\n\n")

	fmt.Printf("Status codes:\n")
	fmt.Printf("  A new   M modified   D deleted   X excluded   E could not be checked\n\n")

	fmt.Printf("Exit status: 0 clean, 1 verify found differences, 2 error\n\n")

	fmt.Printf("Examples:\n")
	fmt.Printf("  bitwatch add ~/photos\n")
	fmt.Printf("  bitwatch hash\n")
	fmt.Printf("  bitwatch exclude ~/photos/cache\n")
	fmt.Printf("  bitwatch verify --format=json ~/photos/2024\n")
	fmt.Printf("  bitwatch verify --prune\n")
	fmt.Printf("  bitwatch export ~/photos --output=photos.sha256\n")
	fmt.Printf("  bitwatch settings default_hash_algorithm SHA512\n")
	fmt.Printf("  bitwatch watch --run-now --metrics-addr=:9310\n")
}
