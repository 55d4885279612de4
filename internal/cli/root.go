// Package cli implements the command-line interface for nsrl-filter.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmatheus/nsrl-filter/internal/config"
	"github.com/pmatheus/nsrl-filter/internal/logging"
	"github.com/pmatheus/nsrl-filter/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// flags holds every command-line override. Only flags the user actually
// set replace configuration values.
type flags struct {
	configPath string
	driver     string
	table      string
	verbose    bool
	quiet      bool
	logFormat  string

	workers    int
	chunkSize  int
	retries    int
	md5Field   int
	sha1Field  int
	extField   int
	extensions []string
	delimiter  string
	lazyQuotes bool
	knownOut   string
	unknownOut string
	duplicates string
	skipIndex  bool
}

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Store  *store.Store
	Logger *zap.Logger
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
}

// NewRootCmd builds the nsrl-filter command tree
func NewRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:   "nsrl-filter [database] [input]",
		Short: "Split a file listing into known and unknown software",
		Long: `nsrl-filter classifies every row of a forensic file listing against an
NSRL-style hash reference database. Rows whose SHA-1 or MD5 is in the reference
set are written to <input>_known.csv, everything else to <input>_unknown.csv.

The database defaults to nsrl.db and the input to files.csv in the current
directory. Hash columns are indexed on first use.`,
		Args:          cobra.RangeArgs(0, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, f, args)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "config file (default ./"+config.ConfigFile+" if present)")
	pf.StringVar(&f.driver, "driver", "", "reference database driver: sqlite, postgres or sqlserver")
	pf.StringVar(&f.table, "table", "", "reference table holding the hashes; when unset METADATA, then FILE, are tried")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVarP(&f.quiet, "quiet", "q", false, "only log errors and hide progress")
	pf.StringVar(&f.logFormat, "log-format", "", "log format: console or json")

	fl := rootCmd.Flags()
	fl.IntVarP(&f.workers, "workers", "w", 0, "parallel lookup workers (default number of CPUs)")
	fl.IntVar(&f.chunkSize, "chunk-size", 0, "records per lookup batch")
	fl.IntVar(&f.retries, "retries", 0, "retries of a failed lookup batch")
	fl.IntVar(&f.md5Field, "md5-field", 0, "zero-based position of the MD5 field")
	fl.IntVar(&f.sha1Field, "sha1-field", 0, "zero-based position of the SHA-1 field")
	fl.IntVar(&f.extField, "ext-field", 0, "position of the extension field when the header has no Extension column")
	fl.StringSliceVar(&f.extensions, "ext", nil, "only classify files with these extensions (e.g. exe,dll,sys)")
	fl.StringVarP(&f.delimiter, "delimiter", "d", "", `field delimiter ("tab" for tab)`)
	fl.BoolVar(&f.lazyQuotes, "lazy-quotes", false, "tolerate stray quotes inside fields")
	fl.StringVar(&f.knownOut, "known-out", "", "known output file (default <input>_known.csv)")
	fl.StringVar(&f.unknownOut, "unknown-out", "", "unknown output file (default <input>_unknown.csv)")
	fl.StringVar(&f.duplicates, "duplicates", "", `where repeated known hashes go: "known" or "omit"`)
	fl.BoolVar(&f.skipIndex, "skip-index", false, "open the database read-only and do not create indexes")

	rootCmd.AddCommand(newIndexCmd(f))
	rootCmd.AddCommand(newProbeCmd(f))
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newCompletionCmd(rootCmd))

	return rootCmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// loadConfig resolves the effective configuration: defaults, then the
// config file, then flags and positional arguments
func loadConfig(cmd *cobra.Command, f *flags, database, input string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.Load(f.configPath)
	} else {
		cfg, err = config.Discover()
	}
	if err != nil {
		return nil, err
	}

	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}

	if database != "" {
		cfg.Database = database
	}
	if input != "" {
		cfg.Input = input
	}
	if changed("driver") {
		cfg.Driver = f.driver
	}
	if changed("table") {
		cfg.Table = f.table
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	switch {
	case f.verbose:
		cfg.LogLevel = "debug"
	case f.quiet:
		cfg.LogLevel = "error"
	}

	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("chunk-size") {
		cfg.ChunkSize = f.chunkSize
	}
	if changed("retries") {
		cfg.QueryRetries = f.retries
	}
	if changed("md5-field") {
		cfg.MD5Field = f.md5Field
	}
	if changed("sha1-field") {
		cfg.SHA1Field = f.sha1Field
	}
	if changed("ext-field") {
		cfg.ExtensionField = f.extField
	}
	if changed("ext") {
		cfg.Extensions = f.extensions
	}
	if changed("delimiter") {
		cfg.Delimiter = f.delimiter
	}
	if changed("lazy-quotes") {
		cfg.LazyQuotes = f.lazyQuotes
	}
	if changed("known-out") {
		cfg.KnownOutput = f.knownOut
	}
	if changed("unknown-out") {
		cfg.UnknownOutput = f.unknownOut
	}
	if changed("duplicates") {
		cfg.Duplicates = strings.ToLower(f.duplicates)
	}
	if changed("skip-index") {
		cfg.SkipIndex = f.skipIndex
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initContext loads config, builds the logger and opens the reference store.
// readOnly decides from the effective config whether writes are refused.
func initContext(cmd *cobra.Command, f *flags, database, input string, readOnly func(*config.Config) bool) (*cmdContext, error) {
	cfg, err := loadConfig(cmd, f, database, input)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if cfg.Path() != "" {
		logger.Debug("loaded config", zap.String("path", cfg.Path()))
	}

	retry := store.DefaultRetryConfig()
	retry.MaxRetries = cfg.QueryRetries

	st, err := store.Open(cmd.Context(), store.Options{
		Driver:   cfg.Driver,
		Database: cfg.Database,
		MaxConns: cfg.Workers + 1,
		ReadOnly: readOnly(cfg),
		Retry:    retry,
		Logger:   logger,
	})
	if err != nil {
		logger.Sync()
		return nil, err
	}

	return &cmdContext{Config: cfg, Store: st, Logger: logger}, nil
}

// positional returns args[i] or "" when absent
func positional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
