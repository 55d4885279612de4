package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pmatheus/nsrl-filter/internal/config"
	"github.com/pmatheus/nsrl-filter/internal/core"
	"github.com/pmatheus/nsrl-filter/internal/ingest"
	"github.com/pmatheus/nsrl-filter/internal/output"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runClassify(cmd *cobra.Command, f *flags, args []string) error {
	ctx := cmd.Context()
	c, err := initContext(cmd, f, positional(args, 0), positional(args, 1), func(cfg *config.Config) bool {
		return cfg.SkipIndex
	})
	if err != nil {
		return err
	}
	defer c.Close()

	cfg, st, logger := c.Config, c.Store, c.Logger

	start := time.Now()
	schema, err := st.Probe(ctx, cfg.Table)
	if err != nil {
		return err
	}
	logger.Info("reference schema", zap.Stringer("schema", schema), zap.Duration("took", time.Since(start)))

	if err := prepareIndexes(ctx, c); err != nil {
		return err
	}

	fs := afero.NewOsFs()
	reader, err := ingest.Open(fs, cfg.Input, ingest.Layout{
		MD5Field:       cfg.MD5Field,
		SHA1Field:      cfg.SHA1Field,
		ExtensionField: cfg.ExtensionField,
		Comma:          cfg.Comma(),
		LazyQuotes:     cfg.LazyQuotes,
		Extensions:     cfg.Extensions,
	})
	if err != nil {
		return err
	}

	paths, err := output.DerivePaths(cfg.Input, output.Naming{Known: cfg.KnownOutput, Unknown: cfg.UnknownOutput})
	if err != nil {
		return err
	}
	w, err := output.Create(fs, paths, reader.Header(), output.Options{
		Comma:          cfg.Comma(),
		OmitDuplicates: cfg.Duplicates == config.DuplicatesOmit,
	})
	if err != nil {
		return err
	}

	progress := output.NewProgress(os.Stderr)
	if f.quiet {
		progress = output.NewProgressWriter(cmd.ErrOrStderr(), false)
	}

	result, runErr := core.Run(ctx, reader, st, w, core.RunOptions{
		Workers:   cfg.Workers,
		ChunkSize: cfg.ChunkSize,
		Logger:    logger,
		Progress:  progress.Update,
	})
	progress.Done()
	result.Summary.QueryRetries.Store(st.Retries())

	report := output.Report{
		Summary:     result.Summary.Snapshot(),
		UniqueKnown: result.UniqueKnown,
		Elapsed:     result.Elapsed,
	}
	if runErr == nil {
		report.KnownRows, report.UnknownRows = w.Rows()
		report.Paths, runErr = w.Commit()
	}
	if runErr != nil {
		report.Partial = w.Abort()
		output.PrintSummary(cmd.OutOrStdout(), report)
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("interrupted; output left incomplete")
		}
		return fmt.Errorf("run aborted: %w", runErr)
	}
	output.PrintSummary(cmd.OutOrStdout(), report)

	logger.Debug("run complete", zap.String("run_id", result.ID), zap.Duration("total", time.Since(start)))
	return nil
}

// prepareIndexes builds missing hash indexes, or only warns about them when
// index creation is disabled
func prepareIndexes(ctx context.Context, c *cmdContext) error {
	if c.Config.SkipIndex {
		state, err := c.Store.IndexState(ctx)
		if err != nil {
			return err
		}
		for col, indexed := range state {
			if !indexed {
				c.Logger.Warn("hash column has no index; lookups will scan the table", zap.String("column", col))
			}
		}
		return nil
	}

	start := time.Now()
	report, err := c.Store.EnsureIndexes(ctx)
	if err != nil {
		return err
	}
	if len(report.Created) > 0 {
		c.Logger.Info("created indexes",
			zap.Strings("columns", report.Created),
			zap.Duration("took", time.Since(start)))
	}
	return nil
}
