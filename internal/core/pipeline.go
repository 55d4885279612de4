package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pmatheus/nsrl-filter/internal/ingest"
	"github.com/pmatheus/nsrl-filter/internal/models"
	"go.uber.org/zap"
)

// How many malformed rows are logged at warn level before switching to debug
const malformedWarnLimit = 5

// Sink receives classified records
type Sink interface {
	Write(rec *models.Record, class models.Classification) error
}

// RunOptions configures a classification run
type RunOptions struct {
	Workers   int
	ChunkSize int
	Logger    *zap.Logger
	// Progress is called with a counter snapshot after every emitted chunk
	Progress func(models.Snapshot)
}

// RunResult describes a finished or aborted run
type RunResult struct {
	ID      string
	Summary *models.Summary
	Elapsed time.Duration
	// UniqueKnown is the number of distinct known hash keys seen
	UniqueKnown int
}

// Run streams reader through the dispatcher and writes every classified
// record to sink. The returned result is populated even when err is non-nil.
func Run(ctx context.Context, reader *ingest.Reader, lookup HashLookup, sink Sink, opts RunOptions) (*RunResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	result := &RunResult{
		ID:      uuid.NewString(),
		Summary: &models.Summary{},
	}
	logger = logger.With(zap.String("run_id", result.ID))
	summary := result.Summary

	hooks := ingest.Hooks{
		Malformed: func(e *ingest.MalformedRecordError) {
			n := summary.Malformed.Add(1)
			if n <= malformedWarnLimit {
				logger.Warn("skipping malformed record", zap.Int("line", e.Line), zap.Error(e))
			} else {
				logger.Debug("skipping malformed record", zap.Int("line", e.Line), zap.Error(e))
			}
		},
		Filtered: func(int) {
			summary.Filtered.Add(1)
		},
	}

	classifier := NewClassifier(lookup, nil)
	d := &Dispatcher{
		Classifier: classifier,
		Workers:    opts.Workers,
		ChunkSize:  opts.ChunkSize,
		Summary:    summary,
		Logger:     logger,
	}
	if opts.Progress != nil {
		d.OnChunk = func() { opts.Progress(summary.Snapshot()) }
	}

	logger.Info("classification started",
		zap.String("input", reader.Path()),
		zap.Int("workers", max(opts.Workers, 1)),
		zap.Int("chunk_size", opts.ChunkSize))

	start := time.Now()
	err := d.Run(ctx,
		func(ctx context.Context, out chan<- *models.Record) error {
			return reader.Stream(ctx, out, hooks)
		},
		sink.Write)
	result.Elapsed = time.Since(start)
	result.UniqueKnown = classifier.Seen().Len()

	snap := summary.Snapshot()
	fields := []zap.Field{
		zap.Int64("total", snap.Total),
		zap.Int64("known", snap.Known),
		zap.Int("unique_known", result.UniqueKnown),
		zap.Int64("unknown", snap.Unknown),
		zap.Int64("duplicate", snap.Duplicate),
		zap.Int64("empty", snap.Empty),
		zap.Int64("malformed", snap.Malformed),
		zap.Duration("elapsed", result.Elapsed),
	}
	if err != nil {
		logger.Error("classification aborted", append(fields, zap.Int64("errored", snap.Errored), zap.Error(err))...)
		return result, err
	}
	if err := summary.Check(); err != nil {
		return result, err
	}

	logger.Info("classification finished", fields...)
	return result, nil
}
