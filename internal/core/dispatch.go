package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/pmatheus/nsrl-filter/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultChunkSize = 10000

// Source feeds records into out until the input is exhausted. It must not close out.
type Source func(ctx context.Context, out chan<- *models.Record) error

// Emit receives every classified record, in input order, from a single goroutine
type Emit func(rec *models.Record, class models.Classification) error

// Dispatcher fans batched lookups out to a fixed set of workers and merges
// the results back into input order
type Dispatcher struct {
	Classifier *Classifier
	Workers    int
	ChunkSize  int
	Summary    *models.Summary
	Logger     *zap.Logger

	// OnChunk is called by the collector after each chunk has been emitted
	OnChunk func()
}

type chunk struct {
	seq     int
	records []*models.Record
}

type chunkResult struct {
	chunk
	matched []bool
}

// Run classifies everything source produces. The first error from the
// source, a lookup or emit cancels the rest of the run and is returned.
func (d *Dispatcher) Run(ctx context.Context, source Source, emit Emit) error {
	workers := max(d.Workers, 1)
	size := d.ChunkSize
	if size < 1 {
		size = DefaultChunkSize
	}
	if d.Summary == nil {
		d.Summary = &models.Summary{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	g, gctx := errgroup.WithContext(ctx)

	records := make(chan *models.Record, size)
	jobs := make(chan chunk)
	results := make(chan chunkResult, workers)
	// Bounds chunks that are split but not yet emitted
	window := make(chan struct{}, 2*workers)

	g.Go(func() error {
		defer close(records)
		return source(gctx, records)
	})

	g.Go(func() error {
		defer close(jobs)
		return d.split(gctx, records, jobs, window, size)
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return d.work(gctx, jobs, results)
		})
	}
	g.Go(func() error {
		wg.Wait()
		close(results)
		return nil
	})

	g.Go(func() error {
		return d.collect(gctx, results, window, emit)
	})

	return g.Wait()
}

// split groups records into chunks of size and numbers them in input order
func (d *Dispatcher) split(ctx context.Context, in <-chan *models.Record, jobs chan<- chunk, window chan struct{}, size int) error {
	seq := 0
	buf := make([]*models.Record, 0, size)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		select {
		case window <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case jobs <- chunk{seq: seq, records: buf}:
		case <-ctx.Done():
			return ctx.Err()
		}
		seq++
		buf = make([]*models.Record, 0, size)
		return nil
	}

	for {
		select {
		case rec, ok := <-in:
			if !ok {
				return flush()
			}
			buf = append(buf, rec)
			if len(buf) >= size {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// work performs the batched lookup for each chunk it receives
func (d *Dispatcher) work(ctx context.Context, jobs <-chan chunk, results chan<- chunkResult) error {
	for {
		var c chunk
		select {
		case next, ok := <-jobs:
			if !ok {
				return nil
			}
			c = next
		case <-ctx.Done():
			return ctx.Err()
		}

		matched, err := d.Classifier.Match(ctx, c.records)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			d.Summary.RecordErrored(len(c.records))
			first, last := lineSpan(c.records)
			d.Logger.Error("chunk lookup failed",
				zap.Int("chunk", c.seq),
				zap.Int("first_line", first),
				zap.Int("last_line", last),
				zap.Error(err))
			return fmt.Errorf("chunk %d (lines %d-%d): %w", c.seq, first, last, err)
		}

		select {
		case results <- chunkResult{chunk: c, matched: matched}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// collect restores input order and resolves classifications one record at a time
func (d *Dispatcher) collect(ctx context.Context, results <-chan chunkResult, window <-chan struct{}, emit Emit) error {
	pending := make(map[int]chunkResult)
	next := 0

	for {
		select {
		case res, ok := <-results:
			if !ok {
				if len(pending) > 0 {
					return fmt.Errorf("dispatch ended with %d chunks out of order", len(pending))
				}
				return nil
			}
			pending[res.seq] = res

			for {
				ready, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)

				for i, rec := range ready.records {
					class := d.Classifier.Resolve(rec, ready.matched[i])
					d.Summary.Record(class)
					if err := emit(rec, class); err != nil {
						return err
					}
				}
				<-window
				next++

				if d.OnChunk != nil {
					d.OnChunk()
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func lineSpan(records []*models.Record) (int, int) {
	if len(records) == 0 {
		return 0, 0
	}
	return records[0].Line, records[len(records)-1].Line
}
