// Package output writes classified records to the known and unknown files
// and reports on the run.
package output

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"

	"github.com/pmatheus/nsrl-filter/internal/models"
	"github.com/spf13/afero"
)

const writeBufferSize = 64 << 10

var ErrOutputUnwritable = errors.New("output file unwritable")

// Options controls how rows are written
type Options struct {
	// Comma is the output delimiter, normally the input's
	Comma rune
	// OmitDuplicates drops DuplicateKnown records instead of writing them to the known file
	OmitDuplicates bool
}

// sink is one output file being written under its partial name
type sink struct {
	final   string
	partial string
	file    afero.File
	buf     *bufio.Writer
	csv     *csv.Writer
	rows    int64
	// renamed is set once the file sits under its final name
	renamed bool
}

func (s *sink) write(fields []string) error {
	if err := s.csv.Write(fields); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOutputUnwritable, s.partial, err)
	}
	s.rows++
	return nil
}

func (s *sink) flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOutputUnwritable, s.partial, err)
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOutputUnwritable, s.partial, err)
	}
	return nil
}

// Writer routes classified records to the known and unknown files.
// It is not safe for concurrent use; a run has exactly one writer goroutine.
type Writer struct {
	fs      afero.Fs
	opts    Options
	known   *sink
	unknown *sink
	// done refuses further writes; finished is set by a successful Commit or an Abort
	done     bool
	finished bool
}

// Create truncates both outputs, writes header to each and returns a writer.
// Rows go to <path>.partial until Commit.
func Create(fs afero.Fs, paths Paths, header []string, opts Options) (*Writer, error) {
	if opts.Comma == 0 {
		opts.Comma = ','
	}
	w := &Writer{fs: fs, opts: opts}

	var err error
	if w.known, err = w.open(paths.Known, header); err != nil {
		return nil, err
	}
	if w.unknown, err = w.open(paths.Unknown, header); err != nil {
		w.known.file.Close()
		fs.Remove(w.known.partial)
		return nil, err
	}
	return w, nil
}

func (w *Writer) open(final string, header []string) (*sink, error) {
	// A stale output from an earlier run must not survive an aborted one
	if err := w.fs.Remove(final); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: removing previous %s: %w", ErrOutputUnwritable, final, err)
	}

	partial := final + PartialSuffix
	f, err := w.fs.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutputUnwritable, err)
	}

	buf := bufio.NewWriterSize(f, writeBufferSize)
	cw := csv.NewWriter(buf)
	cw.Comma = w.opts.Comma

	s := &sink{final: final, partial: partial, file: f, buf: buf, csv: cw}
	if len(header) > 0 {
		if err := cw.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: writing header: %w", ErrOutputUnwritable, partial, err)
		}
	}
	return s, nil
}

// Write routes rec by its classification
func (w *Writer) Write(rec *models.Record, class models.Classification) error {
	if w.done {
		return fmt.Errorf("%w: writer already closed", ErrOutputUnwritable)
	}

	switch class {
	case models.Known:
		return w.known.write(rec.Fields)
	case models.DuplicateKnown:
		if w.opts.OmitDuplicates {
			return nil
		}
		return w.known.write(rec.Fields)
	case models.Unknown, models.EmptyHash:
		return w.unknown.write(rec.Fields)
	default:
		return fmt.Errorf("line %d: cannot route classification %s", rec.Line, class)
	}
}

// Rows returns the number of data rows written to each file
func (w *Writer) Rows() (known, unknown int64) {
	return w.known.rows, w.unknown.rows
}

// Commit flushes both files and moves them to their final names. Both move
// or neither does: when the second rename fails the first is undone. After
// a failed Commit, Abort reports the files left behind.
func (w *Writer) Commit() (Paths, error) {
	if w.done {
		return Paths{}, fmt.Errorf("%w: writer already closed", ErrOutputUnwritable)
	}
	w.done = true

	sinks := []*sink{w.known, w.unknown}
	var errs []error
	for _, s := range sinks {
		if err := s.flush(); err != nil {
			errs = append(errs, err)
		}
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrOutputUnwritable, s.partial, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Paths{}, err
	}

	for i, s := range sinks {
		if err := w.fs.Rename(s.partial, s.final); err != nil {
			for _, prev := range sinks[:i] {
				if w.fs.Rename(prev.final, prev.partial) == nil {
					prev.renamed = false
				}
			}
			return Paths{}, fmt.Errorf("%w: %w", ErrOutputUnwritable, err)
		}
		s.renamed = true
	}
	w.finished = true
	return Paths{Known: w.known.final, Unknown: w.unknown.final}, nil
}

// Abort flushes what was written and returns every output file left behind,
// normally both under their partial names. Calling Abort after a successful
// Commit, or a second time, returns nil.
func (w *Writer) Abort() []string {
	if w.finished {
		return nil
	}
	w.finished = true

	if !w.done {
		w.done = true
		for _, s := range []*sink{w.known, w.unknown} {
			s.flush()
			s.file.Close()
		}
	}

	var left []string
	for _, s := range []*sink{w.known, w.unknown} {
		if s.renamed {
			left = append(left, s.final)
		} else {
			left = append(left, s.partial)
		}
	}
	return left
}
