// Package ingest streams candidate records out of a forensic file listing.
//
// Hash values are taken from fixed field positions (MD5, then SHA-1) as laid
// out by the export tool, not looked up by header name.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pmatheus/nsrl-filter/internal/models"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const readBufferSize = 1 << 20

var (
	ErrInputUnreadable = errors.New("input file unreadable")
	ErrBadHeader       = errors.New("input header does not reach the hash fields")
	ErrMalformedRecord = errors.New("malformed record")
)

// MalformedRecordError describes a row that was skipped
type MalformedRecordError struct {
	Line   int
	Fields int   // fields found, 0 when the row could not be parsed
	Want   int   // fields expected from the header
	Err    error // underlying parse error, if any
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: malformed record: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: malformed record: %d fields, want %d", e.Line, e.Fields, e.Want)
}

func (e *MalformedRecordError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedRecord}
	}
	return []error{ErrMalformedRecord, e.Err}
}

// Layout describes where things are in an input row
type Layout struct {
	MD5Field  int
	SHA1Field int
	// ExtensionField is used for extension filtering when the header has no "Extension" column
	ExtensionField int
	Comma          rune
	LazyQuotes     bool
	// Extensions keeps only records with one of these extensions; empty keeps everything
	Extensions []string
}

// Hooks receive rows that are skipped during streaming. Both are optional.
type Hooks struct {
	Malformed func(*MalformedRecordError)
	Filtered  func(line int)
}

// Reader streams records from a delimited file with a header row
type Reader struct {
	fs     afero.Fs
	path   string
	layout Layout
	header []string

	extIndex   int
	extensions map[string]struct{}
}

// Open validates that path is readable and that its header is wide enough
// to hold the hash fields
func Open(fs afero.Fs, path string, layout Layout) (*Reader, error) {
	if layout.Comma == 0 {
		layout.Comma = ','
	}
	r := &Reader{fs: fs, path: path, layout: layout, extIndex: -1}

	f, lr, err := r.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	_, header, err := lr.next()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s is empty", ErrBadHeader, path)
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadHeader, path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading header: %w", ErrInputUnreadable, path, err)
	}

	need := max(layout.MD5Field, layout.SHA1Field) + 1
	if len(header) < need {
		return nil, fmt.Errorf("%w: %s has %d columns, need at least %d", ErrBadHeader, path, len(header), need)
	}
	r.header = header

	if len(layout.Extensions) > 0 {
		r.extensions = make(map[string]struct{}, len(layout.Extensions))
		for _, ext := range layout.Extensions {
			r.extensions[normalizeExtension(ext)] = struct{}{}
		}
		r.extIndex = extensionColumn(header, layout.ExtensionField)
	}

	return r, nil
}

// Path returns the input file path
func (r *Reader) Path() string {
	return r.path
}

// Header returns a copy of the header row
func (r *Reader) Header() []string {
	return append([]string(nil), r.header...)
}

// Stream sends every well-formed record to out, in file order.
// Each call re-reads the file from the start. Every physical line is one
// record, so a row that fails to parse never swallows the rows after it.
// Malformed rows are reported through hooks and skipped; only I/O failures
// and cancellation end the stream early. Stream does not close out.
func (r *Reader) Stream(ctx context.Context, out chan<- *models.Record, hooks Hooks) error {
	f, lr, err := r.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if _, _, err := lr.next(); err != nil {
		return fmt.Errorf("%w: %s: reading header: %w", ErrInputUnreadable, r.path, err)
	}

	want := len(r.header)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, fields, err := lr.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				if hooks.Malformed != nil {
					hooks.Malformed(&MalformedRecordError{Line: line, Want: want, Err: pe.Err})
				}
				continue
			}
			return fmt.Errorf("%w: %s: %w", ErrInputUnreadable, r.path, err)
		}

		if len(fields) != want {
			if hooks.Malformed != nil {
				hooks.Malformed(&MalformedRecordError{Line: line, Fields: len(fields), Want: want})
			}
			continue
		}

		if !r.keep(fields) {
			if hooks.Filtered != nil {
				hooks.Filtered(line)
			}
			continue
		}

		rec := models.NewRecord(line, fields, r.layout.MD5Field, r.layout.SHA1Field)
		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// open returns the file and a line reader over its decoded contents.
// UTF-16 and UTF-8 byte order marks are honoured; anything else passes through untouched.
func (r *Reader) open() (afero.File, *lineReader, error) {
	f, err := r.fs.Open(r.path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInputUnreadable, err)
	}

	decoded := transform.NewReader(f, unicode.BOMOverride(encoding.Nop.NewDecoder()))
	return f, newLineReader(bufio.NewReaderSize(decoded, readBufferSize), r.layout), nil
}

// lineReader splits the input on newlines and parses each line as one
// delimited record. Quoted fields cannot span lines.
type lineReader struct {
	in   *bufio.Reader
	line int

	src strings.Reader
	// buf is handed to csv, which reads from it directly instead of wrapping it again
	buf *bufio.Reader
	cr  *csv.Reader
}

func newLineReader(in *bufio.Reader, layout Layout) *lineReader {
	lr := &lineReader{in: in}
	lr.buf = bufio.NewReaderSize(&lr.src, 4096)
	lr.cr = csv.NewReader(lr.buf)
	lr.cr.Comma = layout.Comma
	lr.cr.LazyQuotes = layout.LazyQuotes
	lr.cr.FieldsPerRecord = -1
	return lr
}

// next returns the next non-blank line, its 1-based line number and its fields
func (lr *lineReader) next() (int, []string, error) {
	for {
		text, err := lr.in.ReadString('\n')
		if err != nil && (err != io.EOF || text == "") {
			return lr.line, nil, err
		}
		lr.line++

		text = strings.TrimRight(text, "\r\n")
		if text == "" {
			continue
		}

		lr.src.Reset(text)
		lr.buf.Reset(&lr.src)
		fields, err := lr.cr.Read()
		if err == io.EOF {
			continue
		}
		return lr.line, fields, err
	}
}

// keep applies the extension filter
func (r *Reader) keep(fields []string) bool {
	if r.extensions == nil {
		return true
	}
	if r.extIndex < 0 || r.extIndex >= len(fields) {
		return false
	}
	_, ok := r.extensions[normalizeExtension(fields[r.extIndex])]
	return ok
}

// extensionColumn finds the "Extension" header, falling back to the configured position
func extensionColumn(header []string, fallback int) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "extension") {
			return i
		}
	}
	if fallback >= 0 && fallback < len(header) {
		return fallback
	}
	return -1
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(ext), "."))
}
