package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pmatheus/nsrl-filter/internal/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

const header = "Name,Path,Extension,Size,Created,Modified,MD5,SHA1"

var defaultLayout = Layout{MD5Field: 6, SHA1Field: 7, ExtensionField: 2}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}

type streamResult struct {
	records   []*models.Record
	malformed []*MalformedRecordError
	filtered  []int
}

func collect(t *testing.T, r *Reader) streamResult {
	t.Helper()
	var res streamResult
	out := make(chan *models.Record, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- r.Stream(context.Background(), out, Hooks{
			Malformed: func(e *MalformedRecordError) { res.malformed = append(res.malformed, e) },
			Filtered:  func(line int) { res.filtered = append(res.filtered, line) },
		})
		close(out)
	}()
	for rec := range out {
		res.records = append(res.records, rec)
	}
	require.NoError(t, <-errc)
	return res
}

func TestStream_ExtractsFixedFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in.csv", header+"\n"+
		"a.exe,C:\\a.exe,exe,10,x,y,D41D8CD98F00B204E9800998ECF8427E,DA39A3EE5E6B4B0D3255BFEF95601890AFD80709\n"+
		"b.dll,C:\\b.dll,dll,20,x,y,,\n")

	r, err := Open(fs, "/in.csv", defaultLayout)
	require.NoError(t, err)
	assert.Equal(t, strings.Split(header, ","), r.Header())

	res := collect(t, r)
	require.Len(t, res.records, 2)

	first := res.records[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", first.MD5)
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", first.SHA1)
	assert.Equal(t, "C:\\a.exe", first.Fields[1])
	assert.Equal(t, "DA39A3EE5E6B4B0D3255BFEF95601890AFD80709", first.Fields[7])

	assert.True(t, res.records[1].Empty())
	assert.Equal(t, 3, res.records[1].Line)
}

func TestStream_SkipsMalformedRows(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in.csv", header+"\n"+
		"short,row\n"+
		"ok,p,exe,1,x,y,aa,bb\n"+
		"bad \"quote,p,exe,1,x,y,cc,dd\n"+
		"too,many,fields,1,x,y,ee,ff,extra\n"+
		"ok2,p,exe,1,x,y,11,22\n")

	r, err := Open(fs, "/in.csv", defaultLayout)
	require.NoError(t, err)

	res := collect(t, r)
	require.Len(t, res.records, 2)
	assert.Equal(t, "bb", res.records[0].SHA1)
	assert.Equal(t, "22", res.records[1].SHA1)

	require.Len(t, res.malformed, 3)
	assert.Equal(t, 2, res.malformed[0].Line)
	assert.Equal(t, 2, res.malformed[0].Fields)
	assert.Equal(t, 8, res.malformed[0].Want)
	assert.True(t, errors.Is(res.malformed[0], ErrMalformedRecord))
	assert.Equal(t, 4, res.malformed[1].Line)
	assert.Error(t, res.malformed[1].Err)
	assert.Equal(t, 5, res.malformed[2].Line)
}

func TestStream_UnterminatedQuoteCostsOnlyItsLine(t *testing.T) {
	for _, lazy := range []bool{false, true} {
		t.Run(map[bool]string{false: "strict", true: "lazy"}[lazy], func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/in.csv", header+"\n"+
				"a,p,exe,1,x,y,aa,bb\n"+
				"b,\"p,exe,1,x,y,cc,dd\n"+
				"c,p,exe,1,x,y,ee,ff\r\n"+
				"\n"+
				"d,p,exe,1,x,y,gg,hh")

			layout := defaultLayout
			layout.LazyQuotes = lazy
			r, err := Open(fs, "/in.csv", layout)
			require.NoError(t, err)

			res := collect(t, r)
			require.Len(t, res.records, 3)
			assert.Equal(t, []int{2, 4, 6}, []int{res.records[0].Line, res.records[1].Line, res.records[2].Line})
			assert.Equal(t, "ff", res.records[1].SHA1)
			assert.Equal(t, "hh", res.records[2].SHA1)

			require.Len(t, res.malformed, 1)
			assert.Equal(t, 3, res.malformed[0].Line)
		})
	}
}

func TestStream_Restartable(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in.csv", header+"\na,p,exe,1,x,y,aa,bb\nb,p,exe,1,x,y,cc,dd\n")

	r, err := Open(fs, "/in.csv", defaultLayout)
	require.NoError(t, err)

	first := collect(t, r)
	second := collect(t, r)
	assert.Equal(t, first.records, second.records)
	assert.Len(t, second.records, 2)
}

func TestStream_ExtensionFilter(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in.csv", "Name,Path,Size,EXTENSION,x,y,MD5,SHA1\n"+
		"a,p,1,EXE,x,y,aa,bb\n"+
		"b,p,1,.dll,x,y,cc,dd\n"+
		"c,p,1,txt,x,y,ee,ff\n")

	layout := defaultLayout
	layout.Extensions = []string{".exe", "DLL"}
	r, err := Open(fs, "/in.csv", layout)
	require.NoError(t, err)

	res := collect(t, r)
	require.Len(t, res.records, 2)
	assert.Equal(t, "a", res.records[0].Fields[0])
	assert.Equal(t, "b", res.records[1].Fields[0])
	assert.Equal(t, []int{4}, res.filtered)
}

func TestStream_ExtensionFilterFallbackField(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in.csv", "Name,Path,Ext,Size,x,y,MD5,SHA1\n"+
		"a,p,sys,1,x,y,aa,bb\n"+
		"b,p,txt,1,x,y,cc,dd\n")

	layout := defaultLayout
	layout.Extensions = []string{"sys"}
	r, err := Open(fs, "/in.csv", layout)
	require.NoError(t, err)

	res := collect(t, r)
	require.Len(t, res.records, 1)
	assert.Equal(t, "a", res.records[0].Fields[0])
}

func TestStream_TabDelimited(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in.tsv", "a\tb\tc\n1\tMD5X\tSHAX\n")

	r, err := Open(fs, "/in.tsv", Layout{MD5Field: 1, SHA1Field: 2, Comma: '\t'})
	require.NoError(t, err)

	res := collect(t, r)
	require.Len(t, res.records, 1)
	assert.Equal(t, "md5x", res.records[0].MD5)
	assert.Equal(t, "shax", res.records[0].SHA1)
}

func TestOpen_DecodesByteOrderMarks(t *testing.T) {
	content := header + "\na,p,exe,1,x,y,aa,bb\n"

	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(content)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/utf16.csv", utf16)
	writeFile(t, fs, "/utf8bom.csv", "\uFEFF"+content)

	for _, path := range []string{"/utf16.csv", "/utf8bom.csv"} {
		t.Run(path, func(t *testing.T) {
			r, err := Open(fs, path, defaultLayout)
			require.NoError(t, err)
			assert.Equal(t, "Name", r.Header()[0])

			res := collect(t, r)
			require.Len(t, res.records, 1)
			assert.Equal(t, "bb", res.records[0].SHA1)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/narrow.csv", "a,b,c\n1,2,3\n")
	writeFile(t, fs, "/empty.csv", "")

	_, err := Open(fs, "/missing.csv", defaultLayout)
	assert.ErrorIs(t, err, ErrInputUnreadable)

	_, err = Open(fs, "/narrow.csv", defaultLayout)
	assert.ErrorIs(t, err, ErrBadHeader)

	_, err = Open(fs, "/empty.csv", defaultLayout)
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestStream_Cancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in.csv", header+"\na,p,exe,1,x,y,aa,bb\nb,p,exe,1,x,y,cc,dd\n")

	r, err := Open(fs, "/in.csv", defaultLayout)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan *models.Record) // never drained
	err = r.Stream(ctx, out, Hooks{})
	assert.ErrorIs(t, err, context.Canceled)
}
