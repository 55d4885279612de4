package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/pmatheus/nsrl-filter/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRefDB creates a SQLite reference database from the given statements.
func newRefDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ref.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}

// openTestStore opens path through the store package.
func openTestStore(t *testing.T, path string, readOnly bool) *Store {
	t.Helper()
	st, err := Open(context.Background(), Options{
		Driver:   "sqlite",
		Database: path,
		MaxConns: 4,
		ReadOnly: readOnly,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

const metadataTable = `CREATE TABLE METADATA (sha256 TEXT, sha1 TEXT, md5 TEXT, file_name TEXT, file_size INTEGER, package_id INTEGER)`

// ==================== Open Tests ====================

func TestOpen_MissingDatabase(t *testing.T) {
	_, err := Open(context.Background(), Options{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "missing.db"),
	})
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle", Database: "x"})
	assert.Error(t, err)
}

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"sqlite", "postgres", "sqlserver"} {
		d, err := DialectFor(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
	}
}

func TestPlaceholders(t *testing.T) {
	pg, _ := DialectFor("postgres")
	ms, _ := DialectFor("sqlserver")
	lite, _ := DialectFor("sqlite")

	assert.Equal(t, "$1, $2, $3", placeholders(pg, 3))
	assert.Equal(t, "@p1, @p2", placeholders(ms, 2))
	assert.Equal(t, "?, ?", placeholders(lite, 2))
	assert.Equal(t, `"we""ird"`, lite.QuoteIdent(`we"ird`))
	assert.Equal(t, "[we]]ird]", ms.QuoteIdent("we]ird"))
}

// ==================== Probe Tests ====================

func TestProbe_PrefersMetadata(t *testing.T) {
	path := newRefDB(t,
		metadataTable,
		`CREATE TABLE FILE (sha1 TEXT, md5 TEXT)`,
	)
	st := openTestStore(t, path, false)

	schema, err := st.Probe(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, models.Schema{Table: "METADATA", SHA1Column: "sha1", MD5Column: "md5"}, schema)

	got, err := st.Schema()
	require.NoError(t, err)
	assert.Equal(t, schema, got)
}

func TestProbe_FileViewWithOddColumnNames(t *testing.T) {
	path := newRefDB(t,
		`CREATE TABLE base (id INTEGER PRIMARY KEY, "SHA-1" TEXT, MD5 TEXT)`,
		`CREATE VIEW file AS SELECT "SHA-1", MD5 FROM base`,
	)
	st := openTestStore(t, path, false)

	schema, err := st.Probe(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "file", schema.Table)
	assert.True(t, schema.IsView)
	assert.Equal(t, "SHA-1", schema.SHA1Column)
	assert.Equal(t, "MD5", schema.MD5Column)
}

func TestProbe_SkipsTableWithoutHashColumns(t *testing.T) {
	path := newRefDB(t,
		`CREATE TABLE METADATA (name TEXT)`,
		`CREATE TABLE FILE (md5 TEXT)`,
	)
	st := openTestStore(t, path, false)

	schema, err := st.Probe(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "FILE", schema.Table)
	assert.Equal(t, "", schema.SHA1Column)
	assert.Equal(t, "md5", schema.MD5Column)
}

func TestProbe_PreferredTable(t *testing.T) {
	path := newRefDB(t,
		metadataTable,
		`CREATE TABLE hashes (Sha_1 TEXT)`,
	)
	st := openTestStore(t, path, false)

	schema, err := st.Probe(context.Background(), "HASHES")
	require.NoError(t, err)
	assert.Equal(t, "hashes", schema.Table)
	assert.Equal(t, "Sha_1", schema.SHA1Column)
}

func TestProbe_PreferredTableIsStrict(t *testing.T) {
	path := newRefDB(t,
		metadataTable,
		`CREATE TABLE hashes (name TEXT)`,
	)
	st := openTestStore(t, path, false)

	_, err := st.Probe(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSchemaNotFound)
	assert.Contains(t, err.Error(), "missing")
	assert.NotContains(t, err.Error(), "METADATA")

	_, err = st.Probe(context.Background(), "hashes")
	assert.ErrorIs(t, err, ErrSchemaNotFound)

	_, err = st.Schema()
	assert.ErrorIs(t, err, ErrNotProbed)
}

func TestProbe_SchemaNotFound(t *testing.T) {
	path := newRefDB(t, `CREATE TABLE PKG (name TEXT)`)
	st := openTestStore(t, path, false)

	_, err := st.Probe(context.Background(), "")
	assert.ErrorIs(t, err, ErrSchemaNotFound)

	_, err = st.Schema()
	assert.ErrorIs(t, err, ErrNotProbed)
}

// ==================== Index Tests ====================

func TestEnsureIndexes_Idempotent(t *testing.T) {
	path := newRefDB(t, metadataTable)
	ctx := context.Background()

	st := openTestStore(t, path, false)
	_, err := st.Probe(ctx, "")
	require.NoError(t, err)

	report, err := st.EnsureIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sha1", "md5"}, report.Created)
	assert.Empty(t, report.Existing)

	// A fresh handle sees the persisted indexes and builds nothing
	st2 := openTestStore(t, path, false)
	_, err = st2.Probe(ctx, "")
	require.NoError(t, err)

	report, err = st2.EnsureIndexes(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Created)
	assert.Equal(t, []string{"sha1", "md5"}, report.Existing)

	state, err := st2.IndexState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"sha1": true, "md5": true}, state)
}

func TestEnsureIndexes_DetectsForeignIndex(t *testing.T) {
	path := newRefDB(t,
		metadataTable,
		`CREATE INDEX some_other_name ON METADATA (sha1, md5)`,
	)
	ctx := context.Background()
	st := openTestStore(t, path, false)
	_, err := st.Probe(ctx, "")
	require.NoError(t, err)

	report, err := st.EnsureIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sha1"}, report.Existing)
	assert.Equal(t, []string{"md5"}, report.Created)
}

func TestEnsureIndexes_SkipsView(t *testing.T) {
	path := newRefDB(t,
		`CREATE TABLE base (sha1 TEXT)`,
		`CREATE VIEW FILE AS SELECT sha1 FROM base`,
	)
	ctx := context.Background()
	st := openTestStore(t, path, false)
	_, err := st.Probe(ctx, "")
	require.NoError(t, err)

	report, err := st.EnsureIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sha1"}, report.Skipped)
	assert.Empty(t, report.Created)
}

func TestEnsureIndexes_ReadOnlyFails(t *testing.T) {
	path := newRefDB(t, metadataTable)
	ctx := context.Background()
	st := openTestStore(t, path, true)
	_, err := st.Probe(ctx, "")
	require.NoError(t, err)

	_, err = st.EnsureIndexes(ctx)
	assert.ErrorIs(t, err, ErrIndexCreation)

	// Nothing was left behind
	rw := openTestStore(t, path, false)
	_, err = rw.Probe(ctx, "")
	require.NoError(t, err)
	state, err := rw.IndexState(ctx)
	require.NoError(t, err)
	assert.False(t, state["sha1"])
	assert.False(t, state["md5"])
}

func TestEnsureIndexes_RequiresProbe(t *testing.T) {
	st := openTestStore(t, newRefDB(t, metadataTable), false)
	_, err := st.EnsureIndexes(context.Background())
	assert.ErrorIs(t, err, ErrNotProbed)
}

// ==================== Lookup Tests ====================

func TestLookup_CaseInsensitive(t *testing.T) {
	path := newRefDB(t,
		metadataTable,
		`INSERT INTO METADATA (sha1, md5) VALUES ('AA11BB22', 'CC33'), ('dd44', 'ee55'), ('dd44', 'ee55')`,
	)
	ctx := context.Background()
	st := openTestStore(t, path, true)
	_, err := st.Probe(ctx, "")
	require.NoError(t, err)

	found, err := st.Lookup(ctx, models.SHA1, []string{"aa11bb22", "dd44", "ffff"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"aa11bb22": {}, "dd44": {}}, found)

	found, err = st.Lookup(ctx, models.MD5, []string{"cc33", "aa11bb22"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"cc33": {}}, found)
}

func TestLookup_MixedCaseReference(t *testing.T) {
	path := newRefDB(t,
		metadataTable,
		`INSERT INTO METADATA (sha1, md5) VALUES ('AbCdEf0123', 'CC33'), ('FFFF', 'ee55')`,
	)
	ctx := context.Background()
	st := openTestStore(t, path, true)
	_, err := st.Probe(ctx, "")
	require.NoError(t, err)

	found, err := st.Lookup(ctx, models.SHA1, []string{"abcdef0123", "ffff", "0000"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"abcdef0123": {}, "ffff": {}}, found)

	// Uniformly cased columns keep the indexable comparison
	found, err = st.Lookup(ctx, models.MD5, []string{"cc33", "ee55"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, map[string]bool{"sha1": true, "md5": false}, st.mixedCase)
}

func TestSQLiteDialect_HasMixedCase(t *testing.T) {
	path := newRefDB(t,
		`CREATE TABLE t (upper_only TEXT, lower_only TEXT, mixed TEXT, digits TEXT)`,
		`INSERT INTO t VALUES ('AB12', 'ab12', 'ab12', '1234'), ('CD34', 'cd34', 'Cd34', NULL)`,
	)
	st := openTestStore(t, path, true)
	d, _ := DialectFor("sqlite")

	for col, want := range map[string]bool{"upper_only": false, "lower_only": false, "mixed": true, "digits": false} {
		got, err := d.HasMixedCase(context.Background(), st.db, "t", col)
		require.NoError(t, err)
		assert.Equal(t, want, got, col)
	}
}

func TestLookup_MissingColumn(t *testing.T) {
	path := newRefDB(t, `CREATE TABLE FILE (sha1 TEXT)`, `INSERT INTO FILE VALUES ('abc')`)
	ctx := context.Background()
	st := openTestStore(t, path, true)
	_, err := st.Probe(ctx, "")
	require.NoError(t, err)

	found, err := st.Lookup(ctx, models.MD5, []string{"abc"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLookup_SpansStatementLimit(t *testing.T) {
	path := newRefDB(t, `CREATE TABLE FILE (sha1 TEXT)`)
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	tx, err := db.Begin()
	require.NoError(t, err)
	const n = 6000
	for i := 0; i < n; i++ {
		_, err := tx.Exec(`INSERT INTO FILE (sha1) VALUES (?)`, fmt.Sprintf("%040X", i))
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
	require.NoError(t, db.Close())

	ctx := context.Background()
	st := openTestStore(t, path, true)
	_, err = st.Probe(ctx, "")
	require.NoError(t, err)

	// Every other hash exists; 2*n case variants need several statements
	hashes := make([]string, 0, n)
	for i := 0; i < n*2; i += 2 {
		hashes = append(hashes, fmt.Sprintf("%040x", i))
	}
	found, err := st.Lookup(ctx, models.SHA1, hashes)
	require.NoError(t, err)
	assert.Len(t, found, n/2)
}

func TestLookup_RequiresProbe(t *testing.T) {
	st := openTestStore(t, newRefDB(t, metadataTable), true)
	_, err := st.Lookup(context.Background(), models.SHA1, []string{"a"})
	assert.ErrorIs(t, err, ErrNotProbed)
}

func TestCaseVariants(t *testing.T) {
	assert.Equal(t, []string{"ab", "AB", "12"}, caseVariants([]string{"ab", "AB", "", "12"}))
	assert.Equal(t, []string{"ab", "12"}, lowerDistinct([]string{"ab", "AB", "", "12"}))
}

func TestMatchHashColumns(t *testing.T) {
	sha1, md5 := matchHashColumns([]string{"file_name", "SHA_1", "Md-5", "sha1"})
	assert.Equal(t, "SHA_1", sha1)
	assert.Equal(t, "Md-5", md5)
}
