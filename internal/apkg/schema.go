package apkg

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// driverName is a go-sqlite3 driver that knows the custom "unicase" collation
// the exporter declares on name columns. Without it SQLite refuses to use the
// indexes built on those columns.
const driverName = "sqlite3_apkg"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterCollation("unicase", func(a, b string) int {
				return strings.Compare(strings.ToLower(a), strings.ToLower(b))
			})
		},
	})
}

// requiredSchema lists every table and column the fixed queries rely on.
// Legacy collections keep note types as JSON inside the col table and have
// none of the dedicated tables, so they fail this check.
var requiredSchema = []struct {
	table   string
	columns []string
}{
	{"decks", []string{"id", "name"}},
	{"notetypes", []string{"id", "name", "config"}},
	{"fields", []string{"ntid", "ord", "name"}},
	{"templates", []string{"ntid", "ord", "name", "config"}},
	{"notes", []string{"id", "mid", "tags", "flds"}},
	{"cards", []string{"id", "nid", "did", "ord"}},
}

// SchemaReader runs the fixed read-only queries against a decompressed
// collection. It holds a single connection and must not be used concurrently.
type SchemaReader struct {
	db      *sql.DB
	tempDir string
}

// OpenSchemaReader materializes the decompressed collection into a private
// temporary file, opens it read-only and validates the schema.
func OpenSchemaReader(ctx context.Context, raw []byte) (*SchemaReader, error) {
	tempDir, err := os.MkdirTemp("", "apkg-collection-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	dbPath := tempDir + string(os.PathSeparator) + "collection.db"
	if err := os.WriteFile(dbPath, raw, 0600); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to write collection: %w", err)
	}

	db, err := sql.Open(driverName, "file:"+dbPath+"?mode=ro")
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	db.SetMaxOpenConns(1)

	r := &SchemaReader{db: db, tempDir: tempDir}
	if err := r.Validate(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the connection and removes the temporary copy.
func (r *SchemaReader) Close() error {
	err := r.db.Close()
	if rmErr := os.RemoveAll(r.tempDir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// Validate checks that every required table and column exists.
func (r *SchemaReader) Validate(ctx context.Context) error {
	for _, spec := range requiredSchema {
		columns, err := r.tableColumns(ctx, spec.table)
		if err != nil {
			return err
		}
		if len(columns) == 0 {
			return fmt.Errorf("%w: table %q not found", ErrSchemaMismatch, spec.table)
		}
		for _, col := range spec.columns {
			if _, ok := columns[col]; !ok {
				return fmt.Errorf("%w: column %s.%s not found", ErrSchemaMismatch, spec.table, col)
			}
		}
	}
	return nil
}

func (r *SchemaReader) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A file that is not a database at all surfaces here first.
		return nil, fmt.Errorf("%w: inspect table %q: %v", ErrCorruptArchive, table, err)
	}
	defer rows.Close()

	columns := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: inspect table %q: %v", ErrCorruptArchive, table, err)
	}
	return columns, nil
}

// Decks returns all decks ordered by id.
func (r *SchemaReader) Decks(ctx context.Context) ([]DeckRecord, error) {
	var decks []DeckRecord
	err := r.query(ctx, `SELECT id, name FROM decks ORDER BY id`, func(rows *sql.Rows) error {
		var d DeckRecord
		if err := scanNamed(rows, map[string]any{"id": &d.ID, "name": &d.Name}); err != nil {
			return err
		}
		decks = append(decks, d)
		return nil
	})
	return decks, err
}

// NoteTypes returns all note types ordered by id.
func (r *SchemaReader) NoteTypes(ctx context.Context) ([]NoteTypeRow, error) {
	var out []NoteTypeRow
	err := r.query(ctx, `SELECT id, name, config FROM notetypes ORDER BY id`, func(rows *sql.Rows) error {
		var nt NoteTypeRow
		if err := scanNamed(rows, map[string]any{"id": &nt.ID, "name": &nt.Name, "config": &nt.Config}); err != nil {
			return err
		}
		out = append(out, nt)
		return nil
	})
	return out, err
}

// Fields returns all field definitions ordered by note type and ordinal.
func (r *SchemaReader) Fields(ctx context.Context) ([]FieldRow, error) {
	var out []FieldRow
	err := r.query(ctx, `SELECT ntid, ord, name FROM fields ORDER BY ntid, ord`, func(rows *sql.Rows) error {
		var f FieldRow
		if err := scanNamed(rows, map[string]any{"ntid": &f.NoteTypeID, "ord": &f.Ordinal, "name": &f.Name}); err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

// Templates returns all card templates ordered by note type and ordinal.
func (r *SchemaReader) Templates(ctx context.Context) ([]TemplateRow, error) {
	var out []TemplateRow
	err := r.query(ctx, `SELECT ntid, ord, name, config FROM templates ORDER BY ntid, ord`, func(rows *sql.Rows) error {
		var t TemplateRow
		if err := scanNamed(rows, map[string]any{"ntid": &t.NoteTypeID, "ord": &t.Ordinal, "name": &t.Name, "config": &t.Config}); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

// Notes returns all notes ordered by id.
func (r *SchemaReader) Notes(ctx context.Context) ([]NoteRow, error) {
	var out []NoteRow
	err := r.query(ctx, `SELECT id, mid, tags, flds FROM notes ORDER BY id`, func(rows *sql.Rows) error {
		var n NoteRow
		if err := scanNamed(rows, map[string]any{"id": &n.ID, "mid": &n.NoteTypeID, "tags": &n.Tags, "flds": &n.Fields}); err != nil {
			return err
		}
		out = append(out, n)
		return nil
	})
	return out, err
}

// Cards returns all cards ordered by id.
func (r *SchemaReader) Cards(ctx context.Context) ([]CardRecord, error) {
	var out []CardRecord
	err := r.query(ctx, `SELECT id, nid, did, ord FROM cards ORDER BY id`, func(rows *sql.Rows) error {
		var c CardRecord
		if err := scanNamed(rows, map[string]any{"id": &c.ID, "nid": &c.NoteID, "did": &c.DeckID, "ord": &c.TemplateOrdinal}); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (r *SchemaReader) query(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return nil
}

// scanNamed scans the current row into dest by column name, so the result
// does not depend on the column order of the query.
func scanNamed(rows *sql.Rows, dest map[string]any) error {
	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	targets := make([]any, len(columns))
	for i, col := range columns {
		if d, ok := dest[col]; ok {
			targets[i] = d
			delete(dest, col)
			continue
		}
		targets[i] = new(any)
	}
	if len(dest) > 0 {
		missing := make([]string, 0, len(dest))
		for col := range dest {
			missing = append(missing, col)
		}
		sort.Strings(missing)
		return fmt.Errorf("%w: result is missing columns %v", ErrSchemaMismatch, missing)
	}

	return rows.Scan(targets...)
}
