package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tektoncd/tekton-lsp/internal/schema"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
    uri TEXT PRIMARY KEY,
    seq INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS resources (
    uri TEXT NOT NULL REFERENCES documents(uri) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    start_char INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    end_char INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS resources_key ON resources(kind, name);
CREATE TABLE IF NOT EXISTS refs (
    uri TEXT NOT NULL REFERENCES documents(uri) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    start_char INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    end_char INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS refs_key ON refs(kind, name);
`

// SQLiteStore keeps the index in a SQLite database, ":memory:" by default.
// A single connection serializes access, so each document update is one
// transaction on one database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMA: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) withTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Replace(uri string, resources []Resource, refs []Reference) error {
	return s.withTx(func(tx *sql.Tx) error {
		if err := deleteDocument(tx, uri); err != nil {
			return err
		}
		if _, err := tx.Exec(`
            INSERT INTO documents (uri, seq)
            VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents))
        `, uri); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		for _, r := range resources {
			if _, err := tx.Exec(`
                INSERT INTO resources (uri, kind, name, start_line, start_char, end_line, end_char)
                VALUES (?, ?, ?, ?, ?, ?, ?)
            `, uri, r.Kind.String(), r.Name,
				r.Range.Start.Line, r.Range.Start.Character, r.Range.End.Line, r.Range.End.Character); err != nil {
				return fmt.Errorf("failed to insert resource: %w", err)
			}
		}
		for _, r := range refs {
			if _, err := tx.Exec(`
                INSERT INTO refs (uri, kind, name, start_line, start_char, end_line, end_char)
                VALUES (?, ?, ?, ?, ?, ?, ?)
            `, uri, r.Kind.String(), r.Name,
				r.Range.Start.Line, r.Range.Start.Character, r.Range.End.Line, r.Range.End.Character); err != nil {
				return fmt.Errorf("failed to insert reference: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Remove(uri string) error {
	return s.withTx(func(tx *sql.Tx) error {
		return deleteDocument(tx, uri)
	})
}

// deleteDocument clears every table explicitly; foreign_keys is a
// per-connection pragma.
func deleteDocument(tx *sql.Tx, uri string) error {
	for _, table := range []string{"refs", "resources", "documents"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE uri = ?`, uri); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Resource(key Key) (Resource, bool, error) {
	r := Resource{Kind: key.Kind, Name: key.Name}
	err := s.db.QueryRow(`
        SELECT r.uri, r.start_line, r.start_char, r.end_line, r.end_char
        FROM resources r JOIN documents d ON d.uri = r.uri
        WHERE r.kind = ? AND r.name = ?
        ORDER BY d.seq DESC, r.rowid ASC
        LIMIT 1
    `, key.Kind.String(), key.Name).Scan(&r.URI,
		&r.Range.Start.Line, &r.Range.Start.Character, &r.Range.End.Line, &r.Range.End.Character)
	if err == sql.ErrNoRows {
		return Resource{}, false, nil
	}
	if err != nil {
		return Resource{}, false, fmt.Errorf("failed to query resource: %w", err)
	}
	return r, true, nil
}

func (s *SQLiteStore) References(key Key) ([]Reference, error) {
	rows, err := s.db.Query(`
        SELECT uri, start_line, start_char, end_line, end_char
        FROM refs
        WHERE kind = ? AND name = ?
        ORDER BY uri, start_line, start_char, end_line, end_char
    `, key.Kind.String(), key.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}
	defer rows.Close()

	var refs []Reference
	for rows.Next() {
		r := Reference{Kind: key.Kind, Name: key.Name}
		if err := rows.Scan(&r.URI, &r.Range.Start.Line, &r.Range.Start.Character,
			&r.Range.End.Line, &r.Range.End.Character); err != nil {
			return nil, fmt.Errorf("failed to scan reference: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating references: %w", err)
	}
	return refs, nil
}

func (s *SQLiteStore) Resources() ([]Resource, error) {
	rows, err := s.db.Query(`
        SELECT uri, kind, name, start_line, start_char, end_line, end_char
        FROM resources
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		var r Resource
		var kind string
		if err := rows.Scan(&r.URI, &kind, &r.Name, &r.Range.Start.Line, &r.Range.Start.Character,
			&r.Range.End.Line, &r.Range.End.Character); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		r.Kind = schema.ParseKind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}
	sortResources(out)
	return out, nil
}

func (s *SQLiteStore) URIs() ([]string, error) {
	rows, err := s.db.Query(`SELECT uri FROM documents ORDER BY uri`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, uri)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*MemoryStore)(nil)
