package store

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteStore implements IndexStore on SQLite FTS5.
//
// Every index gets its own FTS5 table with one column per searchable field.
// Stored fields live as JSON in the shared documents table, whose seq column
// doubles as the FTS rowid and the insertion order.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	path     string
	language string
	tables   map[string]sqliteIndex
	closed   bool
}

type sqliteIndex struct {
	table  string
	fields []Field
}

var _ IndexStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at path. An empty path is in-memory.
func NewSQLiteStore(path, language string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		if err := validateSQLiteIntegrity(path); err != nil {
			slog.Warn("sqlite_store_corrupted",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("database %s is corrupted: %w", path, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: writers serialize and :memory: stays one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{
		db:       db,
		path:     path,
		language: normalizeLanguage(language, LanguageChinese),
		tables:   make(map[string]sqliteIndex),
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// validateSQLiteIntegrity runs PRAGMA integrity_check on an existing file.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS indexes (
		name       TEXT PRIMARY KEY,
		fts_table  TEXT NOT NULL,
		fields     TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		index_name TEXT NOT NULL,
		doc_id     TEXT NOT NULL,
		fields     TEXT NOT NULL,
		UNIQUE (index_name, doc_id)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ftsTableName derives a safe, stable table name from an index name.
func ftsTableName(name string) string {
	sum := sha1.Sum([]byte(name))
	return "fts_" + hex.EncodeToString(sum[:8])
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CreateIndex creates the named index or returns ErrIndexExists.
func (s *SQLiteStore) CreateIndex(ctx context.Context, name string, fields []Field) error {
	if err := validateIndexName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.tables[name]; ok {
		return ErrIndexExists
	}

	meta, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	var columns []string
	for _, f := range fields {
		if f.Searchable() {
			columns = append(columns, quoteIdent(f.Name))
		}
	}
	if len(columns) == 0 {
		return fmt.Errorf("index %s has no searchable fields", name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	table := ftsTableName(name)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO indexes (name, fts_table, fields, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, table, string(meta), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to register index %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIndexExists
	}

	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING fts5(%s, tokenize='unicode61')`,
		quoteIdent(table), strings.Join(columns, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create fts table for %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index %s: %w", name, err)
	}

	s.tables[name] = sqliteIndex{table: table, fields: fields}
	return nil
}

// lookup returns the index definition, reading it from the database on first use.
func (s *SQLiteStore) lookup(ctx context.Context, name string) (sqliteIndex, error) {
	s.mu.RLock()
	ix, ok := s.tables[name]
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return sqliteIndex{}, ErrClosed
	}
	if ok {
		return ix, nil
	}

	var table, meta string
	err := s.db.QueryRowContext(ctx,
		`SELECT fts_table, fields FROM indexes WHERE name = ?`, name).Scan(&table, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return sqliteIndex{}, ErrIndexNotFound
	}
	if err != nil {
		return sqliteIndex{}, fmt.Errorf("failed to load index %s: %w", name, err)
	}

	var fields []Field
	if err := json.Unmarshal([]byte(meta), &fields); err != nil {
		return sqliteIndex{}, fmt.Errorf("failed to decode fields of %s: %w", name, err)
	}

	ix = sqliteIndex{table: table, fields: fields}
	s.mu.Lock()
	s.tables[name] = ix
	s.mu.Unlock()
	return ix, nil
}

// AddDocument inserts doc unless docID is already present.
func (s *SQLiteStore) AddDocument(ctx context.Context, index, docID string, doc Document, language string) error {
	ix, err := s.lookup(ctx, index)
	if err != nil {
		return err
	}
	language = normalizeLanguage(language, s.language)

	stored := make(Document, len(ix.fields))
	var (
		columns []string
		values  []any
	)
	for _, f := range ix.fields {
		if _, ok := doc[f.Name]; !ok {
			continue
		}
		if f.Type == FieldNumeric {
			stored[f.Name] = doc.Int(f.Name)
			continue
		}
		text := fmt.Sprint(doc[f.Name])
		stored[f.Name] = text
		if f.Searchable() {
			columns = append(columns, quoteIdent(f.Name))
			values = append(values, strings.Join(Tokenize(text, language), " "))
		}
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", docID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents (index_name, doc_id, fields) VALUES (?, ?, ?)
		 ON CONFLICT(index_name, doc_id) DO NOTHING`,
		index, docID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert document %s: %w", docID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentExists
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read rowid of %s: %w", docID, err)
	}

	if len(columns) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
		stmt := fmt.Sprintf(`INSERT INTO %s (rowid, %s) VALUES (?, %s)`,
			quoteIdent(ix.table), strings.Join(columns, ", "), placeholders)
		if _, err := tx.ExecContext(ctx, stmt, append([]any{seq}, values...)...); err != nil {
			return fmt.Errorf("failed to index document %s: %w", docID, err)
		}
	}

	return tx.Commit()
}

// Query runs an FTS5 MATCH weighted by bm25() column weights.
func (s *SQLiteStore) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	start := time.Now()

	ix, err := s.lookup(ctx, req.Index)
	if err != nil {
		return nil, err
	}

	match := ftsMatchExpression(req.Text, normalizeLanguage(req.Language, s.language))
	if match == "" {
		return &QueryResult{Duration: time.Since(start)}, nil
	}

	var weights []string
	for _, f := range ix.fields {
		if f.Searchable() {
			weights = append(weights, fmt.Sprintf("%g", f.Weight))
		}
	}

	table := quoteIdent(ix.table)
	order := fmt.Sprintf("bm25(%s, %s), d.seq ASC", table, strings.Join(weights, ", "))
	args := []any{match}
	if req.SortField != "" {
		dir := "ASC"
		if req.SortDesc {
			dir = "DESC"
		}
		order = fmt.Sprintf("json_extract(d.fields, ?) %s, d.seq ASC", dir)
		args = append(args, "$."+req.SortField)
	}
	args = append(args, max(req.Count, 0), max(req.Start, 0))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int
	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s MATCH ?`, table, table)
	if err := s.db.QueryRowContext(ctx, countSQL, match).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	querySQL := fmt.Sprintf(`
		SELECT d.doc_id, d.fields
		FROM %s
		JOIN documents d ON d.seq = %s.rowid
		WHERE %s MATCH ?
		ORDER BY %s
		LIMIT ? OFFSET ?`, table, table, table, order)

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, max(req.Count, 0))
	for rows.Next() {
		var docID, payload string
		if err := rows.Scan(&docID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, Hit{DocID: docID, Fields: decodeStored(ix.fields, payload)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return &QueryResult{
		Hits:     hits,
		Total:    total,
		Duration: time.Since(start),
	}, nil
}

func decodeStored(fields []Field, payload string) Document {
	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Document{}
	}
	return decodeFields(fields, raw)
}

// Stats returns document counts per index.
func (s *SQLiteStore) Stats(ctx context.Context) ([]IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.name, COUNT(d.seq)
		FROM indexes i
		LEFT JOIN documents d ON d.index_name = i.name
		GROUP BY i.name
		ORDER BY i.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	defer rows.Close()

	var stats []IndexStats
	for rows.Next() {
		var st IndexStats
		if err := rows.Scan(&st.Name, &st.Documents); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
