package transport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lychee-technology/formedit"
	_ "modernc.org/sqlite"
)

// SQLite keeps collections in a local database file with the same row layout
// as the Postgres transport.
type SQLite struct {
	db    *sql.DB
	table string
}

// OpenSQLite opens the database at path and creates the record table.
func OpenSQLite(ctx context.Context, cfg formedit.SQLiteConfig) (*SQLite, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db, table: quoteSQLiteIdent(cfg.Table)}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (collection, id)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create record table: %w", err)
	}
	return nil
}

func (s *SQLite) FetchCollection(ctx context.Context, name string) (*formedit.CollectionPage, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE collection = ? ORDER BY seq`, s.table), name)
	if err != nil {
		return nil, formedit.NewTransportError(name, "query collection", err)
	}
	defer rows.Close()

	page := &formedit.CollectionPage{Meta: formedit.NewRecord(), Items: []formedit.Record{}}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, formedit.NewTransportError(name, "scan record", err)
		}
		var rec formedit.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, formedit.NewEditorError(formedit.ErrorTypeTransport, formedit.ErrCodeInvalidPayload, "stored record is not readable").
				WithRecord(name, "").WithCause(err)
		}
		page.Items = append(page.Items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, formedit.NewTransportError(name, "iterate records", err)
	}
	return page, nil
}

func (s *SQLite) CreateRecord(ctx context.Context, name string, raw formedit.Record) (formedit.Record, error) {
	created := withID(raw, newRecordID())
	data, err := json.Marshal(created)
	if err != nil {
		return formedit.Record{}, formedit.NewInternalError("encode record", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (collection, id, data) VALUES (?, ?, ?)`, s.table)
	if _, err := s.db.ExecContext(ctx, query, name, created.ID(), string(data)); err != nil {
		return formedit.Record{}, formedit.NewTransportError(name, "insert record", err)
	}
	return created, nil
}

func (s *SQLite) UpdateRecord(ctx context.Context, name, id string, raw formedit.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return formedit.NewTransportError(name, "begin transaction", err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE collection = ? AND id = ?`, s.table), name, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return formedit.NewRecordNotFoundError(name, id)
	}
	if err != nil {
		return formedit.NewTransportError(name, "read record", err)
	}

	var current formedit.Record
	if err := json.Unmarshal([]byte(data), &current); err != nil {
		return formedit.NewEditorError(formedit.ErrorTypeTransport, formedit.ErrCodeInvalidPayload, "stored record is not readable").
			WithRecord(name, id).WithCause(err)
	}
	for _, k := range raw.Keys() {
		if k == formedit.IDKey {
			continue
		}
		current.Set(k, raw.Value(k))
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return formedit.NewInternalError("encode record", err)
	}

	query := fmt.Sprintf(`UPDATE %s SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND id = ?`, s.table)
	if _, err := tx.ExecContext(ctx, query, string(merged), name, id); err != nil {
		return formedit.NewTransportError(name, "update record", err)
	}
	if err := tx.Commit(); err != nil {
		return formedit.NewTransportError(name, "commit transaction", err)
	}
	return nil
}

func (s *SQLite) DeleteRecord(ctx context.Context, name, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE collection = ? AND id = ?`, s.table), name, id)
	if err != nil {
		return formedit.NewTransportError(name, "delete record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return formedit.NewTransportError(name, "delete record", err)
	}
	if n == 0 {
		return formedit.NewRecordNotFoundError(name, id)
	}
	return nil
}
