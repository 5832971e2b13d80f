package sheet

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// SQLiteBook mirrors the spreadsheet layout in a local SQLite file. It backs
// offline runs and dry runs; rows keep their cells as a JSON array of strings.
type SQLiteBook struct {
	db *sql.DB
}

// DefaultDBPath is where the local mirror lives when no path is configured.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".garmin-briefing", "briefing.db")
}

// OpenSQLite opens (or creates) the mirror at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLiteBook, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	b := &SQLiteBook{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

func (b *SQLiteBook) migrate() error {
	var version int
	if err := b.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS sheet_rows (
			sheet TEXT NOT NULL,
			idx   INTEGER NOT NULL,
			cells TEXT NOT NULL,
			PRIMARY KEY (sheet, idx)
		)`)
	if err != nil {
		return fmt.Errorf("create sheet_rows: %w", err)
	}
	_, err = b.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

func (b *SQLiteBook) Table(name string) Table {
	return &sqliteTable{db: b.db, name: name}
}

func (b *SQLiteBook) Close() error { return b.db.Close() }

type sqliteTable struct {
	db   *sql.DB
	name string
}

func (t *sqliteTable) Name() string { return t.name }

func (t *sqliteTable) Rows(ctx context.Context) ([][]string, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY idx`, t.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, cells)
	}
	return out, rows.Err()
}

func (t *sqliteTable) Append(ctx context.Context, row []any) error {
	raw, err := json.Marshal(Cells(row))
	if err != nil {
		return err
	}
	_, err = t.db.ExecContext(ctx, `
		INSERT INTO sheet_rows (sheet, idx, cells)
		VALUES (?, (SELECT COALESCE(MAX(idx) + 1, 0) FROM sheet_rows WHERE sheet = ?), ?)`,
		t.name, t.name, string(raw))
	return err
}

func (t *sqliteTable) Update(ctx context.Context, row int, cells map[int]any) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT cells FROM sheet_rows WHERE sheet = ? AND idx = ?`, t.name, row).Scan(&raw)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	var current []string
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	for col, v := range cells {
		for len(current) <= col {
			current = append(current, "")
		}
		current[col] = Cell(v)
	}
	updated, err := json.Marshal(current)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sheet_rows SET cells = ? WHERE sheet = ? AND idx = ?`, string(updated), t.name, row); err != nil {
		return err
	}
	return tx.Commit()
}
