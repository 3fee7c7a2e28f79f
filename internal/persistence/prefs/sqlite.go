package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"lightcycle.ai/internal/sim/voxel"
)

type sqliteSink struct {
	db *sql.DB
}

func openSQLite(path string) (*sqliteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS owner_colors (
		owner TEXT PRIMARY KEY,
		color TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteSink{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteSink) load() (map[uuid.UUID]voxel.Color, error) {
	rows, err := s.db.Query(`SELECT owner, color FROM owner_colors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[uuid.UUID]voxel.Color{}
	for rows.Next() {
		var owner, name string
		if err := rows.Scan(&owner, &name); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(owner)
		if err != nil {
			continue
		}
		c, ok := voxel.ParseColor(name)
		if !ok {
			continue
		}
		out[id] = c
	}
	return out, rows.Err()
}

func (s *sqliteSink) write(batch []row) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO owner_colors(owner,color,updated_at) VALUES(?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range batch {
		if _, err := stmt.ExecContext(ctx, r.Owner.String(), r.Color.String(), now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteSink) close() error { return s.db.Close() }
