package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS covers (
	id TEXT PRIMARY KEY,
	record TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLite keeps one row per cover holding its JSON record.
type SQLite struct {
	db      *sql.DB
	timeout time.Duration
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(cover.ErrPersistence, "%s: open: %s", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrapf(cover.ErrPersistence, "%s: schema: %s", path, err)
	}

	return &SQLite{db: db, timeout: 5 * time.Second}, nil
}

func (s *SQLite) Load() (map[string]cover.Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id, record FROM covers`)
	if err != nil {
		return nil, errors.Wrapf(cover.ErrPersistence, "sqlite: query: %s", err)
	}
	defer rows.Close()

	records := map[string]cover.Record{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, errors.Wrapf(cover.ErrPersistence, "sqlite: scan: %s", err)
		}

		var r cover.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, errors.Wrapf(cover.ErrPersistence, "sqlite: %s: decode: %s", id, err)
		}
		records[id] = r
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(cover.ErrPersistence, "sqlite: %s", err)
	}

	return records, nil
}

func (s *SQLite) Save(records map[string]cover.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(cover.ErrPersistence, "sqlite: begin: %s", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	ids := make([]interface{}, 0, len(records))
	for id, r := range records {
		ids = append(ids, id)

		raw, err := json.Marshal(r)
		if err != nil {
			return errors.Wrapf(cover.ErrPersistence, "sqlite: %s: encode: %s", id, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO covers (id, record, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
			id, string(raw), now,
		); err != nil {
			return errors.Wrapf(cover.ErrPersistence, "sqlite: %s: upsert: %s", id, err)
		}
	}

	// covers gone from the configuration
	prune := `DELETE FROM covers`
	if len(ids) > 0 {
		prune += ` WHERE id NOT IN (?` + strings.Repeat(`, ?`, len(ids)-1) + `)`
	}
	if _, err := tx.ExecContext(ctx, prune, ids...); err != nil {
		return errors.Wrapf(cover.ErrPersistence, "sqlite: prune: %s", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(cover.ErrPersistence, "sqlite: commit: %s", err)
	}

	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
