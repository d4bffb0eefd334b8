/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"blockstudio/internal/block"
	applog "blockstudio/internal/log"
	"blockstudio/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName holds derived data under the store root.
	IndexDirName  = ".bst"
	IndexFileName = "index.sqlite"

	// DefaultKeepSnapshots bounds the snapshot history per page.
	DefaultKeepSnapshots = 20

	// schemaVersion tracks the local SQLite schema for the embedded index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// Index is the embedded SQLite index of a page store: one search row per block and a
// bounded history of tree snapshots per page.
type Index struct {
	// KeepSnapshots is the per-page snapshot cap applied after every save.
	KeepSnapshots int

	db   *sql.DB
	path string
	log  *slog.Logger
}

// IndexPath returns the full path to the embedded index database file under root.
func IndexPath(root string) string {
	return filepath.Join(root, IndexDirName, IndexFileName)
}

// OpenIndex opens (creating if needed) the index under root. A file that is not a
// usable database is moved to .bst/backups and replaced by a fresh index.
func OpenIndex(ctx context.Context, root string) (*Index, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_open").With(slog.String("root", root))
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root is required")
	}
	path := IndexPath(root)
	db, err := openDB(ctx, path)
	if err == nil {
		if cerr := quickCheck(ctx, db); cerr != nil {
			_ = db.Close()
			err = cerr
		}
	}
	if err != nil {
		l.Warn("index unusable, rebuilding", slog.Any("err", err))
		backupIndexFile(path)
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			_ = os.Remove(p)
		}
		if db, err = openDB(ctx, path); err != nil {
			l.Error("index open failed", slog.Any("err", err))
			return nil, err
		}
	}
	l.Info("index ready", slog.String("path", path))
	return &Index{KeepSnapshots: DefaultKeepSnapshots, db: db, path: path, log: applog.WithComponent("storage")}, nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	// Convert to forward slashes for the SQLite URI.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Embedded usage: one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(chk), "ok") {
		return fmt.Errorf("quick_check: %s", chk)
	}
	if _, err := db.ExecContext(ctx, `SELECT 1 FROM blocks LIMIT 1;`); err != nil {
		return fmt.Errorf("probe blocks: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (x *Index) Close() error { return x.db.Close() }

// Path is the database file location.
func (x *Index) Path() string { return x.path }

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// A fresh database starts at schema 1 and migrates forward.
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// ensureIndexSchema creates the schema-1 tables and FTS structures if they do not exist.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS pages (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			blocks     INTEGER NOT NULL DEFAULT 0,
			indexed_at TEXT NOT NULL
		);`,
		// One row per block; text is what search matches against.
		`CREATE TABLE IF NOT EXISTS blocks (
			doc_id   INTEGER PRIMARY KEY,
			page_id  TEXT NOT NULL,
			block_id TEXT NOT NULL,
			kind     TEXT NOT NULL,
			path     TEXT NOT NULL,
			text     TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_page ON blocks(page_id);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_blocks USING fts5(
			text,
			content='blocks',
			content_rowid='doc_id',
			tokenize = 'unicode61'
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id      INTEGER PRIMARY KEY,
			page_id TEXT NOT NULL,
			ts      TEXT NOT NULL,
			tree    BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_page_ts ON snapshots(page_id, ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS blocks_ai AFTER INSERT ON blocks BEGIN
			INSERT INTO fts_blocks(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS blocks_ad AFTER DELETE ON blocks BEGIN
			INSERT INTO fts_blocks(fts_blocks, rowid, text) VALUES ('delete', old.doc_id, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS blocks_au AFTER UPDATE OF text ON blocks BEGIN
			INSERT INTO fts_blocks(fts_blocks, rowid, text) VALUES ('delete', old.doc_id, old.text);
			INSERT INTO fts_blocks(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_blocks_kind ON blocks(kind);`,
				`CREATE INDEX IF NOT EXISTS idx_pages_name ON pages(name);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// SchemaVersion reports the schema version recorded in the database.
func (x *Index) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := x.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v)
	return v, err
}

// backupIndexFile copies the current index file into a timestamped backup in .bst/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), time.Now().Format(backupStamp)))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

type blockRow struct {
	blockID string
	kind    string
	path    string
	text    string
}

// IndexPage replaces the rows of page id with the blocks of tree. An empty tree indexes
// the page with no blocks.
func (x *Index) IndexPage(ctx context.Context, id, name string, tree []byte) error {
	var rows []blockRow
	if len(strings.TrimSpace(string(tree))) > 0 {
		var eng block.Engine
		root, err := eng.Decode(tree, nil)
		if err != nil {
			return fmt.Errorf("decode page %s: %w", id, err)
		}
		block.Walk(root, func(b *block.Block) bool {
			rows = append(rows, blockRow{blockID: b.ID(), kind: b.Kind, path: blockPath(b), text: searchText(b)})
			return true
		})
	}
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE page_id=?`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear blocks: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, `INSERT INTO blocks(page_id, block_id, kind, path, text) VALUES(?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	for _, r := range rows {
		if _, err := ins.ExecContext(ctx, id, r.blockID, r.kind, r.path, r.text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert block: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO pages(id, name, blocks, indexed_at) VALUES(?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, blocks=excluded.blocks, indexed_at=excluded.indexed_at`,
		id, name, len(rows), time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert page: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RemovePage drops every row and snapshot of page id.
func (x *Index) RemovePage(ctx context.Context, id string) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, q := range []string{
		`DELETE FROM blocks WHERE page_id=?`,
		`DELETE FROM snapshots WHERE page_id=?`,
		`DELETE FROM pages WHERE id=?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("remove page: %w", err)
		}
	}
	return tx.Commit()
}

// Rebuild clears the block rows and reindexes every page of s from its files, draft
// over published. Snapshots are kept.
func (x *Index) Rebuild(ctx context.Context, s *FileStore) error {
	for _, q := range []string{`DELETE FROM blocks;`, `DELETE FROM pages;`} {
		if _, err := x.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
	}
	for _, e := range s.Pages() {
		p, err := s.FetchPage(ctx, e.Name)
		if err != nil {
			return err
		}
		tree := p.Draft
		if len(strings.TrimSpace(string(tree))) == 0 {
			tree = p.Published
		}
		if err := x.IndexPage(ctx, p.ID, p.Name, tree); err != nil {
			return err
		}
	}
	x.log.Info("index rebuilt", slog.Int("pages", len(s.Pages())))
	return nil
}

// blockPath renders the ownership chain of b as "root/card-1/actions:button-2", where a
// slot-owned block is prefixed with its slot name.
func blockPath(b *block.Block) string {
	var segs []string
	for cur := b; cur != nil; cur = cur.Parent() {
		seg := cur.ID()
		if s := cur.SlotName(); s != "" {
			seg = s + ":" + seg
		}
		segs = append(segs, seg)
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, "/")
}

// searchText joins the label, string props and text slots of b.
func searchText(b *block.Block) string {
	parts := []string{b.Label}
	keys := make([]string, 0, len(b.Props))
	for k := range b.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := b.Props[k].(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	for _, s := range b.Slots() {
		if !s.IsList() && strings.TrimSpace(s.Text()) != "" {
			parts = append(parts, s.Text())
		}
	}
	return strings.Join(parts, " ")
}
