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
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const searchTree = `{"id":"root","kind":"div","role":"root","children":[
	{"id":"btn","kind":"Button","label":"Submit order","slots":{"prefix":"cart icon"}},
	{"id":"card","kind":"Card","slots":{"actions":[{"id":"cancel","kind":"Button","props":{"title":"Cancel checkout"}}]}}
]}`

func openIndex(t *testing.T, root string) *Index {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	x, err := OpenIndex(ctx, root)
	if err != nil {
		t.Fatalf("OpenIndex error: %v", err)
	}
	t.Cleanup(func() { _ = x.Close() })
	return x
}

func TestOpenIndexCreatesWALAndSchema(t *testing.T) {
	root := t.TempDir()
	x := openIndex(t, root)
	if _, err := os.Stat(IndexPath(root)); err != nil {
		t.Fatalf("index file missing: %v", err)
	}
	ctx := context.Background()
	var mode string
	if err := x.db.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "wal" && mode != "WAL" {
		t.Fatalf("expected WAL mode, got %s", mode)
	}
	v, err := x.SchemaVersion(ctx)
	if err != nil || v != schemaVersion {
		t.Fatalf("schema version = %d err %v", v, err)
	}
	var cnt int
	if err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('meta','version','pages','blocks','fts_blocks','snapshots')").Scan(&cnt); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if cnt != 6 {
		t.Fatalf("expected 6 tables, got %d", cnt)
	}
	if err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_blocks_kind'").Scan(&cnt); err != nil || cnt != 1 {
		t.Fatalf("migration 2 index missing: %d %v", cnt, err)
	}
}

func TestIndexPageAndSearch(t *testing.T) {
	x := openIndex(t, t.TempDir())
	ctx := context.Background()
	if err := x.IndexPage(ctx, "p1", "home", []byte(searchTree)); err != nil {
		t.Fatalf("IndexPage: %v", err)
	}
	if err := x.IndexPage(ctx, "p2", "about", []byte(treeA)); err != nil {
		t.Fatalf("IndexPage p2: %v", err)
	}

	hits, err := x.Search(ctx, Query{Text: "submit"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].BlockID != "btn" || hits[0].PageID != "p1" {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if hits[0].Path != "root/btn" {
		t.Fatalf("path = %q", hits[0].Path)
	}

	// slot text and props are searchable, slot blocks carry their slot in the path
	hits, _ = x.Search(ctx, Query{Text: "cart"})
	if len(hits) != 1 || hits[0].BlockID != "btn" {
		t.Fatalf("slot text not indexed: %+v", hits)
	}
	hits, _ = x.Search(ctx, Query{Text: "checkout"})
	if len(hits) != 1 || hits[0].Path != "root/card/actions:cancel" {
		t.Fatalf("slot block not indexed: %+v", hits)
	}

	hits, _ = x.Search(ctx, Query{Kinds: []string{"Button"}})
	if len(hits) != 2 {
		t.Fatalf("kind filter: %+v", hits)
	}
	hits, _ = x.Search(ctx, Query{PageID: "p2"})
	if len(hits) != 2 {
		t.Fatalf("page filter: %+v", hits)
	}

	// reindexing replaces rows
	if err := x.IndexPage(ctx, "p1", "home", []byte(treeB)); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if hits, _ = x.Search(ctx, Query{Text: "submit"}); len(hits) != 0 {
		t.Fatalf("stale rows after reindex: %+v", hits)
	}

	if err := x.RemovePage(ctx, "p1"); err != nil {
		t.Fatalf("RemovePage: %v", err)
	}
	if hits, _ = x.Search(ctx, Query{PageID: "p1"}); len(hits) != 0 {
		t.Fatalf("rows left after RemovePage: %+v", hits)
	}
}

func TestOpenIndexRebuildsCorruptFile(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, IndexDirName), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(IndexPath(root), []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	x := openIndex(t, root)
	if _, err := x.Search(context.Background(), Query{}); err != nil {
		t.Fatalf("rebuilt index unusable: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, IndexDirName, "backups"))
	if len(entries) == 0 {
		t.Fatalf("expected backup of the corrupt index")
	}
}

func TestStoreKeepsIndexInStep(t *testing.T) {
	s := newStore(t)
	x := openIndex(t, s.Root)
	s.Index = x
	ctx := context.Background()
	e, err := s.CreatePage(ctx, "home", []byte(searchTree))
	if err != nil {
		t.Fatalf("CreatePage: %v", err)
	}
	if hits, _ := x.Search(ctx, Query{Text: "submit"}); len(hits) != 1 {
		t.Fatalf("create not indexed: %+v", hits)
	}
	if err := s.SavePage(ctx, e.ID, []byte(treeA)); err != nil {
		t.Fatalf("SavePage: %v", err)
	}
	if hits, _ := x.Search(ctx, Query{Text: "first"}); len(hits) != 1 {
		t.Fatalf("save not indexed: %+v", hits)
	}

	// wipe the rows and rebuild from files
	if _, err := x.db.ExecContext(ctx, `DELETE FROM blocks`); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if err := x.Rebuild(ctx, s); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if hits, _ := x.Search(ctx, Query{Text: "first"}); len(hits) != 1 {
		t.Fatalf("rebuild missed draft: %+v", hits)
	}

	if err := s.DeletePage(ctx, e.ID); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	if hits, _ := x.Search(ctx, Query{}); len(hits) != 0 {
		t.Fatalf("rows left after delete: %+v", hits)
	}
}

func TestIndexSurvivesReopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	x, err := OpenIndex(ctx, root)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	if err := x.IndexPage(ctx, "p1", "home", []byte(treeA)); err != nil {
		t.Fatalf("IndexPage: %v", err)
	}
	_ = x.Close()

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)", filepath.ToSlash(IndexPath(root)))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	var blocks int
	if err := db.QueryRowContext(ctx, `SELECT blocks FROM pages WHERE id='p1'`).Scan(&blocks); err != nil {
		t.Fatalf("read page row: %v", err)
	}
	if blocks != 2 {
		t.Fatalf("blocks = %d", blocks)
	}
}
