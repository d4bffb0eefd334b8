/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"blockstudio/internal/block"
	"blockstudio/internal/canvas"
	"blockstudio/internal/ident"
)

func openPGForTest(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("BST_PG_DSN")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		t.Skip("BST_PG_DSN/DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("migrations/002_page_revisions.sql")
	if err != nil || v != 2 {
		t.Fatalf("parseVersion = %d, %v", v, err)
	}
	if _, err := parseVersion("nounderscore.sql"); err == nil {
		t.Fatalf("expected error for missing prefix")
	}
	if _, err := parseVersion("abc_x.sql"); err == nil {
		t.Fatalf("expected error for non-numeric prefix")
	}
}

func TestMigrationFilesAreOrdered(t *testing.T) {
	files, err := migrationFiles()
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(files) < 2 || files[0] != "001_pages.sql" || files[1] != "002_page_revisions.sql" {
		t.Fatalf("unexpected migrations %v", files)
	}
}

func TestPageLifecycle(t *testing.T) {
	s := openPGForTest(t)
	s.IDs = ident.UUID{}
	s.KeepRevisions = 2
	ctx := context.Background()
	name := ident.New("test")
	published := []byte(`{"id":"root","kind":"div","role":"root","children":[{"id":"a","kind":"p"}]}`)

	id, err := s.CreatePage(ctx, name, published)
	if err != nil {
		t.Fatalf("CreatePage: %v", err)
	}
	t.Cleanup(func() { _ = s.DeletePage(context.Background(), id) })

	p, err := s.FetchPage(ctx, name)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if p.ID != id || len(p.Draft) != 0 || len(p.Published) == 0 {
		t.Fatalf("unexpected page %+v", p)
	}

	c := canvas.New(canvas.Options{Store: s})
	if err := c.SetPage(ctx, name); err != nil {
		t.Fatalf("SetPage: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.AddChild(c.Root(), block.Spec{Kind: "p"}, block.End); err != nil {
			t.Fatalf("AddChild: %v", err)
		}
		if err := c.SavePage(ctx); err != nil {
			t.Fatalf("SavePage: %v", err)
		}
	}
	revs, err := s.Revisions(ctx, id, 10)
	if err != nil {
		t.Fatalf("Revisions: %v", err)
	}
	if len(revs) != 2 || revs[0].Version != 3 {
		t.Fatalf("unexpected revisions %+v", revs)
	}

	if err := s.Publish(ctx, id); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	p, _ = s.FetchPage(ctx, name)
	if len(p.Draft) != 0 {
		t.Fatalf("draft not cleared")
	}
	var eng block.Engine
	root, err := eng.Decode(p.Published, nil)
	if err != nil {
		t.Fatalf("decode published: %v", err)
	}
	if got := len(root.Children()); got != 4 {
		t.Fatalf("published children = %d", got)
	}

	list, err := s.ListPages(ctx)
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	found := false
	for _, pi := range list {
		if pi.ID == id {
			found = pi.PublishedAt != nil && pi.Version == 3
		}
	}
	if !found {
		t.Fatalf("page missing from listing")
	}

	if err := s.DeletePage(ctx, id); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	if _, err := s.FetchPage(ctx, name); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("expected ErrPageNotFound, got %v", err)
	}
	if err := s.SavePage(ctx, id, published); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("expected ErrPageNotFound on save, got %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openPGForTest(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}
