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
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"blockstudio/internal/block"
	"blockstudio/internal/canvas"
	applog "blockstudio/internal/log"
)

// PageInfo is a listing row.
type PageInfo struct {
	ID          string
	Name        string
	Version     int64
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// Revision is one saved draft.
type Revision struct {
	Version   int64
	Tree      []byte
	CreatedAt time.Time
}

// treeArg maps an empty tree to NULL.
func treeArg(tree []byte) any {
	if len(bytes.TrimSpace(tree)) == 0 {
		return nil
	}
	return string(tree)
}

func checkTree(tree []byte) error {
	if len(bytes.TrimSpace(tree)) == 0 {
		return nil
	}
	return block.Validate(tree)
}

// CreatePage inserts a page whose published tree is tree (nil for an empty page).
func (s *Store) CreatePage(ctx context.Context, name string, tree []byte) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("page name is required")
	}
	if err := checkTree(tree); err != nil {
		return "", err
	}
	id := s.ids().NewID("page")
	var publishedAt any
	if treeArg(tree) != nil {
		publishedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO pages(id, name, published, published_at) VALUES($1, $2, $3::jsonb, $4)`,
		id, name, treeArg(tree), publishedAt); err != nil {
		return "", fmt.Errorf("insert page: %w", err)
	}
	s.log.Info("page created", slog.String("page", id), slog.String("name", name))
	return id, nil
}

// FetchPage returns the named page with both trees.
func (s *Store) FetchPage(ctx context.Context, name string) (canvas.Page, error) {
	var (
		p                canvas.Page
		draft, published sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, draft::text, published::text FROM pages WHERE name = $1`, name).
		Scan(&p.ID, &p.Name, &draft, &published)
	if errors.Is(err, sql.ErrNoRows) {
		return canvas.Page{}, fmt.Errorf("%w: %s", ErrPageNotFound, name)
	}
	if err != nil {
		return canvas.Page{}, fmt.Errorf("select page: %w", err)
	}
	if draft.Valid {
		p.Draft = []byte(draft.String)
	}
	if published.Valid {
		p.Published = []byte(published.String)
	}
	return p, nil
}

// SavePage stores tree as the draft of page id, bumps its version and records a
// revision. Old revisions beyond KeepRevisions are pruned in the same transaction.
func (s *Store) SavePage(ctx context.Context, id string, tree []byte) error {
	if err := checkTree(tree); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	var version int64
	err = tx.QueryRowContext(ctx,
		`UPDATE pages SET draft = $2::jsonb, version = version + 1, updated_at = now() WHERE id = $1 RETURNING version`,
		id, treeArg(tree)).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	if treeArg(tree) != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO page_revisions(page_id, version, tree) VALUES($1, $2, $3::jsonb)`,
			id, version, treeArg(tree)); err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}
	}
	if s.KeepRevisions > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM page_revisions WHERE page_id = $1 AND id NOT IN (
				SELECT id FROM page_revisions WHERE page_id = $1 ORDER BY version DESC, id DESC LIMIT $2)`,
			id, s.KeepRevisions); err != nil {
			return fmt.Errorf("prune revisions: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	applog.WithOperation(s.log, "save").DebugContext(applog.ContextWithPage(ctx, id), "draft saved", slog.Int64("version", version))
	return nil
}

// Publish copies the draft of page id into published and clears the draft. A page
// without a draft is left alone.
func (s *Store) Publish(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET published = draft, draft = NULL, published_at = now(), updated_at = now()
		 WHERE id = $1 AND draft IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("publish page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM pages WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check page: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrPageNotFound, id)
		}
	}
	return nil
}

// DeletePage removes page id together with its revisions.
func (s *Store) DeletePage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	s.log.Info("page deleted", slog.String("page", id))
	return nil
}

// ListPages returns all pages, most recently updated first.
func (s *Store) ListPages(ctx context.Context) ([]PageInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, version, updated_at, published_at FROM pages ORDER BY updated_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []PageInfo
	for rows.Next() {
		var p PageInfo
		var pub sql.NullTime
		if err := rows.Scan(&p.ID, &p.Name, &p.Version, &p.UpdatedAt, &pub); err != nil {
			return nil, err
		}
		if pub.Valid {
			t := pub.Time
			p.PublishedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Revisions returns up to limit most recent revisions of page id, newest first.
func (s *Store) Revisions(ctx context.Context, id string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, tree::text, created_at FROM page_revisions WHERE page_id = $1 ORDER BY version DESC, id DESC LIMIT $2`,
		id, limit)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Revision
	for rows.Next() {
		var r Revision
		var tree string
		if err := rows.Scan(&r.Version, &tree, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Tree = []byte(tree)
		out = append(out, r)
	}
	return out, rows.Err()
}
