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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"blockstudio/internal/block"
	"blockstudio/internal/canvas"
	"blockstudio/internal/ident"
	applog "blockstudio/internal/log"
)

const (
	ManifestFileName = "pages.json"
	PagesDirName     = "pages"
	BackupsDirName   = "backups"

	draftSuffix     = ".draft.json"
	publishedSuffix = ".published.json"

	manifestVersion = 1
)

var (
	ErrPageNotFound = errors.New("page not found")
	ErrPageExists   = errors.New("page already exists")
)

// PageEntry is one manifest row.
type PageEntry struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// Manifest lists the pages of a store.
type Manifest struct {
	Version int         `json:"version"`
	Pages   []PageEntry `json:"pages"`
}

// FileStore keeps pages as JSON files below Root. It implements canvas.PageStore.
// Every write goes to a temp file that is renamed over the target, after the previous
// content was copied to Root/backups. Reads fall back to the newest readable backup.
type FileStore struct {
	Root string
	// Index, when set, is refreshed on every save and delete. Index failures are logged
	// and never fail the write itself.
	Index  *Index
	IDs    ident.Generator
	Now    func() time.Time
	Logger *slog.Logger

	mu       sync.Mutex
	manifest Manifest
}

var _ canvas.PageStore = (*FileStore)(nil)

// Init creates the store layout under root (creating root if needed). An existing
// manifest is loaded instead of overwritten.
func Init(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	for _, d := range []string{root, filepath.Join(root, PagesDirName), filepath.Join(root, BackupsDirName)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, ManifestFileName)); err == nil {
		return Open(root)
	}
	s := &FileStore{Root: root, manifest: Manifest{Version: manifestVersion, Pages: []PageEntry{}}}
	if err := s.writeManifestLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads an existing store. If the manifest cannot be read or parsed, the latest
// backup is used.
func Open(root string) (*FileStore, error) {
	s := &FileStore{Root: root}
	data, fromBackup, err := readWithFallback(s.manifestPath(), s.backupDir(), func(b []byte) error {
		var probe Manifest
		return json.Unmarshal(b, &probe)
	})
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Pages == nil {
		m.Pages = []PageEntry{}
	}
	s.manifest = m
	if fromBackup {
		s.logger().Warn("manifest restored from backup", slog.String("root", root))
	}
	return s, nil
}

func (s *FileStore) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return applog.WithComponent("storage")
}

func (s *FileStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *FileStore) ids() ident.Generator {
	if s.IDs != nil {
		return s.IDs
	}
	return ident.Default
}

func (s *FileStore) manifestPath() string { return filepath.Join(s.Root, ManifestFileName) }
func (s *FileStore) backupDir() string    { return filepath.Join(s.Root, BackupsDirName) }

func (s *FileStore) pagePath(id, suffix string) string {
	return filepath.Join(s.Root, PagesDirName, id+suffix)
}

func (s *FileStore) writeManifestLocked() error {
	data, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')
	return replaceFile(s.manifestPath(), s.backupDir(), data)
}

func (s *FileStore) entryLocked(match func(PageEntry) bool) int {
	for i, p := range s.manifest.Pages {
		if match(p) {
			return i
		}
	}
	return -1
}

// Pages returns the manifest entries sorted by name.
func (s *FileStore) Pages() []PageEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]PageEntry(nil), s.manifest.Pages...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreatePage registers a new page whose published tree is tree. A nil tree leaves the
// page empty, which loads as a fresh root.
func (s *FileStore) CreatePage(ctx context.Context, name string, tree []byte) (PageEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return PageEntry{}, errors.New("page name is required")
	}
	if err := checkTree(tree); err != nil {
		return PageEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryLocked(func(p PageEntry) bool { return p.Name == name }) >= 0 {
		return PageEntry{}, fmt.Errorf("%w: %s", ErrPageExists, name)
	}
	now := s.now().UTC()
	e := PageEntry{ID: s.ids().NewID("page"), Name: name, CreatedAt: now, UpdatedAt: now}
	if len(tree) > 0 {
		if err := replaceFile(s.pagePath(e.ID, publishedSuffix), "", tree); err != nil {
			return PageEntry{}, err
		}
		e.PublishedAt = &now
	}
	s.manifest.Pages = append(s.manifest.Pages, e)
	if err := s.writeManifestLocked(); err != nil {
		return PageEntry{}, err
	}
	s.logger().Info("page created", slog.String("page", e.ID), slog.String("name", name))
	s.reindex(ctx, e, tree)
	return e, nil
}

// FetchPage returns the named page with both of its trees.
func (s *FileStore) FetchPage(ctx context.Context, name string) (canvas.Page, error) {
	if err := ctx.Err(); err != nil {
		return canvas.Page{}, err
	}
	s.mu.Lock()
	i := s.entryLocked(func(p PageEntry) bool { return p.Name == name })
	var e PageEntry
	if i >= 0 {
		e = s.manifest.Pages[i]
	}
	s.mu.Unlock()
	if i < 0 {
		return canvas.Page{}, fmt.Errorf("%w: %s", ErrPageNotFound, name)
	}
	draft, err := s.readTree(ctx, e.ID, draftSuffix)
	if err != nil {
		return canvas.Page{}, err
	}
	published, err := s.readTree(ctx, e.ID, publishedSuffix)
	if err != nil {
		return canvas.Page{}, err
	}
	return canvas.Page{ID: e.ID, Name: e.Name, Draft: draft, Published: published}, nil
}

// readTree loads one page file. A missing file is an empty tree. An unreadable file is
// replaced by its newest good backup, then by the newest index snapshot for drafts.
func (s *FileStore) readTree(ctx context.Context, id, suffix string) ([]byte, error) {
	path := s.pagePath(id, suffix)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	data, fromBackup, err := readWithFallback(path, s.backupDir(), checkTree)
	if err == nil {
		if fromBackup {
			s.logger().Warn("page restored from backup", slog.String("page", id), slog.String("file", filepath.Base(path)))
		}
		return data, nil
	}
	if suffix == draftSuffix && s.Index != nil {
		snap, ts, serr := s.Index.LatestSnapshot(ctx, id)
		if serr == nil && snap != nil && checkTree(snap) == nil {
			s.logger().Warn("page draft restored from snapshot", slog.String("page", id), slog.Time("ts", ts))
			return snap, nil
		}
	}
	return nil, fmt.Errorf("read page %s: %w", id, err)
}

// SavePage writes tree as the draft of page id.
func (s *FileStore) SavePage(ctx context.Context, id string, tree []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkTree(tree); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.entryLocked(func(p PageEntry) bool { return p.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	if err := replaceFile(s.pagePath(id, draftSuffix), s.backupDir(), tree); err != nil {
		return err
	}
	s.manifest.Pages[i].UpdatedAt = s.now().UTC()
	if err := s.writeManifestLocked(); err != nil {
		return err
	}
	s.reindex(ctx, s.manifest.Pages[i], tree)
	return nil
}

// Publish promotes the draft of page id to its published tree and clears the draft.
func (s *FileStore) Publish(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.entryLocked(func(p PageEntry) bool { return p.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	draft, err := os.ReadFile(s.pagePath(id, draftSuffix))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read draft: %w", err)
	}
	if err := checkTree(draft); err != nil {
		return err
	}
	if err := replaceFile(s.pagePath(id, publishedSuffix), s.backupDir(), draft); err != nil {
		return err
	}
	if err := os.Remove(s.pagePath(id, draftSuffix)); err != nil {
		return fmt.Errorf("remove draft: %w", err)
	}
	now := s.now().UTC()
	s.manifest.Pages[i].PublishedAt = &now
	s.manifest.Pages[i].UpdatedAt = now
	s.logger().InfoContext(applog.ContextWithPage(ctx, id), "page published")
	return s.writeManifestLocked()
}

// DeletePage removes page id and its files. Backups are kept.
func (s *FileStore) DeletePage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.entryLocked(func(p PageEntry) bool { return p.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	for _, suffix := range []string{draftSuffix, publishedSuffix} {
		if err := os.Remove(s.pagePath(id, suffix)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove page file: %w", err)
		}
	}
	s.manifest.Pages = append(s.manifest.Pages[:i], s.manifest.Pages[i+1:]...)
	if err := s.writeManifestLocked(); err != nil {
		return err
	}
	if s.Index != nil {
		if err := s.Index.RemovePage(ctx, id); err != nil {
			s.logger().Warn("index remove failed", slog.String("page", id), slog.Any("err", err))
		}
	}
	s.logger().Info("page deleted", slog.String("page", id))
	return nil
}

func (s *FileStore) reindex(ctx context.Context, e PageEntry, tree []byte) {
	if s.Index == nil {
		return
	}
	l := s.logger().With(slog.String("page", e.ID))
	if err := s.Index.IndexPage(ctx, e.ID, e.Name, tree); err != nil {
		l.Warn("index update failed", slog.Any("err", err))
	}
	if len(tree) == 0 {
		return
	}
	if err := s.Index.SaveSnapshot(ctx, e.ID, tree, s.now()); err != nil {
		l.Warn("snapshot failed", slog.Any("err", err))
		return
	}
	if _, err := s.Index.PruneSnapshots(ctx, e.ID, s.Index.KeepSnapshots); err != nil {
		l.Warn("snapshot prune failed", slog.Any("err", err))
	}
}

// checkTree accepts empty trees and anything matching the page schema.
func checkTree(tree []byte) error {
	if len(bytes.TrimSpace(tree)) == 0 {
		return nil
	}
	return block.Validate(tree)
}
