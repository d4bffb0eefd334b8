/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"blockstudio/internal/canvas"
	"blockstudio/internal/config"
	"blockstudio/internal/crash"
	"blockstudio/internal/pgstore"
	"blockstudio/internal/storage"
)

var errNoIndex = errors.New("the configured driver has no search index (use sqlite)")

// pageRow is one line of a page listing, whatever the driver.
type pageRow struct {
	ID          string
	Name        string
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// backend is the configured page store. Exactly one of files and pg is set; index is
// only set for the sqlite driver.
type backend struct {
	files *storage.FileStore
	index *storage.Index
	pg    *pgstore.Store
}

func openBackend(ctx context.Context, sc config.StorageConfig, password string) (*backend, error) {
	if sc.Driver == config.DriverPostgres {
		pg, err := pgstore.Open(ctx, sc.DSNWithPassword(password))
		if err != nil {
			return nil, err
		}
		return &backend{pg: pg}, nil
	}
	root, err := sc.StorageRoot()
	if err != nil {
		return nil, err
	}
	fs, err := storage.Init(root)
	if err != nil {
		return nil, err
	}
	b := &backend{files: fs}
	if sc.Driver == config.DriverSQLite {
		x, err := storage.OpenIndex(ctx, root)
		if err != nil {
			return nil, err
		}
		if sc.KeepSnapshots > 0 {
			x.KeepSnapshots = sc.KeepSnapshots
		}
		fs.Index = x
		b.index = x
	}
	return b, nil
}

func (b *backend) Close() {
	var err error
	switch {
	case b.pg != nil:
		err = b.pg.Close()
	case b.index != nil:
		err = b.index.Close()
	}
	if err != nil {
		cliLog.Warn("closing page store", slog.Any("err", err))
	}
}

// store is the backend as seen by the editor.
func (b *backend) store() canvas.PageStore {
	if b.pg != nil {
		return b.pg
	}
	return b.files
}

// crashSaver returns the autosaver for an editing session, or nil when the driver
// keeps no local backups.
func (b *backend) crashSaver(src storage.DraftSource) crash.Autosaver {
	if b.files == nil {
		return nil
	}
	return storage.CrashSaver{Store: b.files, Source: src}
}

func (b *backend) create(ctx context.Context, name string, tree []byte) (string, error) {
	if b.pg != nil {
		return b.pg.CreatePage(ctx, name, tree)
	}
	e, err := b.files.CreatePage(ctx, name, tree)
	return e.ID, err
}

func (b *backend) list(ctx context.Context) ([]pageRow, error) {
	if b.pg != nil {
		infos, err := b.pg.ListPages(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]pageRow, 0, len(infos))
		for _, p := range infos {
			rows = append(rows, pageRow{ID: p.ID, Name: p.Name, UpdatedAt: p.UpdatedAt, PublishedAt: p.PublishedAt})
		}
		return rows, nil
	}
	entries := b.files.Pages()
	rows := make([]pageRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, pageRow{ID: e.ID, Name: e.Name, UpdatedAt: e.UpdatedAt, PublishedAt: e.PublishedAt})
	}
	return rows, nil
}

// lookup resolves a page name to its stored form.
func (b *backend) lookup(ctx context.Context, name string) (canvas.Page, error) {
	p, err := b.store().FetchPage(ctx, name)
	if err != nil {
		return canvas.Page{}, fmt.Errorf("page %q: %w", name, err)
	}
	return p, nil
}

func (b *backend) publish(ctx context.Context, id string) error {
	if b.pg != nil {
		return b.pg.Publish(ctx, id)
	}
	return b.files.Publish(ctx, id)
}
