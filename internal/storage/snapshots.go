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
	"time"
)

// language=SQL
// dialect=SQLite
const insertSnapshotSQL = `INSERT INTO snapshots(page_id, ts, tree) VALUES (?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestSnapshotSQL = `SELECT ts, tree FROM snapshots WHERE page_id = ? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listSnapshotsSQL = `SELECT ts, tree FROM snapshots WHERE page_id = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldSnapshotsSQL = `DELETE FROM snapshots WHERE page_id = ? AND id NOT IN (
	SELECT id FROM snapshots WHERE page_id = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// snapshotTS is fixed width so that text order is time order.
const snapshotTS = "2006-01-02T15:04:05.000000000Z"

// Snapshot is one stored tree of a page.
type Snapshot struct {
	TS   time.Time
	Tree []byte
}

// SaveSnapshot stores tree as a snapshot of page id taken at ts.
func (x *Index) SaveSnapshot(ctx context.Context, id string, tree []byte, ts time.Time) error {
	_, err := x.db.ExecContext(ctx, insertSnapshotSQL, id, ts.UTC().Format(snapshotTS), tree)
	return err
}

// LatestSnapshot returns the newest snapshot of page id, or nil if there is none.
func (x *Index) LatestSnapshot(ctx context.Context, id string) ([]byte, time.Time, error) {
	var tsStr string
	var tree []byte
	err := x.db.QueryRowContext(ctx, selectLatestSnapshotSQL, id).Scan(&tsStr, &tree)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	ts, err := time.Parse(snapshotTS, tsStr)
	if err != nil {
		return tree, time.Time{}, nil // keep the tree even if ts is unreadable
	}
	return tree, ts, nil
}

// ListSnapshots returns up to limit most recent snapshots of page id, newest first.
func (x *Index) ListSnapshots(ctx context.Context, id string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := x.db.QueryContext(ctx, listSnapshotsSQL, id, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Snapshot
	for rows.Next() {
		var tsStr string
		var tree []byte
		if err := rows.Scan(&tsStr, &tree); err != nil {
			return nil, err
		}
		ts, _ := time.Parse(snapshotTS, tsStr)
		out = append(out, Snapshot{TS: ts, Tree: tree})
	}
	return out, rows.Err()
}

// PruneSnapshots keeps at most keepLast snapshots of page id and deletes older ones.
// A non-positive keepLast keeps everything.
func (x *Index) PruneSnapshots(ctx context.Context, id string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := x.db.ExecContext(ctx, pruneOldSnapshotsSQL, id, id, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
