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
	"strings"
)

// Query describes a block search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Kinds and PageID are optional filters. Limit/Offset paginate; Limit defaults to 100.
type Query struct {
	Text   string
	Kinds  []string
	PageID string
	Limit  int
	Offset int
}

// Hit is one matching block. Snippet marks matches with [ ] when Text was used.
type Hit struct {
	DocID   int64
	PageID  string
	BlockID string
	Kind    string
	Path    string
	Snippet string
}

// Search runs q over the block rows. An empty q.Text scans rows with the filters only.
func (x *Index) Search(ctx context.Context, q Query) ([]Hit, error) {
	var args []any
	var sb strings.Builder
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT b.doc_id, b.page_id, b.block_id, b.kind, b.path, snippet(fts_blocks, 0, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_blocks JOIN blocks b ON fts_blocks.rowid = b.doc_id\n")
		sb.WriteString("WHERE fts_blocks MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT b.doc_id, b.page_id, b.block_id, b.kind, b.path, ''\n")
		sb.WriteString("FROM blocks b\nWHERE 1=1\n")
	}
	if len(q.Kinds) > 0 {
		sb.WriteString(" AND b.kind IN (" + placeholders(len(q.Kinds)) + ")\n")
		for _, k := range q.Kinds {
			args = append(args, k)
		}
	}
	if q.PageID != "" {
		sb.WriteString(" AND b.page_id = ?\n")
		args = append(args, q.PageID)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	sb.WriteString("ORDER BY b.page_id, b.doc_id\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := x.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []Hit
	for rows.Next() {
		var h Hit
		var sn sql.NullString
		if err := rows.Scan(&h.DocID, &h.PageID, &h.BlockID, &h.Kind, &h.Path, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		h.Snippet = sn.String
		out = append(out, h)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
